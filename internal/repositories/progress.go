package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"campusgrid/internal/models"

	"github.com/jmoiron/sqlx"
)

type ProgressRepository interface {
	Get(ctx context.Context, studentID int) (*models.StudentProgress, error)
	Save(ctx context.Context, progress *models.StudentProgress) error
}

type progressRepository struct {
	db *sqlx.DB
}

func NewProgressRepository(db *sqlx.DB) ProgressRepository {
	return &progressRepository{db: db}
}

// Get returns an empty progress document when the student has none yet.
func (r *progressRepository) Get(ctx context.Context, studentID int) (*models.StudentProgress, error) {
	query := `SELECT data FROM student_progress WHERE student_id = ?`

	var raw []byte
	err := r.db.GetContext(ctx, &raw, query, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.StudentProgress{StudentID: studentID}, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var progress models.StudentProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	progress.StudentID = studentID
	return &progress, nil
}

func (r *progressRepository) Save(ctx context.Context, progress *models.StudentProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	query := `INSERT INTO student_progress (student_id, data) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data)`

	if _, err := r.db.ExecContext(ctx, query, progress.StudentID, raw); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
