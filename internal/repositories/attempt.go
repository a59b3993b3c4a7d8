package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"campusgrid/internal/models"

	"github.com/jmoiron/sqlx"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, id int) (*models.ExamAttempt, error)
	Update(ctx context.Context, attempt *models.ExamAttempt) error
	FindInProgressByExam(ctx context.Context, studentID, examID int) (*models.ExamAttempt, error)
	FindInProgressByLevel(ctx context.Context, studentID, subjectID int, level string) (*models.ExamAttempt, error)
	ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error)
	ListCompletedByLevel(ctx context.Context, studentID, subjectID int, level string, minPercentage float64) ([]models.ExamAttempt, error)
}

type attemptRepository struct {
	db *sqlx.DB
}

func NewAttemptRepository(db *sqlx.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

const attemptColumns = `id, exam_id, student_id, subject_id, level, mode, start_time, end_time,
	time_taken, answers, violations, total_score, score_percentage, status`

func (r *attemptRepository) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	query := `INSERT INTO exam_attempts
		(exam_id, student_id, subject_id, level, mode, start_time, answers, violations, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		attempt.ExamID, attempt.StudentID, attempt.SubjectID, attempt.Level, attempt.Mode,
		attempt.StartTime, attempt.Answers, attempt.Violations, attempt.Status)
	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	attempt.ID = int(id)
	return nil
}

func (r *attemptRepository) GetByID(ctx context.Context, id int) (*models.ExamAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts WHERE id = ?`

	var attempt models.ExamAttempt
	err := r.db.GetContext(ctx, &attempt, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("attempt not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (r *attemptRepository) Update(ctx context.Context, attempt *models.ExamAttempt) error {
	query := `UPDATE exam_attempts SET end_time = ?, time_taken = ?, answers = ?, violations = ?,
		total_score = ?, score_percentage = ?, status = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		attempt.EndTime, attempt.TimeTaken, attempt.Answers, attempt.Violations,
		attempt.TotalScore, attempt.ScorePercentage, attempt.Status, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) FindInProgressByExam(ctx context.Context, studentID, examID int) (*models.ExamAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts
		WHERE student_id = ? AND exam_id = ? AND status = ? LIMIT 1`

	var attempt models.ExamAttempt
	err := r.db.GetContext(ctx, &attempt, query, studentID, examID, models.StatusInProgress)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find in-progress attempt: %w", err)
	}
	return &attempt, nil
}

func (r *attemptRepository) FindInProgressByLevel(ctx context.Context, studentID, subjectID int, level string) (*models.ExamAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts
		WHERE student_id = ? AND subject_id = ? AND level = ? AND exam_id IS NULL AND status = ? LIMIT 1`

	var attempt models.ExamAttempt
	err := r.db.GetContext(ctx, &attempt, query, studentID, subjectID, level, models.StatusInProgress)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find in-progress attempt: %w", err)
	}
	return &attempt, nil
}

func (r *attemptRepository) ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts WHERE student_id = ? ORDER BY start_time DESC`

	var attempts []models.ExamAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID); err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// ListCompletedByLevel returns finished attempts that count toward star
// thresholds; auto-submitted attempts score the same as completed ones.
func (r *attemptRepository) ListCompletedByLevel(ctx context.Context, studentID, subjectID int, level string, minPercentage float64) ([]models.ExamAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts
		WHERE student_id = ? AND subject_id = ? AND level = ? AND status IN (?, ?) AND score_percentage >= ?
		ORDER BY end_time DESC`

	var attempts []models.ExamAttempt
	err := r.db.SelectContext(ctx, &attempts, query, studentID, subjectID, level,
		models.StatusCompleted, models.StatusAutoSubmitted, minPercentage)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed attempts: %w", err)
	}
	return attempts, nil
}
