package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campusgrid/internal/models"
	"campusgrid/internal/services"

	"github.com/jmoiron/sqlx"
)

type QuestionRepository interface {
	GetByID(ctx context.Context, id int) (*models.Question, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.Question, error)
	SampleForLevel(ctx context.Context, subjectID int, level string, count int) ([]models.Question, error)
	GetExam(ctx context.Context, examID int) (*models.Exam, error)
	GetExamQuestions(ctx context.Context, examID int) ([]models.Question, error)
	ListActiveExams(ctx context.Context, now time.Time) ([]models.Exam, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
}

type questionRepository struct {
	db    *sqlx.DB
	cache services.Cache
}

func NewQuestionRepository(db *sqlx.DB, cache services.Cache) QuestionRepository {
	return &questionRepository{db: db, cache: cache}
}

const questionColumns = `id, subject_id, level, type, question, options, correct_answer,
	code_template, language, test_cases, points, is_public`

func (r *questionRepository) GetByID(ctx context.Context, id int) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = ?`

	var question models.Question
	err := r.db.GetContext(ctx, &question, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("question not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

func (r *questionRepository) GetByIDs(ctx context.Context, ids []int) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+questionColumns+` FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	return questions, nil
}

func (r *questionRepository) SampleForLevel(ctx context.Context, subjectID int, level string, count int) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE subject_id = ? AND level = ? AND is_public = TRUE
		ORDER BY RAND() LIMIT ?`

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, subjectID, level, count); err != nil {
		return nil, fmt.Errorf("failed to sample questions: %w", err)
	}
	return questions, nil
}

// GetExam caches definitions briefly; they do not change during an exam.
func (r *questionRepository) GetExam(ctx context.Context, examID int) (*models.Exam, error) {
	cacheKey := fmt.Sprintf("exam:%d", examID)

	var cached models.Exam
	if r.cache != nil {
		if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	query := `SELECT id, title, subject_id, level, mode, duration, total_marks, passing_percentage,
		available_from, available_to, is_active FROM exams WHERE id = ?`

	var exam models.Exam
	err := r.db.GetContext(ctx, &exam, query, examID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("exam not found: %d", examID)
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, cacheKey, exam, 5*time.Minute)
	}
	return &exam, nil
}

func (r *questionRepository) GetExamQuestions(ctx context.Context, examID int) ([]models.Question, error) {
	query := `SELECT q.id, q.subject_id, q.level, q.type, q.question, q.options, q.correct_answer,
		q.code_template, q.language, q.test_cases, q.points, q.is_public
		FROM questions q
		JOIN exam_questions eq ON eq.question_id = q.id
		WHERE eq.exam_id = ? ORDER BY eq.position`

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, examID); err != nil {
		return nil, fmt.Errorf("failed to get exam questions: %w", err)
	}
	return questions, nil
}

func (r *questionRepository) ListActiveExams(ctx context.Context, now time.Time) ([]models.Exam, error) {
	query := `SELECT id, title, subject_id, level, mode, duration, total_marks, passing_percentage,
		available_from, available_to, is_active FROM exams
		WHERE is_active = TRUE AND available_from <= ? AND available_to >= ?`

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, now, now); err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	return exams, nil
}

func (r *questionRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	query := `SELECT id, name, code, is_active FROM subjects WHERE is_active = TRUE`

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return subjects, nil
}
