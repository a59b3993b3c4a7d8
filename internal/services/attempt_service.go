package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/models"

	"go.uber.org/zap"
)

var ErrExamUnavailable = errors.New("exam is not available at this time")

const (
	defaultQuestionCount   = 10
	generalExamDurationMin = 60
)

type attemptStore interface {
	Create(ctx context.Context, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, id int) (*models.ExamAttempt, error)
	Update(ctx context.Context, attempt *models.ExamAttempt) error
	FindInProgressByExam(ctx context.Context, studentID, examID int) (*models.ExamAttempt, error)
	FindInProgressByLevel(ctx context.Context, studentID, subjectID int, level string) (*models.ExamAttempt, error)
	ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error)
}

type questionStore interface {
	GetByID(ctx context.Context, id int) (*models.Question, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.Question, error)
	SampleForLevel(ctx context.Context, subjectID int, level string, count int) ([]models.Question, error)
	GetExam(ctx context.Context, examID int) (*models.Exam, error)
	GetExamQuestions(ctx context.Context, examID int) ([]models.Question, error)
}

type codeExecutor interface {
	Execute(ctx context.Context, code string, testCases []models.TestCase, language string) (*ExecutionReport, error)
}

type progressUpdater interface {
	UpdateProgress(ctx context.Context, studentID int, attempt *models.ExamAttempt) (*models.StudentProgress, error)
}

type startLocker interface {
	AcquireExam(ctx context.Context, studentID, examID int) (func(), error)
	AcquireLevel(ctx context.Context, studentID, subjectID int, level string) (func(), error)
}

// ProgressRetryQueue re-schedules a progress update that failed after an
// attempt was already sealed.
type ProgressRetryQueue interface {
	Enqueue(ctx context.Context, studentID, attemptID int) error
}

// attemptLocks serializes operations against the same attempt. Different
// attempts proceed fully independently.
type attemptLocks struct {
	m sync.Map
}

func (l *attemptLocks) lock(attemptID int) func() {
	v, _ := l.m.LoadOrStore(attemptID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AttemptService owns the exam-attempt state machine: in_progress is the
// only non-terminal state, and completed/auto_submitted/banned never
// transition away.
type AttemptService struct {
	attempts  attemptStore
	questions questionStore
	validator *CodeValidator
	sandbox   codeExecutor
	progress  progressUpdater
	startLock startLocker
	retry     ProgressRetryQueue

	locks attemptLocks
}

func NewAttemptService(attempts attemptStore, questions questionStore, validator *CodeValidator,
	sandbox codeExecutor, progress progressUpdater, startLock startLocker, retry ProgressRetryQueue) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		questions: questions,
		validator: validator,
		sandbox:   sandbox,
		progress:  progress,
		startLock: startLock,
		retry:     retry,
	}
}

type StartResult struct {
	AttemptID  int                   `json:"attempt_id"`
	ExamID     *int                  `json:"exam_id,omitempty"`
	Title      string                `json:"title,omitempty"`
	SubjectID  int                   `json:"subject_id"`
	Level      string                `json:"level"`
	Mode       string                `json:"mode"`
	Duration   int                   `json:"duration"`
	TotalMarks float64               `json:"total_marks"`
	Questions  []models.QuestionView `json:"questions"`
	StartTime  time.Time             `json:"start_time"`
}

// StartGeneralExam samples public questions for (subject, level) and
// opens a lenient-mode attempt with no exam definition.
func (s *AttemptService) StartGeneralExam(ctx context.Context, studentID, subjectID int, level string, questionCount int) (*StartResult, error) {
	if !models.IsValidLevel(level) {
		return nil, fmt.Errorf("invalid level: %s", level)
	}
	if questionCount <= 0 {
		questionCount = defaultQuestionCount
	}

	release, err := s.startLock.AcquireLevel(ctx, studentID, subjectID, level)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.attempts.FindInProgressByLevel(ctx, studentID, subjectID, level)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	questions, err := s.questions.SampleForLevel(ctx, subjectID, level, questionCount)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions available for this subject and level: %w", ErrNotFound)
	}

	attempt := &models.ExamAttempt{
		StudentID: studentID,
		SubjectID: subjectID,
		Level:     level,
		Mode:      models.ModeLenient,
		StartTime: time.Now(),
		Status:    models.StatusInProgress,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	return &StartResult{
		AttemptID:  attempt.ID,
		SubjectID:  subjectID,
		Level:      level,
		Mode:       attempt.Mode,
		Duration:   generalExamDurationMin,
		TotalMarks: sumPoints(questions),
		Questions:  sanitizeQuestions(questions),
		StartTime:  attempt.StartTime,
	}, nil
}

// StartDriveExam opens an attempt against a recruitment-drive exam
// definition, honoring its availability window and mode.
func (s *AttemptService) StartDriveExam(ctx context.Context, studentID, examID int) (*StartResult, error) {
	exam, err := s.questions.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !exam.AvailableAt(time.Now()) {
		return nil, ErrExamUnavailable
	}

	release, err := s.startLock.AcquireExam(ctx, studentID, examID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.attempts.FindInProgressByExam(ctx, studentID, examID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	questions, err := s.questions.GetExamQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	attempt := &models.ExamAttempt{
		ExamID:    &examID,
		StudentID: studentID,
		SubjectID: exam.SubjectID,
		Level:     exam.Level,
		Mode:      exam.Mode,
		StartTime: time.Now(),
		Status:    models.StatusInProgress,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	return &StartResult{
		AttemptID:  attempt.ID,
		ExamID:     &examID,
		Title:      exam.Title,
		SubjectID:  exam.SubjectID,
		Level:      exam.Level,
		Mode:       exam.Mode,
		Duration:   exam.Duration,
		TotalMarks: exam.TotalMarks,
		Questions:  sanitizeQuestions(questions),
		StartTime:  attempt.StartTime,
	}, nil
}

type SubmitResult struct {
	IsCorrect    bool                      `json:"is_correct"`
	PointsEarned float64                   `json:"points_earned"`
	CodeResults  *models.CodeResultSummary `json:"code_results,omitempty"`
}

// SubmitAnswer grades one question. Code answers pass the validator
// first; a failing verdict is surfaced without invoking the sandbox and
// without mutating the attempt. Resubmission replaces the prior record.
func (s *AttemptService) SubmitAnswer(ctx context.Context, studentID, attemptID, questionID int, answer string) (*SubmitResult, error) {
	unlock := s.locks.lock(attemptID)
	defer unlock()

	attempt, err := s.loadOpenAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	record := models.AnswerRecord{QuestionID: questionID, Answer: answer}

	switch question.Type {
	case models.QuestionTypeMCQ:
		record.IsCorrect = answer == question.CorrectAnswer
		if record.IsCorrect {
			record.PointsEarned = question.Points
		}

	case models.QuestionTypeCode:
		verdict := s.validator.Validate(answer, question.Language)
		if !verdict.Valid {
			if verdict.SecurityViolation {
				logger.Log.Warn("Code validation failed with security violation",
					zap.Int("student_id", studentID),
					zap.Int("attempt_id", attemptID),
					zap.Int("question_id", questionID),
					zap.String("reason", verdict.Error),
					zap.Bool("security_violation", true))
			}
			return nil, &ValidationError{Message: verdict.Error, SecurityViolation: verdict.SecurityViolation}
		}

		report, err := s.sandbox.Execute(ctx, answer, question.TestCases, question.Language)
		if err != nil {
			return nil, fmt.Errorf("code execution failed: %w", err)
		}

		record.IsCorrect = report.PassedCount == report.TotalCount
		record.PointsEarned = question.Points * float64(report.PassedCount) / float64(report.TotalCount)
		record.CodeResults = summarizeReport(report)

	default:
		return nil, fmt.Errorf("unknown question type: %s", question.Type)
	}

	attempt.PutAnswer(record)
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	return &SubmitResult{
		IsCorrect:    record.IsCorrect,
		PointsEarned: record.PointsEarned,
		CodeResults:  record.CodeResults,
	}, nil
}

type ViolationResult struct {
	Banned         bool `json:"banned"`
	Warning        bool `json:"warning"`
	ViolationCount int  `json:"violation_count"`
}

// ReportViolation records a proctoring detection. Strict mode bans on
// any violation; lenient mode warns on the first (summed across types)
// and bans from the second onward.
func (s *AttemptService) ReportViolation(ctx context.Context, studentID, attemptID int, violationType string) (*ViolationResult, error) {
	if !models.IsValidViolationType(violationType) {
		return nil, fmt.Errorf("invalid violation type: %s", violationType)
	}

	unlock := s.locks.lock(attemptID)
	defer unlock()

	attempt, err := s.loadOpenAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}

	total := attempt.RecordViolation(violationType, time.Now())

	result := &ViolationResult{ViolationCount: total}
	if attempt.Mode == models.ModeStrict {
		attempt.Status = models.StatusBanned
		result.Banned = true
	} else if total == 1 {
		result.Warning = true
	} else {
		attempt.Status = models.StatusBanned
		result.Banned = true
	}

	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	if result.Banned {
		logger.Log.Warn("Attempt banned for proctoring violations",
			zap.Int("student_id", studentID),
			zap.Int("attempt_id", attemptID),
			zap.String("violation_type", violationType),
			zap.Int("violation_count", total),
			zap.String("mode", attempt.Mode))
	}

	return result, nil
}

type FinishResult struct {
	TotalScore      float64 `json:"total_score"`
	ScorePercentage float64 `json:"score_percentage"`
	TimeTaken       int     `json:"time_taken"`
	Passed          bool    `json:"passed"`
}

// FinishAttempt seals the attempt and triggers the progress engine
// exactly once. A scoring failure never reopens the attempt: completion
// is persisted first and the update is retried out-of-band.
func (s *AttemptService) FinishAttempt(ctx context.Context, studentID, attemptID int, autoSubmitted bool) (*FinishResult, error) {
	unlock := s.locks.lock(attemptID)
	defer unlock()

	attempt, err := s.loadOpenAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}

	var totalScore float64
	for _, a := range attempt.Answers {
		totalScore += a.PointsEarned
	}

	totalMarks, passingPercentage, err := s.resolveTotalMarks(ctx, attempt)
	if err != nil {
		return nil, err
	}

	scorePercentage := 0.0
	if totalMarks > 0 {
		scorePercentage = totalScore / totalMarks * 100
	}

	now := time.Now()
	attempt.EndTime = &now
	attempt.TimeTaken = int(now.Sub(attempt.StartTime).Seconds())
	attempt.TotalScore = totalScore
	attempt.ScorePercentage = scorePercentage
	if autoSubmitted {
		attempt.Status = models.StatusAutoSubmitted
	} else {
		attempt.Status = models.StatusCompleted
	}

	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	if _, err := s.progress.UpdateProgress(ctx, studentID, attempt); err != nil {
		logger.Log.Error("Progress update failed after finish, scheduling retry",
			zap.Int("student_id", studentID),
			zap.Int("attempt_id", attemptID),
			zap.Error(err))
		if s.retry != nil {
			if qerr := s.retry.Enqueue(ctx, studentID, attemptID); qerr != nil {
				logger.Log.Error("Failed to enqueue progress retry",
					zap.Int("attempt_id", attemptID),
					zap.Error(qerr))
			}
		}
	}

	return &FinishResult{
		TotalScore:      totalScore,
		ScorePercentage: scorePercentage,
		TimeTaken:       attempt.TimeTaken,
		Passed:          scorePercentage >= passingPercentage,
	}, nil
}

// ListAttempts returns the student's attempt history, newest first.
func (s *AttemptService) ListAttempts(ctx context.Context, studentID int) ([]models.ExamAttempt, error) {
	return s.attempts.ListByStudent(ctx, studentID)
}

// GetAttempt returns the attempt for result views; hidden content was
// already redacted when answers were recorded.
func (s *AttemptService) GetAttempt(ctx context.Context, studentID, attemptID int) (*models.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil || attempt.StudentID != studentID {
		return nil, ErrNotFound
	}
	return attempt, nil
}

func (s *AttemptService) loadOpenAttempt(ctx context.Context, studentID, attemptID int) (*models.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotFound
	}
	if attempt.Status != models.StatusInProgress {
		return nil, ErrAttemptClosed
	}
	return attempt, nil
}

// resolveTotalMarks reads the exam definition when one exists, otherwise
// sums the points of the questions that were actually answered.
func (s *AttemptService) resolveTotalMarks(ctx context.Context, attempt *models.ExamAttempt) (totalMarks, passingPercentage float64, err error) {
	passingPercentage = masteryFloor

	if attempt.ExamID != nil {
		exam, err := s.questions.GetExam(ctx, *attempt.ExamID)
		if err != nil {
			return 0, 0, err
		}
		return exam.TotalMarks, exam.PassingPercentage, nil
	}

	ids := make([]int, 0, len(attempt.Answers))
	for _, a := range attempt.Answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return 0, 0, err
	}
	return sumPoints(questions), passingPercentage, nil
}

func sumPoints(questions []models.Question) float64 {
	var sum float64
	for _, q := range questions {
		sum += q.Points
	}
	return sum
}

func sanitizeQuestions(questions []models.Question) []models.QuestionView {
	views := make([]models.QuestionView, len(questions))
	for i := range questions {
		views[i] = questions[i].Sanitized()
	}
	return views
}

func summarizeReport(report *ExecutionReport) *models.CodeResultSummary {
	summary := &models.CodeResultSummary{
		PassedCount: report.PassedCount,
		TotalCount:  report.TotalCount,
	}
	for _, r := range report.Results {
		summary.Results = append(summary.Results, models.CaseResultView{
			Input:           r.Input,
			ExpectedOutput:  r.ExpectedOutput,
			ActualOutput:    r.ActualOutput,
			Passed:          r.Passed,
			Error:           r.Error,
			ExecutionTimeMs: float64(r.ExecutionTimeMs),
		})
	}
	return summary
}
