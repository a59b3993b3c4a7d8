package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"campusgrid/internal/models"
)

type fakeAttemptStore struct {
	nextID   int
	attempts map[int]*models.ExamAttempt
	updates  int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{nextID: 1, attempts: make(map[int]*models.ExamAttempt)}
}

func (s *fakeAttemptStore) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	attempt.ID = s.nextID
	s.nextID++
	copied := *attempt
	s.attempts[copied.ID] = &copied
	return nil
}

func (s *fakeAttemptStore) GetByID(ctx context.Context, id int) (*models.ExamAttempt, error) {
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %d not found", id)
	}
	copied := *attempt
	return &copied, nil
}

func (s *fakeAttemptStore) Update(ctx context.Context, attempt *models.ExamAttempt) error {
	if _, ok := s.attempts[attempt.ID]; !ok {
		return fmt.Errorf("attempt %d not found", attempt.ID)
	}
	s.updates++
	copied := *attempt
	s.attempts[attempt.ID] = &copied
	return nil
}

func (s *fakeAttemptStore) FindInProgressByExam(ctx context.Context, studentID, examID int) (*models.ExamAttempt, error) {
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.ExamID != nil && *a.ExamID == examID && a.Status == models.StatusInProgress {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeAttemptStore) FindInProgressByLevel(ctx context.Context, studentID, subjectID int, level string) (*models.ExamAttempt, error) {
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.SubjectID == subjectID && a.Level == level && a.Status == models.StatusInProgress {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeAttemptStore) ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error) {
	var out []models.ExamAttempt
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeQuestionStore struct {
	questions map[int]models.Question
	exams     map[int]models.Exam
}

func (s *fakeQuestionStore) GetByID(ctx context.Context, id int) (*models.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %d not found", id)
	}
	return &q, nil
}

func (s *fakeQuestionStore) GetByIDs(ctx context.Context, ids []int) ([]models.Question, error) {
	var out []models.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) SampleForLevel(ctx context.Context, subjectID int, level string, count int) ([]models.Question, error) {
	var out []models.Question
	for _, q := range s.questions {
		if q.SubjectID == subjectID && q.Level == level && q.IsPublic {
			out = append(out, q)
		}
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) GetExam(ctx context.Context, examID int) (*models.Exam, error) {
	e, ok := s.exams[examID]
	if !ok {
		return nil, fmt.Errorf("exam %d not found", examID)
	}
	return &e, nil
}

func (s *fakeQuestionStore) GetExamQuestions(ctx context.Context, examID int) ([]models.Question, error) {
	var out []models.Question
	for _, q := range s.questions {
		out = append(out, q)
	}
	return out, nil
}

type fakeExecutor struct {
	report *ExecutionReport
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(ctx context.Context, code string, testCases []models.TestCase, language string) (*ExecutionReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeProgress struct {
	err   error
	calls int
}

func (f *fakeProgress) UpdateProgress(ctx context.Context, studentID int, attempt *models.ExamAttempt) (*models.StudentProgress, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.StudentProgress{StudentID: studentID}, nil
}

type fakeStartLock struct {
	held map[string]bool
}

func newFakeStartLock() *fakeStartLock {
	return &fakeStartLock{held: make(map[string]bool)}
}

func (f *fakeStartLock) acquire(key string) (func(), error) {
	if f.held[key] {
		return nil, ErrStartInProgress
	}
	f.held[key] = true
	return func() { delete(f.held, key) }, nil
}

func (f *fakeStartLock) AcquireExam(ctx context.Context, studentID, examID int) (func(), error) {
	return f.acquire(fmt.Sprintf("exam:%d:%d", studentID, examID))
}

func (f *fakeStartLock) AcquireLevel(ctx context.Context, studentID, subjectID int, level string) (func(), error) {
	return f.acquire(fmt.Sprintf("level:%d:%d:%s", studentID, subjectID, level))
}

type fakeRetryQueue struct {
	enqueued []int
}

func (f *fakeRetryQueue) Enqueue(ctx context.Context, studentID, attemptID int) error {
	f.enqueued = append(f.enqueued, attemptID)
	return nil
}

type attemptFixture struct {
	service   *AttemptService
	attempts  *fakeAttemptStore
	questions *fakeQuestionStore
	executor  *fakeExecutor
	progress  *fakeProgress
	retry     *fakeRetryQueue
}

func newAttemptFixture() *attemptFixture {
	f := &attemptFixture{
		attempts: newFakeAttemptStore(),
		questions: &fakeQuestionStore{
			questions: map[int]models.Question{
				1: {ID: 1, SubjectID: 7, Level: "Beginner", Type: models.QuestionTypeMCQ,
					Options: models.StringList{"a", "b", "c"}, CorrectAnswer: "b", Points: 2, IsPublic: true},
				2: {ID: 2, SubjectID: 7, Level: "Beginner", Type: models.QuestionTypeCode,
					Language: "python", Points: 3, IsPublic: true,
					TestCases: models.TestCaseList{
						{Input: "a", ExpectedOutput: "1"},
						{Input: "b", ExpectedOutput: "2"},
						{Input: "c", ExpectedOutput: "3", Hidden: true},
						{Input: "d", ExpectedOutput: "4", Hidden: true},
					}},
			},
			exams: map[int]models.Exam{
				5: {ID: 5, Title: "Backend Hiring Drive", SubjectID: 7, Level: "Intermediate",
					Mode: models.ModeStrict, Duration: 90, TotalMarks: 50, PassingPercentage: 70,
					AvailableFrom: time.Now().Add(-time.Hour), AvailableTo: time.Now().Add(time.Hour),
					IsActive: true},
			},
		},
		executor: &fakeExecutor{},
		progress: &fakeProgress{},
		retry:    &fakeRetryQueue{},
	}
	f.service = NewAttemptService(f.attempts, f.questions, NewCodeValidator(10000),
		f.executor, f.progress, newFakeStartLock(), f.retry)
	return f
}

func (f *attemptFixture) startGeneral(t *testing.T, studentID int) int {
	t.Helper()
	res, err := f.service.StartGeneralExam(context.Background(), studentID, 7, "Beginner", 10)
	if err != nil {
		t.Fatalf("StartGeneralExam: %v", err)
	}
	return res.AttemptID
}

func passReport(passed, total int) *ExecutionReport {
	results := make([]ExecutionResult, total)
	for i := range results {
		results[i].Passed = i < passed
	}
	return &ExecutionReport{
		Success:     true,
		Results:     results,
		PassedCount: passed,
		TotalCount:  total,
		Percentage:  float64(passed) / float64(total) * 100,
	}
}

func TestStartGeneralExamSanitizesQuestions(t *testing.T) {
	f := newAttemptFixture()

	res, err := f.service.StartGeneralExam(context.Background(), 1, 7, "Beginner", 10)
	if err != nil {
		t.Fatalf("StartGeneralExam: %v", err)
	}
	if res.Mode != models.ModeLenient {
		t.Errorf("general exams must be lenient, got %q", res.Mode)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(res.Questions))
	}
	if res.TotalMarks != 5 {
		t.Errorf("expected total marks 5, got %v", res.TotalMarks)
	}
}

func TestStartGeneralExamRejectsDuplicate(t *testing.T) {
	f := newAttemptFixture()
	f.startGeneral(t, 1)

	if _, err := f.service.StartGeneralExam(context.Background(), 1, 7, "Beginner", 10); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// A different student is unaffected.
	if _, err := f.service.StartGeneralExam(context.Background(), 2, 7, "Beginner", 10); err != nil {
		t.Errorf("second student should start cleanly: %v", err)
	}
}

func TestStartGeneralExamInvalidLevel(t *testing.T) {
	f := newAttemptFixture()
	if _, err := f.service.StartGeneralExam(context.Background(), 1, 7, "Wizard", 10); err == nil {
		t.Error("expected invalid level to be rejected")
	}
}

func TestStartDriveExamUsesDefinition(t *testing.T) {
	f := newAttemptFixture()

	res, err := f.service.StartDriveExam(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("StartDriveExam: %v", err)
	}
	if res.Mode != models.ModeStrict {
		t.Errorf("expected strict mode from the definition, got %q", res.Mode)
	}
	if res.Duration != 90 || res.TotalMarks != 50 {
		t.Errorf("definition fields not carried over: %+v", res)
	}

	if _, err := f.service.StartDriveExam(context.Background(), 1, 5); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate start, got %v", err)
	}
}

func TestStartDriveExamOutsideWindow(t *testing.T) {
	f := newAttemptFixture()
	exam := f.questions.exams[5]
	exam.AvailableTo = time.Now().Add(-time.Minute)
	f.questions.exams[5] = exam

	if _, err := f.service.StartDriveExam(context.Background(), 1, 5); !errors.Is(err, ErrExamUnavailable) {
		t.Errorf("expected ErrExamUnavailable, got %v", err)
	}
}

func TestSubmitAnswerMCQ(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	res, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 1, "b")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !res.IsCorrect || res.PointsEarned != 2 {
		t.Errorf("expected full credit, got %+v", res)
	}

	res, err = f.service.SubmitAnswer(context.Background(), 1, attemptID, 1, "a")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.IsCorrect || res.PointsEarned != 0 {
		t.Errorf("expected zero credit for a wrong answer, got %+v", res)
	}
}

func TestSubmitAnswerCodePartialCredit(t *testing.T) {
	f := newAttemptFixture()
	f.executor.report = passReport(2, 4)
	attemptID := f.startGeneral(t, 1)

	res, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 2, "print(input_data)")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.IsCorrect {
		t.Error("partial pass must not be marked correct")
	}
	if res.PointsEarned != 1.5 {
		t.Errorf("expected 3 * 2/4 = 1.5 points, got %v", res.PointsEarned)
	}
	if res.CodeResults == nil || res.CodeResults.PassedCount != 2 || res.CodeResults.TotalCount != 4 {
		t.Errorf("unexpected code summary: %+v", res.CodeResults)
	}
}

func TestSubmitAnswerCodeValidationFailureSkipsSandbox(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	_, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 2, "import os\nprint(1)")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !verr.SecurityViolation {
		t.Error("deny-list hit should be flagged as a security violation")
	}
	if f.executor.calls != 0 {
		t.Error("sandbox must not run when validation fails")
	}

	attempt, _ := f.attempts.GetByID(context.Background(), attemptID)
	if len(attempt.Answers) != 0 {
		t.Error("rejected submission must not be recorded")
	}
}

func TestSubmitAnswerResubmissionReplaces(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	if _, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 1, "a"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 1, "b"); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	attempt, _ := f.attempts.GetByID(context.Background(), attemptID)
	if len(attempt.Answers) != 1 {
		t.Fatalf("expected a single answer record, got %d", len(attempt.Answers))
	}
	if attempt.Answers[0].Answer != "b" || !attempt.Answers[0].IsCorrect {
		t.Errorf("last write must win: %+v", attempt.Answers[0])
	}
}

func TestSubmitAnswerWrongStudent(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	if _, err := f.service.SubmitAnswer(context.Background(), 99, attemptID, 1, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a foreign attempt, got %v", err)
	}
}

func TestReportViolationStrictBansImmediately(t *testing.T) {
	f := newAttemptFixture()
	res, err := f.service.StartDriveExam(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("StartDriveExam: %v", err)
	}

	vres, err := f.service.ReportViolation(context.Background(), 1, res.AttemptID, models.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}
	if !vres.Banned || vres.Warning {
		t.Errorf("strict mode must ban on the first violation: %+v", vres)
	}

	attempt, _ := f.attempts.GetByID(context.Background(), res.AttemptID)
	if attempt.Status != models.StatusBanned {
		t.Errorf("expected banned status, got %q", attempt.Status)
	}

	if _, err := f.service.SubmitAnswer(context.Background(), 1, res.AttemptID, 1, "b"); !errors.Is(err, ErrAttemptClosed) {
		t.Errorf("banned attempt must reject submissions, got %v", err)
	}
}

func TestReportViolationLenientEscalatesAcrossTypes(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	first, err := f.service.ReportViolation(context.Background(), 1, attemptID, models.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("first violation: %v", err)
	}
	if !first.Warning || first.Banned {
		t.Errorf("expected a warning on the first violation: %+v", first)
	}

	// A different violation type still escalates: the count is global.
	second, err := f.service.ReportViolation(context.Background(), 1, attemptID, models.ViolationWindowBlur)
	if err != nil {
		t.Fatalf("second violation: %v", err)
	}
	if !second.Banned {
		t.Errorf("expected a ban on the second violation: %+v", second)
	}
	if second.ViolationCount != 2 {
		t.Errorf("expected total count 2, got %d", second.ViolationCount)
	}
}

func TestReportViolationInvalidType(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	if _, err := f.service.ReportViolation(context.Background(), 1, attemptID, "coffee_break"); err == nil {
		t.Error("expected invalid violation type to be rejected")
	}
}

func TestFinishAttemptScoresAndSeals(t *testing.T) {
	f := newAttemptFixture()
	f.executor.report = passReport(4, 4)
	attemptID := f.startGeneral(t, 1)

	if _, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 1, "b"); err != nil {
		t.Fatalf("submit mcq: %v", err)
	}
	if _, err := f.service.SubmitAnswer(context.Background(), 1, attemptID, 2, "print(input_data)"); err != nil {
		t.Fatalf("submit code: %v", err)
	}

	res, err := f.service.FinishAttempt(context.Background(), 1, attemptID, false)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if res.TotalScore != 5 {
		t.Errorf("expected total score 5, got %v", res.TotalScore)
	}
	if res.ScorePercentage != 100 {
		t.Errorf("expected 100%%, got %v", res.ScorePercentage)
	}
	if !res.Passed {
		t.Error("expected a passing result")
	}

	attempt, _ := f.attempts.GetByID(context.Background(), attemptID)
	if attempt.Status != models.StatusCompleted {
		t.Errorf("expected completed status, got %q", attempt.Status)
	}
	if attempt.EndTime == nil {
		t.Error("end time must be set")
	}
	if f.progress.calls != 1 {
		t.Errorf("expected exactly one progress update, got %d", f.progress.calls)
	}

	if _, err := f.service.FinishAttempt(context.Background(), 1, attemptID, false); !errors.Is(err, ErrAttemptClosed) {
		t.Errorf("double finish must fail with ErrAttemptClosed, got %v", err)
	}
	if f.progress.calls != 1 {
		t.Error("double finish must not trigger a second progress update")
	}
}

func TestFinishAttemptAutoSubmitted(t *testing.T) {
	f := newAttemptFixture()
	attemptID := f.startGeneral(t, 1)

	if _, err := f.service.FinishAttempt(context.Background(), 1, attemptID, true); err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}

	attempt, _ := f.attempts.GetByID(context.Background(), attemptID)
	if attempt.Status != models.StatusAutoSubmitted {
		t.Errorf("expected auto_submitted status, got %q", attempt.Status)
	}
}

func TestFinishAttemptProgressFailureStillCompletes(t *testing.T) {
	f := newAttemptFixture()
	f.progress.err = errors.New("progress store down")
	attemptID := f.startGeneral(t, 1)

	res, err := f.service.FinishAttempt(context.Background(), 1, attemptID, false)
	if err != nil {
		t.Fatalf("a scoring failure must not fail the finish: %v", err)
	}
	if res == nil {
		t.Fatal("expected a finish result")
	}

	attempt, _ := f.attempts.GetByID(context.Background(), attemptID)
	if attempt.Status != models.StatusCompleted {
		t.Errorf("attempt must stay sealed, got %q", attempt.Status)
	}
	if len(f.retry.enqueued) != 1 || f.retry.enqueued[0] != attemptID {
		t.Errorf("expected one retry enqueued for the attempt, got %v", f.retry.enqueued)
	}
}
