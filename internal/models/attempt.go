package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusInProgress    = "in_progress"
	StatusCompleted     = "completed"
	StatusAutoSubmitted = "auto_submitted"
	StatusBanned        = "banned"

	ModeStrict  = "strict"
	ModeLenient = "lenient"

	ViolationTabSwitch      = "tab_switch"
	ViolationFullscreenExit = "fullscreen_exit"
	ViolationWindowBlur     = "window_blur"
)

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusAutoSubmitted || status == StatusBanned
}

func IsValidViolationType(t string) bool {
	switch t {
	case ViolationTabSwitch, ViolationFullscreenExit, ViolationWindowBlur:
		return true
	}
	return false
}

// Violation keeps one record per distinct type; repeated detections bump
// Count and refresh Timestamp.
type Violation struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

type ViolationList []Violation

func (v ViolationList) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *ViolationList) Scan(src interface{}) error {
	switch raw := src.(type) {
	case []byte:
		return json.Unmarshal(raw, v)
	case string:
		return json.Unmarshal([]byte(raw), v)
	case nil:
		*v = nil
		return nil
	}
	return fmt.Errorf("unsupported type for ViolationList: %T", src)
}

func (v ViolationList) TotalCount() int {
	total := 0
	for _, rec := range v {
		total += rec.Count
	}
	return total
}

// CodeResultSummary is the redacted execution outcome stored with an
// answer; hidden-case content never lands here.
type CodeResultSummary struct {
	PassedCount int              `json:"passed_count"`
	TotalCount  int              `json:"total_count"`
	Results     []CaseResultView `json:"results,omitempty"`
}

type CaseResultView struct {
	Input           string  `json:"input"`
	ExpectedOutput  string  `json:"expected_output"`
	ActualOutput    string  `json:"actual_output"`
	Passed          bool    `json:"passed"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// AnswerRecord holds at most one entry per question; resubmission
// replaces the record.
type AnswerRecord struct {
	QuestionID   int                `json:"question_id"`
	Answer       string             `json:"answer"`
	IsCorrect    bool               `json:"is_correct"`
	PointsEarned float64            `json:"points_earned"`
	CodeResults  *CodeResultSummary `json:"code_results,omitempty"`
}

type AnswerList []AnswerRecord

func (a AnswerList) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *AnswerList) Scan(src interface{}) error {
	switch raw := src.(type) {
	case []byte:
		return json.Unmarshal(raw, a)
	case string:
		return json.Unmarshal([]byte(raw), a)
	case nil:
		*a = nil
		return nil
	}
	return fmt.Errorf("unsupported type for AnswerList: %T", src)
}

// ExamAttempt is the aggregate root of one timed run through a set of
// questions. ExamID is nil for general exams.
type ExamAttempt struct {
	ID              int           `db:"id" json:"id"`
	ExamID          *int          `db:"exam_id" json:"exam_id,omitempty"`
	StudentID       int           `db:"student_id" json:"student_id"`
	SubjectID       int           `db:"subject_id" json:"subject_id"`
	Level           string        `db:"level" json:"level"`
	Mode            string        `db:"mode" json:"mode"`
	StartTime       time.Time     `db:"start_time" json:"start_time"`
	EndTime         *time.Time    `db:"end_time" json:"end_time,omitempty"`
	TimeTaken       int           `db:"time_taken" json:"time_taken"` // whole seconds
	Answers         AnswerList    `db:"answers" json:"answers"`
	Violations      ViolationList `db:"violations" json:"violations"`
	TotalScore      float64       `db:"total_score" json:"total_score"`
	ScorePercentage float64       `db:"score_percentage" json:"score_percentage"`
	Status          string        `db:"status" json:"status"`
}

// AnswerFor returns the recorded answer for a question, or nil.
func (a *ExamAttempt) AnswerFor(questionID int) *AnswerRecord {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

// PutAnswer replaces the record for the question if one exists,
// otherwise appends. Last write wins.
func (a *ExamAttempt) PutAnswer(rec AnswerRecord) {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == rec.QuestionID {
			a.Answers[i] = rec
			return
		}
	}
	a.Answers = append(a.Answers, rec)
}

// RecordViolation increments the record of the same type or appends a
// new one with count 1, and returns the cross-type total afterwards.
func (a *ExamAttempt) RecordViolation(violationType string, now time.Time) int {
	for i := range a.Violations {
		if a.Violations[i].Type == violationType {
			a.Violations[i].Count++
			a.Violations[i].Timestamp = now
			return a.Violations.TotalCount()
		}
	}
	a.Violations = append(a.Violations, Violation{Type: violationType, Timestamp: now, Count: 1})
	return a.Violations.TotalCount()
}
