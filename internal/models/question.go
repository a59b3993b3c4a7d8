package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	QuestionTypeMCQ  = "mcq"
	QuestionTypeCode = "code"
)

var Levels = []string{"Beginner", "Intermediate", "Advanced", "Master"}

func IsValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// TestCase is owned by the question. Hidden cases never surface raw
// content to the client.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden"`
}

type TestCaseList []TestCase

func (t TestCaseList) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TestCaseList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = nil
		return nil
	}
	return fmt.Errorf("unsupported type for TestCaseList: %T", src)
}

type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	}
	return fmt.Errorf("unsupported type for StringList: %T", src)
}

type Question struct {
	ID        int    `db:"id" json:"id"`
	SubjectID int    `db:"subject_id" json:"subject_id"`
	Level     string `db:"level" json:"level"`
	Type      string `db:"type" json:"type"`
	Question  string `db:"question" json:"question"`

	// MCQ fields
	Options       StringList `db:"options" json:"options,omitempty"`
	CorrectAnswer string     `db:"correct_answer" json:"-"`

	// Code fields
	CodeTemplate string       `db:"code_template" json:"code_template,omitempty"`
	Language     string       `db:"language" json:"language,omitempty"`
	TestCases    TestCaseList `db:"test_cases" json:"-"`

	Points   float64 `db:"points" json:"points"`
	IsPublic bool    `db:"is_public" json:"is_public"`
}

// Sanitized strips the answer key and test cases before a question is
// handed to an exam taker.
func (q *Question) Sanitized() QuestionView {
	return QuestionView{
		ID:           q.ID,
		Type:         q.Type,
		Question:     q.Question,
		Options:      q.Options,
		CodeTemplate: q.CodeTemplate,
		Language:     q.Language,
		Points:       q.Points,
	}
}

type QuestionView struct {
	ID           int        `json:"id"`
	Type         string     `json:"type"`
	Question     string     `json:"question"`
	Options      StringList `json:"options,omitempty"`
	CodeTemplate string     `json:"code_template,omitempty"`
	Language     string     `json:"language,omitempty"`
	Points       float64    `json:"points"`
}

// Exam is a recruitment-drive exam definition. General exams have no
// definition row; their questions are sampled at start time.
type Exam struct {
	ID                int       `db:"id" json:"id"`
	Title             string    `db:"title" json:"title"`
	SubjectID         int       `db:"subject_id" json:"subject_id"`
	Level             string    `db:"level" json:"level"`
	Mode              string    `db:"mode" json:"mode"`
	Duration          int       `db:"duration" json:"duration"` // minutes
	TotalMarks        float64   `db:"total_marks" json:"total_marks"`
	PassingPercentage float64   `db:"passing_percentage" json:"passing_percentage"`
	AvailableFrom     time.Time `db:"available_from" json:"available_from"`
	AvailableTo       time.Time `db:"available_to" json:"available_to"`
	IsActive          bool      `db:"is_active" json:"is_active"`
}

func (e *Exam) AvailableAt(now time.Time) bool {
	return e.IsActive && !now.Before(e.AvailableFrom) && !now.After(e.AvailableTo)
}

type Subject struct {
	ID       int    `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Code     string `db:"code" json:"code"`
	IsActive bool   `db:"is_active" json:"is_active"`
}
