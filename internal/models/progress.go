package models

import "time"

type LevelBadge struct {
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

type LevelProgress struct {
	Level          string     `json:"level"`
	Badge          LevelBadge `json:"badge"`
	Stars          int        `json:"stars"` // 0-10
	ExamsCompleted int        `json:"exams_completed"`
	AverageScore   float64    `json:"average_score"`
	PrestigePoints int        `json:"prestige_points"`
	LastUpdated    time.Time  `json:"last_updated"`
}

type SubjectProgress struct {
	SubjectID int              `json:"subject_id"`
	Levels    []*LevelProgress `json:"levels"`
}

type GenericBadge struct {
	BadgeID  string    `json:"badge_id"`
	Name     string    `json:"name"`
	Tier     string    `json:"tier"` // bronze, silver, gold, platinum
	EarnedAt time.Time `json:"earned_at"`
}

type ProgressStats struct {
	TotalExams      int        `json:"total_exams"`
	TotalViolations int        `json:"total_violations"`
	CurrentStreak   int        `json:"current_streak"`
	LastExamDate    *time.Time `json:"last_exam_date,omitempty"`
}

// StudentProgress is mutated only by the progress service, once per
// finished attempt. Numeric fields are recomputed; badges only append.
type StudentProgress struct {
	StudentID     int                `json:"student_id"`
	Subjects      []*SubjectProgress `json:"subjects"`
	TotalPrestige int                `json:"total_prestige"`
	GenericBadges []GenericBadge     `json:"generic_badges"`
	Stats         ProgressStats      `json:"stats"`
}

// SubjectEntry finds or creates the subject slot.
func (p *StudentProgress) SubjectEntry(subjectID int) *SubjectProgress {
	for _, s := range p.Subjects {
		if s.SubjectID == subjectID {
			return s
		}
	}
	entry := &SubjectProgress{SubjectID: subjectID}
	p.Subjects = append(p.Subjects, entry)
	return entry
}

// LevelEntry finds or creates the level slot within a subject.
func (s *SubjectProgress) LevelEntry(level string) *LevelProgress {
	for _, l := range s.Levels {
		if l.Level == level {
			return l
		}
	}
	entry := &LevelProgress{Level: level}
	s.Levels = append(s.Levels, entry)
	return entry
}

func (p *StudentProgress) HasBadge(badgeID string) bool {
	for _, b := range p.GenericBadges {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}
