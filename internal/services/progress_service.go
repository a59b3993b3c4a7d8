package services

import (
	"context"
	"math"
	"sort"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/models"

	"go.uber.org/zap"
)

// masteryFloor is the minimum score percentage for an attempt to count
// toward stars; lower scores still bump the overall stats.
const masteryFloor = 60.0

type starThreshold struct {
	exams int
	score float64
	stars int
}

// Baseline thresholds for Beginner; harder levels scale via multipliers.
var starThresholds = []starThreshold{
	{2, 60, 1},
	{4, 65, 2},
	{6, 70, 3},
	{8, 73, 4},
	{10, 76, 5},
	{12, 80, 6},
	{15, 83, 7},
	{18, 86, 8},
	{22, 90, 9},
	{25, 93, 10},
}

type levelMultiplier struct {
	exam  float64
	score float64
}

// Harder levels need fewer exams but a higher score floor.
var levelMultipliers = map[string]levelMultiplier{
	"Beginner":     {1.0, 1.0},
	"Intermediate": {0.8, 1.05},
	"Advanced":     {0.65, 1.1},
	"Master":       {0.5, 1.15},
}

var prestigeWeights = map[string]int{
	"Beginner":     1,
	"Intermediate": 2,
	"Advanced":     3,
	"Master":       5,
}

// CalculateStars returns the highest threshold satisfied: replacement,
// not accumulation, so a drop in average score lowers stars.
func CalculateStars(level string, examsCompleted int, averageScore float64) int {
	if examsCompleted == 0 || averageScore < masteryFloor {
		return 0
	}

	multiplier, ok := levelMultipliers[level]
	if !ok {
		multiplier = levelMultipliers["Beginner"]
	}

	stars := 0
	for _, threshold := range starThresholds {
		requiredExams := int(math.Ceil(float64(threshold.exams) * multiplier.exam))
		requiredScore := math.Min(100, threshold.score*multiplier.score)
		if examsCompleted >= requiredExams && averageScore >= requiredScore {
			stars = threshold.stars
		}
	}
	return stars
}

// CalculatePrestige recomputes totalPrestige and sets each level's
// prestigePoints as stars times the level weight.
func CalculatePrestige(progress *models.StudentProgress) int {
	total := 0
	for _, subject := range progress.Subjects {
		for _, level := range subject.Levels {
			weight, ok := prestigeWeights[level.Level]
			if !ok {
				weight = 1
			}
			level.PrestigePoints = level.Stars * weight
			total += level.PrestigePoints
		}
	}
	return total
}

type progressStore interface {
	Get(ctx context.Context, studentID int) (*models.StudentProgress, error)
	Save(ctx context.Context, progress *models.StudentProgress) error
}

type attemptHistory interface {
	ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error)
	ListCompletedByLevel(ctx context.Context, studentID, subjectID int, level string, minPercentage float64) ([]models.ExamAttempt, error)
}

// ProgressService recomputes a student's reward ledger after each
// finished attempt. Deterministic over the attempt history, so a crashed
// update can be re-run safely; it only appends badges and rewrites
// numeric fields.
type ProgressService struct {
	progressRepo progressStore
	attempts     attemptHistory
}

func NewProgressService(progressRepo progressStore, attempts attemptHistory) *ProgressService {
	return &ProgressService{progressRepo: progressRepo, attempts: attempts}
}

func (s *ProgressService) UpdateProgress(ctx context.Context, studentID int, attempt *models.ExamAttempt) (*models.StudentProgress, error) {
	progress, err := s.progressRepo.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	levelEntry := progress.SubjectEntry(attempt.SubjectID).LevelEntry(attempt.Level)

	if attempt.ScorePercentage >= masteryFloor {
		levelAttempts, err := s.attempts.ListCompletedByLevel(ctx, studentID, attempt.SubjectID, attempt.Level, masteryFloor)
		if err != nil {
			return nil, err
		}

		levelEntry.ExamsCompleted = len(levelAttempts)
		levelEntry.AverageScore = 0
		if len(levelAttempts) > 0 {
			var sum float64
			for _, a := range levelAttempts {
				sum += a.ScorePercentage
			}
			levelEntry.AverageScore = sum / float64(len(levelAttempts))
		}

		oldStars := levelEntry.Stars
		levelEntry.Stars = CalculateStars(attempt.Level, levelEntry.ExamsCompleted, levelEntry.AverageScore)
		if levelEntry.Stars != oldStars {
			logger.Log.Info("Star level changed",
				zap.Int("student_id", studentID),
				zap.String("level", attempt.Level),
				zap.Int("old_stars", oldStars),
				zap.Int("new_stars", levelEntry.Stars))
		}

		// Level badge is permanent once earned.
		if levelEntry.Stars >= 1 && !levelEntry.Badge.Earned {
			levelEntry.Badge.Earned = true
			earnedAt := now
			levelEntry.Badge.EarnedAt = &earnedAt
		}
	}
	levelEntry.LastUpdated = now

	allAttempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	// Stats are recomputed from the full history, never incremented, so
	// re-running after a crash mid-update cannot double count.
	progress.Stats.TotalExams = 0
	progress.Stats.TotalViolations = 0
	for _, a := range allAttempts {
		if a.Status == models.StatusCompleted || a.Status == models.StatusAutoSubmitted {
			progress.Stats.TotalExams++
			progress.Stats.TotalViolations += len(a.Violations)
		}
	}
	lastExam := now
	progress.Stats.LastExamDate = &lastExam

	progress.TotalPrestige = CalculatePrestige(progress)

	completed := completedAttempts(allAttempts)
	progress.Stats.CurrentStreak = calculateStreak(completed)

	newBadges := checkGenericBadges(progress, allAttempts, now)
	progress.GenericBadges = append(progress.GenericBadges, newBadges...)

	if err := s.progressRepo.Save(ctx, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// GetProgress returns the current snapshot without mutating anything.
func (s *ProgressService) GetProgress(ctx context.Context, studentID int) (*models.StudentProgress, error) {
	return s.progressRepo.Get(ctx, studentID)
}

// completedAttempts filters and sorts ascending by end time.
func completedAttempts(attempts []models.ExamAttempt) []models.ExamAttempt {
	var completed []models.ExamAttempt
	for _, a := range attempts {
		if a.Status == models.StatusCompleted && a.EndTime != nil {
			completed = append(completed, a)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].EndTime.Before(*completed[j].EndTime)
	})
	return completed
}

// calculateStreak counts consecutive calendar days with at least one
// completed exam, walking backwards from the most recent one.
func calculateStreak(completed []models.ExamAttempt) int {
	if len(completed) == 0 {
		return 0
	}

	truncate := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}

	streak := 1
	current := truncate(*completed[len(completed)-1].EndTime)
	for i := len(completed) - 2; i >= 0; i-- {
		day := truncate(*completed[i].EndTime)
		diff := int(current.Sub(day).Hours() / 24)
		if diff == 1 {
			streak++
			current = day
		} else if diff > 1 {
			break
		}
	}
	return streak
}
