package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusgrid/internal/models"
)

type fakeProgressStore struct {
	doc     *models.StudentProgress
	saveErr error
	saves   int
}

func (s *fakeProgressStore) Get(ctx context.Context, studentID int) (*models.StudentProgress, error) {
	if s.doc == nil {
		return &models.StudentProgress{StudentID: studentID}, nil
	}
	return s.doc, nil
}

func (s *fakeProgressStore) Save(ctx context.Context, progress *models.StudentProgress) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.doc = progress
	return nil
}

type fakeHistory struct {
	attempts []models.ExamAttempt
}

func (h *fakeHistory) ListByStudent(ctx context.Context, studentID int) ([]models.ExamAttempt, error) {
	var out []models.ExamAttempt
	for _, a := range h.attempts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (h *fakeHistory) ListCompletedByLevel(ctx context.Context, studentID, subjectID int, level string, minPercentage float64) ([]models.ExamAttempt, error) {
	var out []models.ExamAttempt
	for _, a := range h.attempts {
		finished := a.Status == models.StatusCompleted || a.Status == models.StatusAutoSubmitted
		if a.StudentID == studentID && a.SubjectID == subjectID && a.Level == level &&
			finished && a.ScorePercentage >= minPercentage {
			out = append(out, a)
		}
	}
	return out, nil
}

func completedAt(t time.Time, score float64) models.ExamAttempt {
	return models.ExamAttempt{
		StudentID:       1,
		SubjectID:       7,
		Level:           "Beginner",
		Mode:            models.ModeLenient,
		Status:          models.StatusCompleted,
		EndTime:         &t,
		ScorePercentage: score,
	}
}

func TestCalculateStars(t *testing.T) {
	cases := []struct {
		name  string
		level string
		exams int
		score float64
		want  int
	}{
		{"no exams", "Beginner", 0, 100, 0},
		{"below mastery floor", "Beginner", 10, 58, 0},
		{"first star", "Beginner", 2, 60, 1},
		{"just under first star", "Beginner", 1, 99, 0},
		{"five stars", "Beginner", 10, 76, 5},
		{"ten stars", "Beginner", 25, 93, 10},
		{"score caps the tier", "Beginner", 25, 76, 5},
		{"master needs fewer exams", "Master", 1, 69, 1},
		{"master score floor scales", "Master", 1, 68, 0},
		{"unknown level falls back to beginner", "Legendary", 2, 60, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateStars(tc.level, tc.exams, tc.score); got != tc.want {
				t.Errorf("CalculateStars(%s, %d, %v) = %d, want %d", tc.level, tc.exams, tc.score, got, tc.want)
			}
		})
	}
}

func TestCalculateStarsReplacementNotAccumulation(t *testing.T) {
	// 12 exams at 80 avg is 6 stars; the same count at a worse average
	// drops back down.
	if got := CalculateStars("Beginner", 12, 80); got != 6 {
		t.Fatalf("expected 6 stars, got %d", got)
	}
	if got := CalculateStars("Beginner", 12, 66); got != 2 {
		t.Errorf("expected stars to drop to 2 with a lower average, got %d", got)
	}
}

func TestCalculatePrestige(t *testing.T) {
	progress := &models.StudentProgress{
		Subjects: []*models.SubjectProgress{
			{SubjectID: 1, Levels: []*models.LevelProgress{
				{Level: "Beginner", Stars: 3},
				{Level: "Master", Stars: 2},
			}},
			{SubjectID: 2, Levels: []*models.LevelProgress{
				{Level: "Advanced", Stars: 4},
			}},
		},
	}

	total := CalculatePrestige(progress)
	// 3*1 + 2*5 + 4*3
	if total != 25 {
		t.Errorf("expected prestige 25, got %d", total)
	}
	if progress.Subjects[0].Levels[1].PrestigePoints != 10 {
		t.Errorf("per-level prestige not written back: %+v", progress.Subjects[0].Levels[1])
	}
}

func TestUpdateProgressRecomputesLevel(t *testing.T) {
	now := time.Now()
	history := &fakeHistory{attempts: []models.ExamAttempt{
		completedAt(now.Add(-48*time.Hour), 70),
		completedAt(now.Add(-24*time.Hour), 80),
	}}
	store := &fakeProgressStore{}
	svc := NewProgressService(store, history)

	attempt := completedAt(now, 80)
	progress, err := svc.UpdateProgress(context.Background(), 1, &attempt)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	level := progress.SubjectEntry(7).LevelEntry("Beginner")
	if level.ExamsCompleted != 2 {
		t.Errorf("expected 2 counted exams, got %d", level.ExamsCompleted)
	}
	if level.AverageScore != 75 {
		t.Errorf("expected average 75, got %v", level.AverageScore)
	}
	if level.Stars != 1 {
		t.Errorf("expected 1 star, got %d", level.Stars)
	}
	if !level.Badge.Earned {
		t.Error("level badge should be earned at 1 star")
	}
	if progress.Stats.TotalExams != 2 {
		t.Errorf("expected total exams recomputed from history, got %d", progress.Stats.TotalExams)
	}
	if store.saves != 1 {
		t.Errorf("expected a single save, got %d", store.saves)
	}
}

func TestUpdateProgressLowScoreSkipsStars(t *testing.T) {
	store := &fakeProgressStore{}
	history := &fakeHistory{}
	svc := NewProgressService(store, history)

	now := time.Now()
	attempt := completedAt(now, 40)
	history.attempts = []models.ExamAttempt{attempt}

	progress, err := svc.UpdateProgress(context.Background(), 1, &attempt)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	level := progress.SubjectEntry(7).LevelEntry("Beginner")
	if level.Stars != 0 || level.ExamsCompleted != 0 {
		t.Errorf("a below-floor attempt must not touch star inputs: %+v", level)
	}
	if progress.Stats.TotalExams != 1 {
		t.Error("overall stats must still count the attempt")
	}
}

func TestUpdateProgressLevelBadgeIsPermanent(t *testing.T) {
	earnedAt := time.Now().Add(-time.Hour)
	store := &fakeProgressStore{doc: &models.StudentProgress{
		StudentID: 1,
		Subjects: []*models.SubjectProgress{
			{SubjectID: 7, Levels: []*models.LevelProgress{
				{Level: "Beginner", Stars: 1, Badge: models.LevelBadge{Earned: true, EarnedAt: &earnedAt}},
			}},
		},
	}}
	// Empty completed history drives the recomputed stars to zero.
	history := &fakeHistory{}
	svc := NewProgressService(store, history)

	now := time.Now()
	attempt := completedAt(now, 70)
	progress, err := svc.UpdateProgress(context.Background(), 1, &attempt)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	level := progress.SubjectEntry(7).LevelEntry("Beginner")
	if level.Stars != 0 {
		t.Errorf("stars should drop to 0 with no qualifying history, got %d", level.Stars)
	}
	if !level.Badge.Earned {
		t.Error("a lost star level must not revoke the badge")
	}
	if !level.Badge.EarnedAt.Equal(earnedAt) {
		t.Error("badge timestamp must not be rewritten")
	}
}

func TestUpdateProgressCountsViolations(t *testing.T) {
	store := &fakeProgressStore{}
	history := &fakeHistory{}
	svc := NewProgressService(store, history)

	now := time.Now()
	attempt := completedAt(now, 40)
	attempt.Violations = models.ViolationList{
		{Type: models.ViolationTabSwitch, Count: 3},
		{Type: models.ViolationWindowBlur, Count: 1},
	}
	history.attempts = []models.ExamAttempt{attempt}

	progress, err := svc.UpdateProgress(context.Background(), 1, &attempt)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if progress.Stats.TotalViolations != 2 {
		t.Errorf("expected 2 violation records counted, got %d", progress.Stats.TotalViolations)
	}
}

func TestUpdateProgressAutoSubmittedCountsTowardStars(t *testing.T) {
	now := time.Now()
	auto := completedAt(now, 80)
	auto.Status = models.StatusAutoSubmitted
	history := &fakeHistory{attempts: []models.ExamAttempt{
		completedAt(now.Add(-24*time.Hour), 70),
		auto,
	}}
	store := &fakeProgressStore{}
	svc := NewProgressService(store, history)

	progress, err := svc.UpdateProgress(context.Background(), 1, &auto)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	level := progress.SubjectEntry(7).LevelEntry("Beginner")
	if level.ExamsCompleted != 2 {
		t.Errorf("auto-submitted attempt must count toward its own star inputs, got %d", level.ExamsCompleted)
	}
	if level.AverageScore != 75 {
		t.Errorf("expected average 75, got %v", level.AverageScore)
	}
	if level.Stars != 1 {
		t.Errorf("expected 1 star, got %d", level.Stars)
	}
	if progress.Stats.TotalExams != 2 {
		t.Errorf("auto-submitted attempt must count in overall stats, got %d", progress.Stats.TotalExams)
	}
}

func TestUpdateProgressIsRerunSafe(t *testing.T) {
	now := time.Now()
	attempt := completedAt(now, 100)
	attempt.Violations = models.ViolationList{{Type: models.ViolationTabSwitch, Count: 1}}
	store := &fakeProgressStore{}
	history := &fakeHistory{attempts: []models.ExamAttempt{attempt}}
	svc := NewProgressService(store, history)

	if _, err := svc.UpdateProgress(context.Background(), 1, &attempt); err != nil {
		t.Fatalf("first update: %v", err)
	}
	progress, err := svc.UpdateProgress(context.Background(), 1, &attempt)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	level := progress.SubjectEntry(7).LevelEntry("Beginner")
	if level.ExamsCompleted != 1 {
		t.Errorf("re-run must not double-count exams toward stars, got %d", level.ExamsCompleted)
	}
	if progress.Stats.TotalExams != 1 {
		t.Errorf("re-run must not double-count total exams, got %d", progress.Stats.TotalExams)
	}
	if progress.Stats.TotalViolations != 1 {
		t.Errorf("re-run must not double-count violations, got %d", progress.Stats.TotalViolations)
	}

	seen := map[string]int{}
	for _, b := range progress.GenericBadges {
		seen[b.BadgeID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("badge %q awarded %d times", id, n)
		}
	}
	if seen["first_steps"] != 1 {
		t.Error("expected the first_steps badge exactly once")
	}
	if seen["perfectionist"] != 1 {
		t.Error("expected the perfectionist badge for a 100%% attempt")
	}
}

func TestUpdateProgressSaveFailurePropagates(t *testing.T) {
	store := &fakeProgressStore{saveErr: errors.New("db down")}
	svc := NewProgressService(store, &fakeHistory{})

	now := time.Now()
	attempt := completedAt(now, 70)
	if _, err := svc.UpdateProgress(context.Background(), 1, &attempt); err == nil {
		t.Error("expected the save error to propagate for the retry path")
	}
}

func TestCalculateStreak(t *testing.T) {
	day := func(offset int) time.Time {
		base := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, offset)
	}

	cases := []struct {
		name string
		days []int
		want int
	}{
		{"empty", nil, 0},
		{"single day", []int{0}, 1},
		{"three consecutive", []int{-2, -1, 0}, 3},
		{"gap breaks the chain", []int{-5, -1, 0}, 2},
		{"same day counts once", []int{0, 0, 0}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var attempts []models.ExamAttempt
			for _, d := range tc.days {
				attempts = append(attempts, completedAt(day(d), 80))
			}
			if got := calculateStreak(completedAttempts(attempts)); got != tc.want {
				t.Errorf("expected streak %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCheckGenericBadgesDiscipline(t *testing.T) {
	now := time.Now()
	var attempts []models.ExamAttempt
	for i := 0; i < 10; i++ {
		a := completedAt(now.Add(time.Duration(-i)*time.Minute), 90)
		a.Mode = models.ModeStrict
		attempts = append(attempts, a)
	}

	progress := &models.StudentProgress{StudentID: 1}
	earned := checkGenericBadges(progress, attempts, now)

	found := false
	for _, b := range earned {
		if b.BadgeID == "focus_keeper" {
			found = true
		}
	}
	if !found {
		t.Error("expected focus_keeper after 10 clean strict exams")
	}
}

func TestCheckGenericBadgesSpeed(t *testing.T) {
	now := time.Now()
	fast := completedAt(now, 95)
	fast.TimeTaken = 300

	earned := checkGenericBadges(&models.StudentProgress{StudentID: 1}, []models.ExamAttempt{fast}, now)

	found := false
	for _, b := range earned {
		if b.BadgeID == "speed_demon" {
			found = true
		}
	}
	if !found {
		t.Error("expected speed_demon for a fast high-scoring exam")
	}
}
