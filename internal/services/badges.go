package services

import (
	"time"

	"campusgrid/internal/models"
)

type countBadge struct {
	id   string
	name string
	tier string
	need int
}

var milestoneBadges = []countBadge{
	{"first_steps", "First Steps", "bronze", 1},
	{"exam_rookie", "Exam Rookie", "bronze", 10},
	{"exam_veteran", "Exam Veteran", "silver", 50},
	{"exam_master", "Exam Master", "gold", 100},
	{"exam_legend", "Exam Legend", "platinum", 200},
}

var streakBadges = []countBadge{
	{"dedicated_learner", "Dedicated Learner", "bronze", 3},
	{"streak_holder", "Streak Holder", "silver", 7},
	{"unstoppable", "Unstoppable", "gold", 14},
	{"marathon_runner", "Marathon Runner", "platinum", 30},
}

var prestigeBadges = []countBadge{
	{"rising_star", "Rising Star", "bronze", 100},
	{"prestige_hunter", "Prestige Hunter", "silver", 500},
	{"prestige_legend", "Prestige Legend", "gold", 1000},
	{"prestige_titan", "Prestige Titan", "platinum", 2500},
}

// checkGenericBadges evaluates the badge catalogue against the full
// attempt history and current snapshot. Each badge is awarded at most
// once and never revoked, so it only emits badges the student lacks.
func checkGenericBadges(progress *models.StudentProgress, attempts []models.ExamAttempt, now time.Time) []models.GenericBadge {
	var earned []models.GenericBadge
	completed := completedAttempts(attempts)

	award := func(id, name, tier string) {
		if progress.HasBadge(id) {
			return
		}
		for _, b := range earned {
			if b.BadgeID == id {
				return
			}
		}
		earned = append(earned, models.GenericBadge{BadgeID: id, Name: name, Tier: tier, EarnedAt: now})
	}

	// Milestones
	for _, b := range milestoneBadges {
		if progress.Stats.TotalExams >= b.need {
			award(b.id, b.name, b.tier)
		}
	}

	// Performance
	for _, a := range completed {
		if a.ScorePercentage == 100 {
			award("perfectionist", "Perfectionist", "gold")
			break
		}
	}
	if len(completed) >= 20 && recentAverage(completed, 20) >= 85 {
		award("consistent_performer", "Consistent Performer", "silver")
	}
	if len(completed) >= 30 && recentAverage(completed, 30) >= 90 {
		award("high_achiever", "High Achiever", "gold")
	}
	if len(completed) >= 50 && recentAverage(completed, 50) >= 95 {
		award("excellence_seeker", "Excellence Seeker", "platinum")
	}

	// Discipline
	strictClean := 0
	clean := 0
	for _, a := range completed {
		if len(a.Violations) == 0 {
			clean++
			if a.Mode == models.ModeStrict {
				strictClean++
			}
		}
	}
	if strictClean >= 10 {
		award("focus_keeper", "Focus Keeper", "gold")
	}
	if clean >= 25 {
		award("clean_record", "Clean Record", "silver")
	}
	if clean >= 50 {
		award("integrity_champion", "Integrity Champion", "platinum")
	}

	// Speed
	fast := 0
	quick := 0
	for _, a := range completed {
		if a.TimeTaken > 0 && a.TimeTaken < 600 && a.ScorePercentage >= 80 {
			fast++
		}
		if a.TimeTaken > 0 && a.TimeTaken < 900 && a.ScorePercentage >= 85 {
			quick++
		}
	}
	if fast >= 1 {
		award("speed_demon", "Speed Demon", "gold")
	}
	if quick >= 5 {
		award("quick_thinker", "Quick Thinker", "silver")
	}

	// Streaks
	streak := calculateStreak(completed)
	for _, b := range streakBadges {
		if streak >= b.need {
			award(b.id, b.name, b.tier)
		}
	}

	// Subject mastery
	subjectsWithStars := 0
	hasTenStars := false
	hasMasterTenStars := false
	for _, subject := range progress.Subjects {
		starred := false
		for _, level := range subject.Levels {
			if level.Stars > 0 {
				starred = true
			}
			if level.Stars == 10 {
				hasTenStars = true
				if level.Level == "Master" {
					hasMasterTenStars = true
				}
			}
		}
		if starred {
			subjectsWithStars++
		}
	}
	if subjectsWithStars >= 3 {
		award("polyglot", "Polyglot", "silver")
	}
	if subjectsWithStars >= 5 {
		award("renaissance_scholar", "Renaissance Scholar", "gold")
	}
	if hasTenStars {
		award("subject_master", "Subject Master", "platinum")
	}
	if hasMasterTenStars {
		award("grand_master", "Grand Master", "platinum")
	}

	// Prestige
	for _, b := range prestigeBadges {
		if progress.TotalPrestige >= b.need {
			award(b.id, b.name, b.tier)
		}
	}

	// Time of day
	weekendCount := 0
	for _, a := range completed {
		hour := a.EndTime.Hour()
		if hour < 8 {
			award("early_bird", "Early Bird", "bronze")
		}
		if hour >= 23 {
			award("night_owl", "Night Owl", "bronze")
		}
		day := a.EndTime.Weekday()
		if day == time.Saturday || day == time.Sunday {
			weekendCount++
		}
	}
	if weekendCount >= 10 {
		award("weekend_warrior", "Weekend Warrior", "silver")
	}

	return earned
}

// recentAverage averages the score of the most recent n completed
// attempts; callers guarantee len >= n.
func recentAverage(completed []models.ExamAttempt, n int) float64 {
	recent := completed[len(completed)-n:]
	var sum float64
	for _, a := range recent {
		sum += a.ScorePercentage
	}
	return sum / float64(n)
}
