package spaced

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amalrajan30/spacedcode/internal/storage"
)

const (
	// forgettingWindowDays bounds how far back forgettings count towards
	// escalation.
	forgettingWindowDays = 90

	// maxTimesForgotten is the ceiling of the rule lookup key: third and
	// later forgettings share the most severe prescription.
	maxTimesForgotten = 3

	maxTimeSpentMinutes = 300
)

var defaultRule = storage.ForgettingPattern{
	StageForgotten:       1,
	TimesForgotten:       1,
	ResetIntervalDays:    1,
	IntensiveReviewCount: 2,
	RecoveryNotes:        "Default recovery pattern",
}

// StaticRules serves the built-in reference tables from memory.
type StaticRules struct {
	Steps    []storage.ReviewSchedule
	Patterns []storage.ForgettingPattern
}

func NewStaticRules() *StaticRules {
	return &StaticRules{
		Steps:    storage.DefaultReviewSchedules(),
		Patterns: storage.DefaultForgettingPatterns(),
	}
}

func (r *StaticRules) ScheduleSteps(ctx context.Context) ([]storage.ReviewSchedule, error) {
	return r.Steps, nil
}

func (r *StaticRules) FindForgettingPattern(ctx context.Context, stage, times int) (*storage.ForgettingPattern, error) {
	for i := range r.Patterns {
		if r.Patterns[i].StageForgotten == stage && r.Patterns[i].TimesForgotten == times {
			p := r.Patterns[i]
			return &p, nil
		}
	}
	return nil, nil
}

func timesForgottenKey(priorForgettings int) int {
	return min(priorForgettings+1, maxTimesForgotten)
}

func urgencyLevel(priorForgettings, forgottenStage int) int {
	switch {
	case priorForgettings >= 2:
		return 5
	case forgottenStage <= 2:
		return 4
	case forgottenStage <= 4:
		return 3
	default:
		return 2
	}
}

func tierRecommendations(occurrence int) []string {
	switch occurrence {
	case 1:
		return []string{
			"Review the base pattern theory today",
			"Write out the algorithm step-by-step",
			"Practice 1-2 similar problems",
			"Focus on the key insight you missed",
			"Add pattern notes to your study guide",
		}
	case 2:
		return []string{
			"STUDY THE PATTERN FUNDAMENTALS TODAY",
			"Watch video explanation of the pattern",
			"Code the pattern template from memory",
			"Practice 3-4 similar problems this week",
			"Identify what specific part confuses you",
			"Consider if this pattern conflicts with another",
			"Create a pattern comparison chart",
		}
	default:
		return []string{
			"CRITICAL: COMPLETE PATTERN RE-LEARNING NEEDED",
			"Schedule focused study session (45+ minutes today)",
			"Start with easiest problems in this pattern",
			"Create your own pattern template/cheatsheet",
			"Practice 5+ similar problems over next week",
			"Consider getting additional learning resources",
			"May indicate fundamental conceptual gap",
			"Consider pairing this with mentor/study group review",
		}
	}
}

func stageRecommendations(stage int) []string {
	switch {
	case stage <= 2:
		return []string{
			"Focus on pattern recognition - the basic concept is not solid",
			"Practice the pattern on paper before coding",
			"Review similar problems you've solved successfully",
		}
	case stage <= 4:
		return []string{
			"Check for pattern interference with similar concepts",
			"Create a comparison chart with related patterns",
			"Practice edge cases and variations",
		}
	default:
		return []string{
			"Review the problem from first principles",
			"Check if the pattern has evolved or you learned new approaches",
			"Consider if this is still the optimal solution method",
		}
	}
}

var mistakeHints = []struct {
	keywords []string
	hint     string
}{
	{[]string{"edge case", "boundary"}, "Practice edge cases: empty arrays, single elements, duplicates"},
	{[]string{"time", "complexity"}, "Review time complexity analysis and optimization techniques"},
	{[]string{"logic", "algorithm"}, "Trace through the algorithm step-by-step with examples"},
	{[]string{"syntax", "implementation"}, "Practice coding the pattern template until it's automatic"},
}

func mistakeRecommendations(mistakes []string) []string {
	var out []string
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, m := range mistakes {
		lower := strings.ToLower(m)
		for _, h := range mistakeHints {
			if seen.Contains(h.hint) {
				continue
			}
			for _, kw := range h.keywords {
				if strings.Contains(lower, kw) {
					out = append(out, h.hint)
					seen.Add(h.hint)
					break
				}
			}
		}
	}
	return out
}

// StudyRecommendations is the escalation tier for the occurrence-th
// forgetting, followed by stage and mistake specific advice.
func StudyRecommendations(occurrence, stage int, mistakes []string) []string {
	recs := append([]string{}, tierRecommendations(occurrence)...)
	recs = append(recs, stageRecommendations(stage)...)
	return append(recs, mistakeRecommendations(mistakes)...)
}

func recoveryMessage(occurrence, stage int, rule storage.ForgettingPattern, recoveryDays int) string {
	switch occurrence {
	case 1:
		return fmt.Sprintf("STANDARD RESET: Forgot at stage %d. Reset to %d-day cycle with %d daily intensive reviews.",
			stage, rule.ResetIntervalDays, rule.IntensiveReviewCount)
	case 2:
		return fmt.Sprintf("CONCERNING PATTERN: Second forgetting at stage %d. Extended reset with %d daily intensive reviews. Pattern may be conflicting with others.",
			stage, rule.IntensiveReviewCount)
	default:
		return fmt.Sprintf("CRITICAL INTERVENTION: Third+ forgetting indicates fundamental pattern breakdown. Intensive %d-day recovery needed.",
			recoveryDays)
	}
}

func forgettingNote(stage, occurrence int, rule storage.ForgettingPattern, recoveryDays int, notes string) string {
	if notes == "" {
		notes = "No specific notes"
	}
	return fmt.Sprintf("FORGOT at stage %d. Count: %d. Reset plan: %d intensive reviews over %d days. Notes: %s",
		stage, occurrence, rule.IntensiveReviewCount, recoveryDays, notes)
}

// nextStage picks the stage to schedule after a remembered review. The
// immediate review after an initial solve (interval 0) stays on stage 1.
func nextStage(latest *storage.ReviewHistory, top int) int {
	if latest == nil {
		return 1
	}
	if latest.IntervalDays == 0 {
		return max(latest.ReviewStage, 1)
	}
	return min(latest.ReviewStage+1, top)
}

func stepFor(steps []storage.ReviewSchedule, stage int) (storage.ReviewSchedule, bool) {
	for _, s := range steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return storage.ReviewSchedule{}, false
}

func maxStage(steps []storage.ReviewSchedule) int {
	m := 0
	for _, s := range steps {
		m = max(m, s.Stage)
	}
	return m
}

// RecommendedStudyMinutes suggests how long to spend on a queue item.
func RecommendedStudyMinutes(reviewType ReviewType, priority, timesForgotten int) int {
	switch reviewType {
	case IntensiveRecovery:
		switch {
		case timesForgotten >= 5:
			return 30
		case timesForgotten >= 3:
			return 20
		default:
			return 15
		}
	case NormalReview:
		base := 10.0
		priorityMultiplier := float64(6-priority) * 0.5
		forgettingMultiplier := math.Min(float64(timesForgotten)*0.3, 1.5)
		return int(math.Round(base * (1 + priorityMultiplier + forgettingMultiplier)))
	case NotDue:
		return 0
	}
	return 0
}

// civilDay drops the clock part of t as seen in t's own location and
// returns that day at midnight UTC, the form every stored date takes.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// storedDay normalises a date read back from the store.
func storedDay(t time.Time) time.Time {
	return civilDay(t.UTC())
}

func addDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(storedDay(to).Sub(storedDay(from)).Hours() / 24))
}
