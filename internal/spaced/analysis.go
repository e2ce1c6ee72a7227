package spaced

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/storage"
)

type RecommendedAction string

const (
	ActionContinue  RecommendedAction = "continue"
	ActionIntensive RecommendedAction = "intensive"
	ActionReset     RecommendedAction = "reset"
	ActionSeekHelp  RecommendedAction = "seek_help"
)

type ForgettingAnalysis struct {
	ProblemID             uint              `json:"problem_id"`
	ForgettingFrequency   int               `json:"forgetting_frequency"`
	ProblematicStages     []int             `json:"problematic_stages"`
	RecoveryEffectiveness float64           `json:"recovery_effectiveness"`
	RecommendedAction     RecommendedAction `json:"recommended_action"`
}

// AnalyzeHistory summarises a problem's ledger as of today.
func AnalyzeHistory(history []storage.ReviewHistory, today time.Time) ForgettingAnalysis {
	since := addDays(storedDay(today), -forgettingWindowDays)

	var recent, remembered int
	byStage := map[int]int{}
	for _, h := range history {
		if h.Result != storage.ResultForgot {
			remembered++
			continue
		}
		if !storedDay(h.ReviewDate).Before(since) {
			recent++
		}
		stage := h.ReviewStage
		if h.ForgottenStage != nil {
			stage = *h.ForgottenStage
		}
		byStage[stage]++
	}

	problematic := []int{}
	for stage, n := range byStage {
		if n >= 2 {
			problematic = append(problematic, stage)
		}
	}
	sort.Slice(problematic, func(i, j int) bool {
		a, b := problematic[i], problematic[j]
		if byStage[a] != byStage[b] {
			return byStage[a] > byStage[b]
		}
		return a < b
	})

	var effectiveness float64
	if len(history) > 0 {
		effectiveness = float64(remembered) / float64(len(history)) * 100
	}

	action := ActionContinue
	switch {
	case recent >= 3:
		action = ActionSeekHelp
	case recent >= 2 || len(problematic) >= 2:
		action = ActionIntensive
	case effectiveness < 50 && len(history) >= 5:
		action = ActionReset
	}

	return ForgettingAnalysis{
		ForgettingFrequency:   recent,
		ProblematicStages:     problematic,
		RecoveryEffectiveness: effectiveness,
		RecommendedAction:     action,
	}
}

func (e *Engine) AnalyzeForgetting(ctx context.Context, problemID uint) (*ForgettingAnalysis, error) {
	if _, err := e.findProblem(ctx, problemID); err != nil {
		return nil, err
	}

	history, err := e.ledger.ReviewHistory(ctx, problemID)
	if err != nil {
		return nil, err
	}

	analysis := AnalyzeHistory(history, e.today())
	analysis.ProblemID = problemID
	return &analysis, nil
}

type ReviewStatistics struct {
	Date                      Date        `json:"date"`
	TotalProblemsInRotation   int         `json:"total_problems_in_rotation"`
	ProblemsDueToday          int         `json:"problems_due_today"`
	OverdueProblems           int         `json:"overdue_problems"`
	IntensiveRecoveryProblems int         `json:"intensive_recovery_problems"`
	ForgettingsByStage        map[int]int `json:"forgettings_by_stage"`
}

func (e *Engine) Statistics(ctx context.Context, target time.Time) (*ReviewStatistics, error) {
	if target.IsZero() {
		target = e.today()
	}
	target = storedDay(target)
	since := addDays(target, -forgettingWindowDays)

	candidates, err := e.ledger.QueueCandidates(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, "loading queue candidates")
	}

	stats := &ReviewStatistics{
		Date:               Date{target},
		ForgettingsByStage: map[int]int{},
	}
	for _, c := range candidates {
		if c.ScheduledDate != nil || c.ActiveCycle {
			stats.TotalProblemsInRotation++
		}
	}

	for _, item := range BuildQueue(candidates, target) {
		stats.ProblemsDueToday++
		if item.DaysOverdue > 0 {
			stats.OverdueProblems++
		}
		if item.ReviewType == IntensiveRecovery {
			stats.IntensiveRecoveryProblems++
		}
	}

	byStage, err := e.ledger.ForgettingsByStage(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, sc := range byStage {
		stats.ForgettingsByStage[sc.Stage] = sc.Count
	}

	return stats, nil
}
