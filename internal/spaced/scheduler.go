package spaced

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

const initialSolveNote = "Initial solve - scheduled for immediate review today"

// Engine is the spaced repetition scheduler. It keeps no state of its own;
// every call recomputes from the ledger.
type Engine struct {
	ledger ReviewLedgerStore
	rules  RecoveryRuleStore
	now    func() time.Time
	loc    *time.Location
	log    *logger.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone in which "today" is decided.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(ledger ReviewLedgerStore, rules RecoveryRuleStore, opts ...Option) *Engine {
	e := &Engine{
		ledger: ledger,
		rules:  rules,
		now:    time.Now,
		loc:    time.UTC,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "SchedulerEngine")
	return e
}

func (e *Engine) today() time.Time {
	return civilDay(e.now().In(e.loc))
}

// Today is the civil day the engine currently considers "today".
func (e *Engine) Today() Date {
	return Date{e.today()}
}

func (e *Engine) lockProblem(ctx context.Context, id uint) (*storage.Problem, error) {
	p, err := e.ledger.LockProblem(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "problem %d", id)
		}
		return nil, err
	}
	return p, nil
}

// ScheduleInitialReview writes the stage 1 entry for a freshly solved
// problem. Calling it twice writes two entries.
func (e *Engine) ScheduleInitialReview(ctx context.Context, problemID uint) (*InitialSchedule, error) {
	var out *InitialSchedule
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		if _, err := e.lockProblem(ctx, problemID); err != nil {
			return err
		}
		var err error
		out, err = e.scheduleInitial(ctx, problemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) scheduleInitial(ctx context.Context, problemID uint) (*InitialSchedule, error) {
	today := e.today()

	entry := &storage.ReviewHistory{
		ProblemID:           problemID,
		ReviewDate:          today,
		Result:              storage.ResultRemembered,
		ReviewStage:         1,
		ScheduledReviewTime: today,
		IntervalDays:        0,
		ReviewNotes:         initialSolveNote,
	}
	if err := e.ledger.AppendReview(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "scheduling initial review")
	}

	e.log.Info("Initial review scheduled", "problem_id", problemID, "date", today.Format(time.DateOnly))

	return &InitialSchedule{
		ScheduledDate: Date{today},
		ReviewStage:   1,
		Message:       fmt.Sprintf("Problem scheduled for first review on %s", today.Format(time.DateOnly)),
	}, nil
}

// MarkSolved flips the solved flag and schedules the initial review on a
// false to true transition only.
func (e *Engine) MarkSolved(ctx context.Context, problemID uint, solved bool) (*SolveOutcome, error) {
	out := &SolveOutcome{ProblemID: problemID, Solved: solved}
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		problem, err := e.lockProblem(ctx, problemID)
		if err != nil {
			return err
		}
		if err := e.ledger.SetSolved(ctx, problemID, solved); err != nil {
			return err
		}
		if solved && !problem.Solved {
			out.Initial, err = e.scheduleInitial(ctx, problemID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateTimeSpent(minutes *int) error {
	if minutes != nil && (*minutes < 0 || *minutes > maxTimeSpentMinutes) {
		return invalid("time spent must be between 0 and %d minutes", maxTimeSpentMinutes)
	}
	return nil
}

func (e *Engine) recoveryRule(ctx context.Context, stage, times int) (storage.ForgettingPattern, error) {
	rule, err := e.rules.FindForgettingPattern(ctx, stage, times)
	if err != nil {
		return storage.ForgettingPattern{}, errors.Wrap(err, "looking up forgetting pattern")
	}
	if rule == nil {
		e.log.Warn("No forgetting pattern, using default", "stage", stage, "times", times)
		return defaultRule, nil
	}
	if rule.ResetIntervalDays < 1 || rule.IntensiveReviewCount < 1 {
		return storage.ForgettingPattern{}, errors.Wrapf(ErrInternal, "forgetting pattern (%d,%d) is malformed", stage, times)
	}
	return *rule, nil
}

// HandleForgettingEvent records a forgot outcome, prescribes a recovery
// and opens (or restarts) the problem's intensive cycle.
func (e *Engine) HandleForgettingEvent(ctx context.Context, event ForgettingEvent) (*RecoveryPlan, error) {
	if event.ForgottenStage < 1 {
		return nil, invalid("forgotten stage must be at least 1, got %d", event.ForgottenStage)
	}
	if err := validateTimeSpent(event.TimeSpentMinutes); err != nil {
		return nil, err
	}

	var plan *RecoveryPlan
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		var err error
		plan, err = e.handleForgetting(ctx, event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) handleForgetting(ctx context.Context, event ForgettingEvent) (*RecoveryPlan, error) {
	if _, err := e.lockProblem(ctx, event.ProblemID); err != nil {
		return nil, err
	}

	now := e.now()
	today := e.today()
	stage := event.ForgottenStage

	prior, err := e.ledger.CountForgettings(ctx, event.ProblemID, addDays(today, -forgettingWindowDays))
	if err != nil {
		return nil, err
	}
	occurrence := prior + 1

	rule, err := e.recoveryRule(ctx, stage, timesForgottenKey(prior))
	if err != nil {
		return nil, err
	}

	next := addDays(today, rule.ResetIntervalDays)
	recoveryDays := rule.IntensiveReviewCount * rule.ResetIntervalDays

	var delayHours float64
	if stage > 1 {
		previous, err := e.ledger.LatestReview(ctx, event.ProblemID)
		if err != nil {
			return nil, err
		}
		if previous != nil {
			delayHours = max(now.Sub(previous.ScheduledReviewTime).Hours(), 0)
		}
	}

	entry := &storage.ReviewHistory{
		ProblemID:           event.ProblemID,
		ReviewDate:          today,
		Result:              storage.ResultForgot,
		ReviewStage:         1,
		ForgottenStage:      &stage,
		ScheduledReviewTime: next,
		IntervalDays:        rule.ResetIntervalDays,
		ReviewNotes:         forgettingNote(stage, occurrence, rule, recoveryDays, event.ConfusionNotes),
		ActualDelayHours:    delayHours,
		TimeSpentMinutes:    event.TimeSpentMinutes,
	}
	if err := e.ledger.AppendReview(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "recording forgetting event")
	}

	if err := e.openCycle(ctx, event.ProblemID, rule, today); err != nil {
		return nil, err
	}

	if len(event.SpecificMistakes) > 0 {
		mistakes := make([]storage.Mistake, 0, len(event.SpecificMistakes))
		for _, m := range event.SpecificMistakes {
			mistakes = append(mistakes, storage.Mistake{
				ProblemID:       event.ProblemID,
				Description:     m,
				MistakeType:     "logic_error",
				ReviewSessionID: entry.ID,
			})
		}
		if err := e.ledger.AppendMistakes(ctx, mistakes); err != nil {
			return nil, err
		}
	}

	e.log.Info("Forgetting event recorded",
		"problem_id", event.ProblemID,
		"stage", stage,
		"occurrence", occurrence,
		"intensive_reviews", rule.IntensiveReviewCount,
	)

	return &RecoveryPlan{
		RecoveryPlan:           recoveryMessage(occurrence, stage, rule, recoveryDays),
		NextReviewDate:         Date{next},
		IntensiveReviewsNeeded: rule.IntensiveReviewCount,
		StudyRecommendations:   StudyRecommendations(occurrence, stage, event.SpecificMistakes),
		UrgencyLevel:           urgencyLevel(prior, stage),
		EstimatedRecoveryDays:  recoveryDays,
	}, nil
}

// openCycle keeps a single active cycle per problem: an existing one is
// restarted with the new prescription.
func (e *Engine) openCycle(ctx context.Context, problemID uint, rule storage.ForgettingPattern, today time.Time) error {
	active, err := e.ledger.ActiveCycle(ctx, problemID)
	if err != nil {
		return err
	}
	if active != nil {
		active.CyclesRemaining = rule.IntensiveReviewCount
		active.CycleIntervalDays = rule.ResetIntervalDays
		active.StartedDate = today
		return e.ledger.SaveCycle(ctx, active)
	}
	return e.ledger.CreateCycle(ctx, &storage.IntensiveRecoveryCycle{
		ProblemID:         problemID,
		CyclesRemaining:   rule.IntensiveReviewCount,
		CycleIntervalDays: rule.ResetIntervalDays,
		StartedDate:       today,
	})
}

func withNotes(msg, notes string) string {
	if notes == "" {
		return msg
	}
	return msg + ". Notes: " + notes
}

// ProcessDailyIntensiveRecovery applies one day's intensive review outcome
// to the problem's active cycle.
func (e *Engine) ProcessDailyIntensiveRecovery(ctx context.Context, problemID uint, result storage.ReviewResult, notes string) (*RecoveryStatus, error) {
	if _, err := storage.ParseReviewResult(string(result)); err != nil {
		return nil, errors.Wrap(ErrValidation, err.Error())
	}

	var status *RecoveryStatus
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		if _, err := e.lockProblem(ctx, problemID); err != nil {
			return err
		}
		var err error
		status, err = e.processIntensive(ctx, problemID, result, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (e *Engine) processIntensive(ctx context.Context, problemID uint, result storage.ReviewResult, notes string) (*RecoveryStatus, error) {
	today := e.today()

	cycle, err := e.ledger.ActiveCycle(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return &RecoveryStatus{
			Status:           "No intensive cycle active",
			NextReviewDate:   Date{today},
			GraduationStatus: "Normal review cycle",
		}, nil
	}

	switch result {
	case storage.ResultRemembered:
		remaining := cycle.CyclesRemaining - 1
		cycle.CyclesRemaining = max(remaining, 0)

		if remaining <= 0 {
			completed := today
			cycle.CompletedDate = &completed
			if err := e.ledger.SaveCycle(ctx, cycle); err != nil {
				return nil, err
			}

			next := addDays(today, 1)
			err := e.ledger.AppendReview(ctx, &storage.ReviewHistory{
				ProblemID:           problemID,
				ReviewDate:          today,
				Result:              storage.ResultRemembered,
				ReviewStage:         1,
				ScheduledReviewTime: next,
				IntervalDays:        1,
				ReviewNotes:         withNotes("Graduated from intensive recovery - starting normal daily cycle", notes),
			})
			if err != nil {
				return nil, errors.Wrap(err, "recording graduation")
			}

			e.log.Info("Graduated from intensive recovery", "problem_id", problemID, "cycle_id", cycle.ID)

			return &RecoveryStatus{
				Status:           "GRADUATED from intensive recovery",
				CyclesRemaining:  0,
				NextReviewDate:   Date{next},
				GraduationStatus: "Ready for normal spaced repetition cycle",
				Graduated:        true,
			}, nil
		}

		if err := e.ledger.SaveCycle(ctx, cycle); err != nil {
			return nil, err
		}

		next := addDays(today, cycle.CycleIntervalDays)
		err := e.ledger.AppendReview(ctx, &storage.ReviewHistory{
			ProblemID:           problemID,
			ReviewDate:          today,
			Result:              storage.ResultRemembered,
			ReviewStage:         1,
			ScheduledReviewTime: next,
			IntervalDays:        cycle.CycleIntervalDays,
			ReviewNotes:         withNotes(fmt.Sprintf("Intensive review remembered - %d remaining", remaining), notes),
		})
		if err != nil {
			return nil, errors.Wrap(err, "recording intensive review")
		}

		return &RecoveryStatus{
			Status:               fmt.Sprintf("Intensive cycle continues - %d daily reviews remaining", remaining),
			CyclesRemaining:      remaining,
			NextReviewDate:       Date{next},
			GraduationStatus:     "Still in recovery mode",
			DaysUntilNormalCycle: remaining,
		}, nil

	case storage.ResultForgot:
		// Restarts always use the first-forgetting baseline prescription.
		baseline, err := e.recoveryRule(ctx, 1, 1)
		if err != nil {
			return nil, err
		}

		cycle.CyclesRemaining = baseline.IntensiveReviewCount
		cycle.StartedDate = today
		if err := e.ledger.SaveCycle(ctx, cycle); err != nil {
			return nil, err
		}

		next := addDays(today, cycle.CycleIntervalDays)

		// A failed day only restarts the cycle. The ledger is left alone so the
		// 90-day forgetting count sees real forgettings only.
		e.log.Info("Intensive cycle restarted", "problem_id", problemID, "cycle_id", cycle.ID, "notes", notes)

		return &RecoveryStatus{
			Status:               "FAILED intensive review - cycle restarted",
			CyclesRemaining:      cycle.CyclesRemaining,
			NextReviewDate:       Date{next},
			GraduationStatus:     "Extended recovery needed",
			DaysUntilNormalCycle: baseline.IntensiveReviewCount,
		}, nil
	}

	return nil, errors.Wrapf(ErrValidation, "unknown result %q", result)
}

// AdvanceReview moves a problem with no active cycle one stage up after a
// remembered review.
func (e *Engine) AdvanceReview(ctx context.Context, problemID uint, timeSpent *int, notes string) (*StageAdvance, error) {
	if err := validateTimeSpent(timeSpent); err != nil {
		return nil, err
	}

	var out *StageAdvance
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		if _, err := e.lockProblem(ctx, problemID); err != nil {
			return err
		}
		var err error
		out, err = e.advance(ctx, problemID, timeSpent, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) advance(ctx context.Context, problemID uint, timeSpent *int, notes string) (*StageAdvance, error) {
	steps, err := e.rules.ScheduleSteps(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading review schedule")
	}
	if len(steps) == 0 {
		return nil, errors.Wrap(ErrInternal, "review schedule is empty")
	}

	latest, err := e.ledger.LatestReview(ctx, problemID)
	if err != nil {
		return nil, err
	}

	stage := nextStage(latest, maxStage(steps))
	step, ok := stepFor(steps, stage)
	if !ok {
		return nil, errors.Wrapf(ErrInternal, "no review schedule for stage %d", stage)
	}

	today := e.today()
	next := addDays(today, step.IntervalDays)
	msg := fmt.Sprintf("Advanced to stage %d - next review in %d days", stage, step.IntervalDays)

	err = e.ledger.AppendReview(ctx, &storage.ReviewHistory{
		ProblemID:           problemID,
		ReviewDate:          today,
		Result:              storage.ResultRemembered,
		ReviewStage:         stage,
		ScheduledReviewTime: next,
		IntervalDays:        step.IntervalDays,
		ReviewNotes:         withNotes(msg, notes),
		TimeSpentMinutes:    timeSpent,
	})
	if err != nil {
		return nil, errors.Wrap(err, "recording review")
	}

	previous := 0
	if latest != nil {
		previous = latest.ReviewStage
	}

	return &StageAdvance{
		PreviousStage:  previous,
		Stage:          stage,
		IntervalDays:   step.IntervalDays,
		NextReviewDate: Date{next},
		Message:        msg,
	}, nil
}

// RecordReview routes one review outcome: forgot goes to the forgetting
// handler, remembered goes to the active intensive cycle if there is one
// and to the normal stage progression otherwise.
func (e *Engine) RecordReview(ctx context.Context, sub ReviewSubmission) (*ReviewOutcome, error) {
	if _, err := storage.ParseReviewResult(string(sub.Result)); err != nil {
		return nil, errors.Wrap(ErrValidation, err.Error())
	}
	if err := validateTimeSpent(sub.TimeSpentMinutes); err != nil {
		return nil, err
	}

	out := &ReviewOutcome{Result: sub.Result}
	err := e.ledger.Transact(ctx, func(ctx context.Context) error {
		if _, err := e.lockProblem(ctx, sub.ProblemID); err != nil {
			return err
		}

		switch sub.Result {
		case storage.ResultForgot:
			stage := 1
			latest, err := e.ledger.LatestReview(ctx, sub.ProblemID)
			if err != nil {
				return err
			}
			if latest != nil {
				stage = max(latest.ReviewStage, 1)
			}
			plan, err := e.handleForgetting(ctx, ForgettingEvent{
				ProblemID:        sub.ProblemID,
				ForgottenStage:   stage,
				TimeSpentMinutes: sub.TimeSpentMinutes,
				ConfusionNotes:   sub.Notes,
				SpecificMistakes: sub.SpecificMistakes,
			})
			if err != nil {
				return err
			}
			out.Plan = plan
			out.NextReviewDate = plan.NextReviewDate
			out.Message = plan.RecoveryPlan
			out.IntensiveRecovery = true
			return nil

		case storage.ResultRemembered:
			cycle, err := e.ledger.ActiveCycle(ctx, sub.ProblemID)
			if err != nil {
				return err
			}
			if cycle != nil {
				status, err := e.processIntensive(ctx, sub.ProblemID, storage.ResultRemembered, sub.Notes)
				if err != nil {
					return err
				}
				out.Cycle = status
				out.NextReviewDate = status.NextReviewDate
				out.Message = status.Status
				out.IntensiveRecovery = !status.Graduated
				return nil
			}

			adv, err := e.advance(ctx, sub.ProblemID, sub.TimeSpentMinutes, sub.Notes)
			if err != nil {
				return err
			}
			out.Advance = adv
			out.NextReviewDate = adv.NextReviewDate
			out.Message = adv.Message
			return nil
		}
		return errors.Wrapf(ErrValidation, "unknown result %q", sub.Result)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) ReviewHistory(ctx context.Context, problemID uint) ([]storage.ReviewHistory, error) {
	if _, err := e.findProblem(ctx, problemID); err != nil {
		return nil, err
	}
	return e.ledger.ReviewHistory(ctx, problemID)
}

// Problem loads a problem with its patterns.
func (e *Engine) Problem(ctx context.Context, id uint) (*storage.Problem, error) {
	return e.findProblem(ctx, id)
}

func (e *Engine) findProblem(ctx context.Context, id uint) (*storage.Problem, error) {
	p, err := e.ledger.FindProblem(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "problem %d", id)
		}
		return nil, err
	}
	return p, nil
}

// NextReviewDate reports when the problem is next due. The latest ledger
// entry carries the next scheduled day, except after a failed intensive day:
// that restart is only visible on the cycle, so a cycle started after the
// latest entry wins.
func (e *Engine) NextReviewDate(ctx context.Context, problemID uint) (*NextReview, error) {
	if _, err := e.findProblem(ctx, problemID); err != nil {
		return nil, err
	}

	out := &NextReview{ProblemID: problemID}

	latest, err := e.ledger.LatestReview(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		d := Date{storedDay(latest.ScheduledReviewTime)}
		out.NextReviewDate = &d
	}

	cycle, err := e.ledger.ActiveCycle(ctx, problemID)
	if err != nil {
		return nil, err
	}
	out.IntensiveRecovery = cycle != nil

	if cycle != nil && (latest == nil || storedDay(cycle.StartedDate).After(storedDay(latest.ReviewDate))) {
		d := Date{addDays(storedDay(cycle.StartedDate), cycle.CycleIntervalDays)}
		out.NextReviewDate = &d
	}

	return out, nil
}
