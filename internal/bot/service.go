package bot

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/llm"
	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

// ReviewEngine is the subset of spaced.Engine the bot drives.
type ReviewEngine interface {
	Today() spaced.Date
	DailyReviewQueue(ctx context.Context, target time.Time) ([]spaced.QueueItem, error)
	RecordReview(ctx context.Context, sub spaced.ReviewSubmission) (*spaced.ReviewOutcome, error)
	Statistics(ctx context.Context, target time.Time) (*spaced.ReviewStatistics, error)
	Problem(ctx context.Context, id uint) (*storage.Problem, error)
	ReviewHistory(ctx context.Context, problemID uint) ([]storage.ReviewHistory, error)
}

type HintGenerator interface {
	GenerateRecoveryHint(ctx context.Context, req llm.HintRequest) (*llm.RecoveryHint, error)
}

type BotService struct {
	engine ReviewEngine
	hints  HintGenerator
	log    *logger.Logger
}

// NewBotService wires the bot to the scheduler. hints may be nil.
func NewBotService(engine ReviewEngine, hints HintGenerator, log *logger.Logger) *BotService {
	return &BotService{
		engine: engine,
		hints:  hints,
		log:    log.With("component", "BotService"),
	}
}

type ReviewReply struct {
	Title   string
	Outcome *spaced.ReviewOutcome
	Hint    *llm.RecoveryHint
}

func (s *BotService) Today() spaced.Date {
	return s.engine.Today()
}

func (s *BotService) DueToday(ctx context.Context) ([]spaced.QueueItem, error) {
	return s.engine.DailyReviewQueue(ctx, time.Time{})
}

func (s *BotService) Stats(ctx context.Context) (*spaced.ReviewStatistics, error) {
	return s.engine.Statistics(ctx, time.Time{})
}

// Review records a result from the inline keyboard. A forgotten problem gets
// a recovery hint when a generator is configured; hint failures are logged
// and otherwise ignored.
func (s *BotService) Review(ctx context.Context, problemID uint, result storage.ReviewResult) (*ReviewReply, error) {
	problem, err := s.engine.Problem(ctx, problemID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.engine.RecordReview(ctx, spaced.ReviewSubmission{
		ProblemID: problemID,
		Result:    result,
		Notes:     "Reviewed from Telegram",
	})
	if err != nil {
		return nil, err
	}

	reply := &ReviewReply{Title: problem.Title, Outcome: outcome}
	if result == storage.ResultForgot && s.hints != nil {
		hint, err := s.recoveryHint(ctx, problem)
		if err != nil {
			s.log.Warn("Recovery hint failed", "problem_id", problemID, "error", err)
		} else {
			reply.Hint = hint
		}
	}
	return reply, nil
}

func (s *BotService) recoveryHint(ctx context.Context, problem *storage.Problem) (*llm.RecoveryHint, error) {
	history, err := s.engine.ReviewHistory(ctx, problem.ID)
	if err != nil {
		return nil, errors.Wrap(err, "loading history")
	}

	req := llm.HintRequest{ProblemTitle: problem.Title}
	for _, p := range problem.Patterns {
		req.Patterns = append(req.Patterns, p.Name)
	}
	if len(history) > 0 {
		latest := history[0]
		req.ForgottenStage = latest.ReviewStage
		if latest.ForgottenStage != nil {
			req.ForgottenStage = *latest.ForgottenStage
		}
		req.Notes = latest.ReviewNotes
	}

	return s.hints.GenerateRecoveryHint(ctx, req)
}

const reviewCallbackPrefix = "review_"

func reviewCallbackData(problemID uint, result storage.ReviewResult) string {
	return fmt.Sprintf("%s%d_%s", reviewCallbackPrefix, problemID, result)
}

// parseReviewCallback reads data of the form review_<id>_<result>.
func parseReviewCallback(data string) (uint, storage.ReviewResult, error) {
	rest, ok := strings.CutPrefix(data, reviewCallbackPrefix)
	if !ok {
		return 0, "", errors.Errorf("unexpected callback %q", data)
	}
	rawID, rawResult, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, "", errors.Errorf("unexpected callback %q", data)
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return 0, "", errors.Errorf("invalid problem id in callback %q", data)
	}
	result, err := storage.ParseReviewResult(rawResult)
	if err != nil {
		return 0, "", err
	}
	return uint(id), result, nil
}

func formatDueHeader(count int, today spaced.Date) string {
	switch count {
	case 0:
		return fmt.Sprintf("Nothing due for %s. Enjoy the day off!", today)
	case 1:
		return fmt.Sprintf("<b>1 problem</b> due for %s", today)
	}
	return fmt.Sprintf("<b>%d problems</b> due for %s", count, today)
}

func formatQueueItem(item spaced.QueueItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> (%s)\n", html.EscapeString(item.ProblemTitle), item.Difficulty)
	if item.ReviewType == spaced.IntensiveRecovery {
		fmt.Fprintf(&b, "Intensive recovery, priority %d\n", item.Priority)
	} else {
		fmt.Fprintf(&b, "Review, priority %d\n", item.Priority)
	}
	if item.PatternNames != "" {
		fmt.Fprintf(&b, "Patterns: %s\n", html.EscapeString(item.PatternNames))
	}
	if item.DaysOverdue > 0 {
		fmt.Fprintf(&b, "Overdue by %d days\n", item.DaysOverdue)
	}
	if item.TimesForgotten > 0 {
		fmt.Fprintf(&b, "Forgotten %dx recently\n", item.TimesForgotten)
	}
	fmt.Fprintf(&b, "Suggested time: %d min", spaced.RecommendedStudyMinutes(item.ReviewType, item.Priority, item.TimesForgotten))
	return b.String()
}

func formatOutcome(reply *ReviewReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>: %s\n", html.EscapeString(reply.Title), reply.Outcome.Result)
	fmt.Fprintf(&b, "%s\n", html.EscapeString(reply.Outcome.Message))
	fmt.Fprintf(&b, "Next review: %s", reply.Outcome.NextReviewDate)

	if plan := reply.Outcome.Plan; plan != nil && len(plan.StudyRecommendations) > 0 {
		b.WriteString("\n\n<b>Study plan</b>")
		for _, rec := range plan.StudyRecommendations {
			fmt.Fprintf(&b, "\n- %s", html.EscapeString(rec))
		}
	}
	if reply.Hint != nil {
		fmt.Fprintf(&b, "\n\n<b>Hint</b>: %s", html.EscapeString(reply.Hint.KeyInsight))
		for i, step := range reply.Hint.PracticeSteps {
			fmt.Fprintf(&b, "\n%d. %s", i+1, html.EscapeString(step))
		}
	}
	return b.String()
}

func formatStats(stats *spaced.ReviewStatistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Review stats for %s</b>\n", stats.Date)
	fmt.Fprintf(&b, "In rotation: %d\n", stats.TotalProblemsInRotation)
	fmt.Fprintf(&b, "Due today: %d\n", stats.ProblemsDueToday)
	fmt.Fprintf(&b, "Overdue: %d\n", stats.OverdueProblems)
	fmt.Fprintf(&b, "Intensive recovery: %d", stats.IntensiveRecoveryProblems)

	stages := make([]int, 0, len(stats.ForgettingsByStage))
	for stage := range stats.ForgettingsByStage {
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return b.String()
	}
	slices.Sort(stages)
	b.WriteString("\n\nForgettings by stage (90 days):")
	for _, stage := range stages {
		fmt.Fprintf(&b, "\nStage %d: %d", stage, stats.ForgettingsByStage[stage])
	}
	return b.String()
}
