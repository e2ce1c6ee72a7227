package spaced

import (
	"context"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/storage"
)

func classify(c storage.QueueCandidate, target time.Time) (ReviewType, int) {
	overdue := 0
	if c.ScheduledDate != nil {
		overdue = max(daysBetween(*c.ScheduledDate, target), 0)
	}

	switch {
	case c.ActiveCycle:
		return IntensiveRecovery, overdue
	case c.ScheduledDate != nil && !storedDay(*c.ScheduledDate).After(target):
		return NormalReview, overdue
	default:
		return NotDue, overdue
	}
}

// priority: lower is more urgent.
func priority(t ReviewType, timesForgotten, daysOverdue int) int {
	switch t {
	case IntensiveRecovery:
		return 1
	case NormalReview:
		switch {
		case timesForgotten >= 2:
			return 2
		case daysOverdue > 3:
			return 3
		case daysOverdue > 0:
			return 4
		default:
			return 5
		}
	case NotDue:
		return 6
	}
	return 6
}

// patternNames joins the distinct non-empty names in sorted order.
func patternNames(names []string) string {
	set := mapset.NewThreadUnsafeSet(names...)
	set.Remove("")
	uniq := set.ToSlice()
	sort.Strings(uniq)
	return strings.Join(uniq, ", ")
}

// BuildQueue classifies candidates for the target day and returns the due
// ones, most urgent first.
func BuildQueue(candidates []storage.QueueCandidate, target time.Time) []QueueItem {
	target = storedDay(target)

	items := make([]QueueItem, 0, len(candidates))
	for _, c := range candidates {
		kind, overdue := classify(c, target)
		if kind == NotDue {
			continue
		}

		item := QueueItem{
			ProblemID:      c.ProblemID,
			ProblemTitle:   c.Title,
			Difficulty:     c.Difficulty,
			ReviewType:     kind,
			Priority:       priority(kind, c.ForgotCount, overdue),
			DaysOverdue:    overdue,
			TimesForgotten: c.ForgotCount,
			PatternNames:   patternNames(c.PatternNames),
		}
		if c.LastReviewDate != nil {
			d := Date{storedDay(*c.LastReviewDate)}
			item.LastReviewDate = &d
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.DaysOverdue != b.DaysOverdue {
			return a.DaysOverdue > b.DaysOverdue
		}
		if a.TimesForgotten != b.TimesForgotten {
			return a.TimesForgotten > b.TimesForgotten
		}
		return a.ProblemID < b.ProblemID
	})

	return items
}

// DailyReviewQueue is the prioritised work list for target. A zero target
// means today.
func (e *Engine) DailyReviewQueue(ctx context.Context, target time.Time) ([]QueueItem, error) {
	if target.IsZero() {
		target = e.today()
	}
	target = storedDay(target)

	candidates, err := e.ledger.QueueCandidates(ctx, addDays(target, -forgettingWindowDays))
	if err != nil {
		return nil, errors.Wrap(err, "loading queue candidates")
	}

	return BuildQueue(candidates, target), nil
}
