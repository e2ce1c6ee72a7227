package spaced

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/storage"
)

// fakeLedger is an in-memory ReviewLedgerStore. Transact snapshots the
// state and restores it when fn fails, so rollback behaviour is testable.
type fakeLedger struct {
	problems map[uint]storage.Problem
	reviews  []storage.ReviewHistory
	cycles   []storage.IntensiveRecoveryCycle
	mistakes []storage.Mistake
	nextID   uint

	failAppendMistakes error
	failSaveCycle      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{problems: map[uint]storage.Problem{}}
}

type fakeTxKey struct{}

func (f *fakeLedger) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeLedger) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	problems := make(map[uint]storage.Problem, len(f.problems))
	for k, v := range f.problems {
		problems[k] = v
	}
	reviews := append([]storage.ReviewHistory(nil), f.reviews...)
	cycles := append([]storage.IntensiveRecoveryCycle(nil), f.cycles...)
	mistakes := append([]storage.Mistake(nil), f.mistakes...)

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.problems, f.reviews, f.cycles, f.mistakes = problems, reviews, cycles, mistakes
		return err
	}
	return nil
}

func (f *fakeLedger) addProblem(p storage.Problem) uint {
	p.ID = f.id()
	f.problems[p.ID] = p
	return p.ID
}

func (f *fakeLedger) LockProblem(ctx context.Context, id uint) (*storage.Problem, error) {
	return f.FindProblem(ctx, id)
}

func (f *fakeLedger) FindProblem(ctx context.Context, id uint) (*storage.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "problem %d", id)
	}
	return &p, nil
}

func (f *fakeLedger) SetSolved(ctx context.Context, id uint, solved bool) error {
	p, ok := f.problems[id]
	if !ok {
		return errors.Wrapf(storage.ErrNotFound, "problem %d", id)
	}
	p.Solved = solved
	f.problems[id] = p
	return nil
}

func (f *fakeLedger) historyOf(problemID uint) []storage.ReviewHistory {
	var out []storage.ReviewHistory
	for _, r := range f.reviews {
		if r.ProblemID == problemID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReviewDate.Equal(out[j].ReviewDate) {
			return out[i].ReviewDate.After(out[j].ReviewDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeLedger) LatestReview(ctx context.Context, problemID uint) (*storage.ReviewHistory, error) {
	h := f.historyOf(problemID)
	if len(h) == 0 {
		return nil, nil
	}
	return &h[0], nil
}

func (f *fakeLedger) ReviewHistory(ctx context.Context, problemID uint) ([]storage.ReviewHistory, error) {
	return f.historyOf(problemID), nil
}

func (f *fakeLedger) CountForgettings(ctx context.Context, problemID uint, since time.Time) (int, error) {
	n := 0
	for _, r := range f.reviews {
		if r.ProblemID == problemID && r.Result == storage.ResultForgot && !r.ReviewDate.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) AppendReview(ctx context.Context, entry *storage.ReviewHistory) error {
	entry.ID = f.id()
	f.reviews = append(f.reviews, *entry)
	return nil
}

func (f *fakeLedger) AppendMistakes(ctx context.Context, mistakes []storage.Mistake) error {
	if f.failAppendMistakes != nil {
		return f.failAppendMistakes
	}
	for _, m := range mistakes {
		m.ID = f.id()
		f.mistakes = append(f.mistakes, m)
	}
	return nil
}

func (f *fakeLedger) ActiveCycle(ctx context.Context, problemID uint) (*storage.IntensiveRecoveryCycle, error) {
	var found *storage.IntensiveRecoveryCycle
	for i := range f.cycles {
		c := f.cycles[i]
		if c.ProblemID != problemID || !c.Active() {
			continue
		}
		if found == nil || c.StartedDate.After(found.StartedDate) {
			found = &c
		}
	}
	return found, nil
}

func (f *fakeLedger) CreateCycle(ctx context.Context, cycle *storage.IntensiveRecoveryCycle) error {
	for _, c := range f.cycles {
		if c.ProblemID == cycle.ProblemID && c.Active() {
			return errors.New("duplicate key value violates unique constraint \"idx_intensive_recovery_one_active\"")
		}
	}
	cycle.ID = f.id()
	f.cycles = append(f.cycles, *cycle)
	return nil
}

func (f *fakeLedger) SaveCycle(ctx context.Context, cycle *storage.IntensiveRecoveryCycle) error {
	if f.failSaveCycle != nil {
		return f.failSaveCycle
	}
	for i := range f.cycles {
		if f.cycles[i].ID != cycle.ID {
			continue
		}
		if !f.cycles[i].Active() {
			return errors.Wrapf(storage.ErrNotFound, "active cycle %d", cycle.ID)
		}
		f.cycles[i] = *cycle
		return nil
	}
	return errors.Wrapf(storage.ErrNotFound, "active cycle %d", cycle.ID)
}

func (f *fakeLedger) QueueCandidates(ctx context.Context, forgotSince time.Time) ([]storage.QueueCandidate, error) {
	ids := make([]uint, 0, len(f.problems))
	for id, p := range f.problems {
		if p.Solved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]storage.QueueCandidate, 0, len(ids))
	for _, id := range ids {
		p := f.problems[id]
		c := storage.QueueCandidate{ProblemID: id, Title: p.Title, Difficulty: p.Difficulty}
		if latest, _ := f.LatestReview(ctx, id); latest != nil {
			reviewed, scheduled := latest.ReviewDate, latest.ScheduledReviewTime
			c.LastReviewDate = &reviewed
			c.ScheduledDate = &scheduled
		}
		c.ForgotCount, _ = f.CountForgettings(ctx, id, forgotSince)
		active, _ := f.ActiveCycle(ctx, id)
		c.ActiveCycle = active != nil
		for _, pt := range p.Patterns {
			c.PatternNames = append(c.PatternNames, pt.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeLedger) ForgettingsByStage(ctx context.Context, since time.Time) ([]storage.StageCount, error) {
	counts := map[int]int{}
	for _, r := range f.reviews {
		if r.Result == storage.ResultForgot && r.ForgottenStage != nil && !r.ReviewDate.Before(since) {
			counts[*r.ForgottenStage]++
		}
	}
	out := make([]storage.StageCount, 0, len(counts))
	for stage, n := range counts {
		out = append(out, storage.StageCount{Stage: stage, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

func (f *fakeLedger) activeCycles(problemID uint) []storage.IntensiveRecoveryCycle {
	var out []storage.IntensiveRecoveryCycle
	for _, c := range f.cycles {
		if c.ProblemID == problemID && c.Active() {
			out = append(out, c)
		}
	}
	return out
}

var day0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

type harness struct {
	ledger *fakeLedger
	engine *Engine
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ledger: newFakeLedger(), now: day0}
	h.engine = NewEngine(h.ledger, NewStaticRules(), WithClock(func() time.Time { return h.now }))
	return h
}

func (h *harness) advanceDays(n int) {
	h.now = h.now.AddDate(0, 0, n)
}

func (h *harness) today() time.Time {
	return civilDay(h.now)
}

func (h *harness) solvedProblem(title string, patterns ...string) uint {
	p := storage.Problem{Title: title, Difficulty: storage.DifficultyMedium, Solved: true}
	for _, name := range patterns {
		p.Patterns = append(p.Patterns, storage.Pattern{Name: name})
	}
	return h.ledger.addProblem(p)
}

func intPtr(n int) *int {
	return &n
}
