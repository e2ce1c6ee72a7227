package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

// stubScheduler records the last call and returns canned results.
type stubScheduler struct {
	err error

	solved     *bool
	submission spaced.ReviewSubmission
	event      spaced.ForgettingEvent
	result     storage.ReviewResult
	target     time.Time

	queue   []spaced.QueueItem
	history []storage.ReviewHistory
}

func (s *stubScheduler) MarkSolved(ctx context.Context, id uint, solved bool) (*spaced.SolveOutcome, error) {
	s.solved = &solved
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.SolveOutcome{ProblemID: id, Solved: solved}, nil
}

func (s *stubScheduler) RecordReview(ctx context.Context, sub spaced.ReviewSubmission) (*spaced.ReviewOutcome, error) {
	s.submission = sub
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.ReviewOutcome{Result: sub.Result, Message: "Advanced to stage 2 - next review in 3 days"}, nil
}

func (s *stubScheduler) ProcessDailyIntensiveRecovery(ctx context.Context, id uint, result storage.ReviewResult, notes string) (*spaced.RecoveryStatus, error) {
	s.result = result
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.RecoveryStatus{Status: "Intensive cycle continues - 1 daily reviews remaining", CyclesRemaining: 1}, nil
}

func (s *stubScheduler) HandleForgettingEvent(ctx context.Context, event spaced.ForgettingEvent) (*spaced.RecoveryPlan, error) {
	s.event = event
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.RecoveryPlan{IntensiveReviewsNeeded: 3, UrgencyLevel: 4}, nil
}

func (s *stubScheduler) ReviewHistory(ctx context.Context, id uint) ([]storage.ReviewHistory, error) {
	return s.history, s.err
}

func (s *stubScheduler) AnalyzeForgetting(ctx context.Context, id uint) (*spaced.ForgettingAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.ForgettingAnalysis{ProblemID: id, RecommendedAction: spaced.ActionContinue, ProblematicStages: []int{}}, nil
}

func (s *stubScheduler) NextReviewDate(ctx context.Context, id uint) (*spaced.NextReview, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := spaced.Date{Time: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)}
	return &spaced.NextReview{ProblemID: id, NextReviewDate: &d, IntensiveRecovery: true}, nil
}

func (s *stubScheduler) DailyReviewQueue(ctx context.Context, target time.Time) ([]spaced.QueueItem, error) {
	s.target = target
	if s.err != nil {
		return nil, s.err
	}
	return s.queue, nil
}

func (s *stubScheduler) Statistics(ctx context.Context, target time.Time) (*spaced.ReviewStatistics, error) {
	s.target = target
	if s.err != nil {
		return nil, s.err
	}
	return &spaced.ReviewStatistics{Date: spaced.Date{Time: target}, ProblemsDueToday: 2, ForgettingsByStage: map[int]int{2: 1}}, nil
}

func newTestRouter(s *stubScheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{ReviewHandler: NewReviewHandler(logger.Nop(), s)})
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestRouter(&stubScheduler{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestServerHandlerServesRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &stubScheduler{}
	srv := NewServer(":0", logger.Nop(), RouterConfig{
		Logger:        logger.Nop(),
		ReviewHandler: NewReviewHandler(logger.Nop(), s),
	})

	w := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv.Handler(), http.MethodGet, "/api/calendar/due-today", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateProgress(t *testing.T) {
	s := &stubScheduler{}
	r := newTestRouter(s)

	w := do(t, r, http.MethodPut, "/api/problems/7/progress", `{"solved": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.solved)
	assert.True(t, *s.solved)
	assert.JSONEq(t, `{"problem_id": 7, "solved": true}`, w.Body.String())

	w = do(t, r, http.MethodPut, "/api/problems/7/progress", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)

	w = do(t, r, http.MethodPut, "/api/problems/abc/progress", `{"solved": true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_problem_id", decodeError(t, w).Code)
}

func TestSubmitReview(t *testing.T) {
	s := &stubScheduler{}
	r := newTestRouter(s)

	w := do(t, r, http.MethodPut, "/api/problems/3/review",
		`{"result": "forgot", "time_spent": 25, "notes": "mixed up pointers", "specific_mistakes": ["edge case"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(3), s.submission.ProblemID)
	assert.Equal(t, storage.ResultForgot, s.submission.Result)
	require.NotNil(t, s.submission.TimeSpentMinutes)
	assert.Equal(t, 25, *s.submission.TimeSpentMinutes)
	assert.Equal(t, "mixed up pointers", s.submission.Notes)
	assert.Equal(t, []string{"edge case"}, s.submission.SpecificMistakes)
}

func TestEngineErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"validation", errors.Wrap(spaced.ErrValidation, "result must be remembered or forgot"), http.StatusBadRequest, "validation_error", ""},
		{"not found", errors.Wrapf(spaced.ErrNotFound, "problem %d", 3), http.StatusNotFound, "not_found", ""},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&stubScheduler{err: tc.err})
			w := do(t, r, http.MethodPut, "/api/problems/3/review", `{"result": "remembered"}`)
			assert.Equal(t, tc.status, w.Code)
			apiErr := decodeError(t, w)
			assert.Equal(t, tc.code, apiErr.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, apiErr.Message)
			}
		})
	}
}

func TestProcessIntensive(t *testing.T) {
	s := &stubScheduler{}
	w := do(t, newTestRouter(s), http.MethodPost, "/api/problems/4/intensive", `{"result": "remembered"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storage.ResultRemembered, s.result)

	var got struct {
		Status          string `json:"status"`
		CyclesRemaining int    `json:"cycles_remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.CyclesRemaining)
	assert.Equal(t, "Intensive cycle continues - 1 daily reviews remaining", got.Status)
}

func TestRecordForgetting(t *testing.T) {
	s := &stubScheduler{}
	r := newTestRouter(s)

	w := do(t, r, http.MethodPost, "/api/problems/9/forgetting", `{"forgotten_stage": 2, "confusion_notes": "lost"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, spaced.ForgettingEvent{ProblemID: 9, ForgottenStage: 2, ConfusionNotes: "lost"}, s.event)

	w = do(t, r, http.MethodPost, "/api/problems/9/forgetting", `{"confusion_notes": "lost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDueToday(t *testing.T) {
	s := &stubScheduler{queue: []spaced.QueueItem{{
		ProblemID:      1,
		ProblemTitle:   "Two Sum",
		Difficulty:     storage.DifficultyEasy,
		ReviewType:     spaced.IntensiveRecovery,
		Priority:       1,
		TimesForgotten: 1,
		PatternNames:   "Hash Map",
	}}}
	r := newTestRouter(s)

	w := do(t, r, http.MethodGet, "/api/calendar/due-today?date=2026-03-10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), s.target)
	assert.JSONEq(t, `[{
		"problem_id": 1,
		"problem_title": "Two Sum",
		"difficulty": "easy",
		"review_type": "INTENSIVE_RECOVERY",
		"priority": 1,
		"days_overdue": 0,
		"last_review_date": null,
		"times_forgotten": 1,
		"pattern_names": "Hash Map",
		"recommended_minutes": 15
	}]`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/calendar/due-today", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.target.IsZero())

	w = do(t, r, http.MethodGet, "/api/calendar/due-today?date=10-03-2026", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w).Code)
}

func TestDueTodayEmptyIsArray(t *testing.T) {
	w := do(t, newTestRouter(&stubScheduler{}), http.MethodGet, "/api/calendar/due-today", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetHistory(t *testing.T) {
	stage := 2
	s := &stubScheduler{history: []storage.ReviewHistory{{
		ID:                  11,
		ReviewDate:          time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		Result:              storage.ResultForgot,
		ReviewStage:         1,
		ForgottenStage:      &stage,
		ScheduledReviewTime: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
		IntervalDays:        1,
		ReviewNotes:         "FORGOT at stage 2",
	}}}

	w := do(t, newTestRouter(s), http.MethodGet, "/api/problems/5/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"problem_id": 5,
		"history": [{
			"id": 11,
			"review_date": "2026-03-02",
			"result": "forgot",
			"review_stage": 1,
			"forgotten_stage": 2,
			"scheduled_review_time": "2026-03-03",
			"interval_days": 1,
			"review_notes": "FORGOT at stage 2",
			"actual_delay_hours": 0
		}]
	}`, w.Body.String())
}

func TestReadOnlyEndpoints(t *testing.T) {
	r := newTestRouter(&stubScheduler{})

	w := do(t, r, http.MethodGet, "/api/problems/5/next-review", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"problem_id": 5, "next_review_date": "2026-03-03", "intensive_recovery": true}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/problems/5/analysis", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recommended_action":"continue"`)

	w = do(t, r, http.MethodGet, "/api/reviews/stats?date=2026-03-10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"problems_due_today":2`)
	assert.Contains(t, w.Body.String(), `"forgettings_by_stage":{"2":1}`)

	w = do(t, newTestRouter(&stubScheduler{err: errors.Wrap(spaced.ErrNotFound, "problem 5")}), http.MethodGet, "/api/problems/5/analysis", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
