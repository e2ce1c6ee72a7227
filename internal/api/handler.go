package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

// Scheduler is the part of spaced.Engine the HTTP layer calls.
type Scheduler interface {
	MarkSolved(ctx context.Context, problemID uint, solved bool) (*spaced.SolveOutcome, error)
	RecordReview(ctx context.Context, sub spaced.ReviewSubmission) (*spaced.ReviewOutcome, error)
	ProcessDailyIntensiveRecovery(ctx context.Context, problemID uint, result storage.ReviewResult, notes string) (*spaced.RecoveryStatus, error)
	HandleForgettingEvent(ctx context.Context, event spaced.ForgettingEvent) (*spaced.RecoveryPlan, error)
	ReviewHistory(ctx context.Context, problemID uint) ([]storage.ReviewHistory, error)
	AnalyzeForgetting(ctx context.Context, problemID uint) (*spaced.ForgettingAnalysis, error)
	NextReviewDate(ctx context.Context, problemID uint) (*spaced.NextReview, error)
	DailyReviewQueue(ctx context.Context, target time.Time) ([]spaced.QueueItem, error)
	Statistics(ctx context.Context, target time.Time) (*spaced.ReviewStatistics, error)
}

type ReviewHandler struct {
	log       *logger.Logger
	scheduler Scheduler
}

func NewReviewHandler(log *logger.Logger, scheduler Scheduler) *ReviewHandler {
	return &ReviewHandler{
		log:       log.With("component", "ReviewHandler"),
		scheduler: scheduler,
	}
}

func problemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		RespondError(c, http.StatusBadRequest, "invalid_problem_id", errors.Errorf("invalid problem id %q", c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// targetDate reads the optional ?date=YYYY-MM-DD. The zero time means today.
func targetDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := spaced.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time, nil
}

type progressRequest struct {
	Solved *bool `json:"solved" binding:"required"`
}

// PUT /api/problems/:id/progress
func (h *ReviewHandler) UpdateProgress(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	out, err := h.scheduler.MarkSolved(c.Request.Context(), id, *req.Solved)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, out)
}

type reviewRequest struct {
	Result           string   `json:"result" binding:"required"`
	TimeSpent        *int     `json:"time_spent"`
	Notes            string   `json:"notes"`
	SpecificMistakes []string `json:"specific_mistakes"`
}

// PUT /api/problems/:id/review
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	out, err := h.scheduler.RecordReview(c.Request.Context(), spaced.ReviewSubmission{
		ProblemID:        id,
		Result:           storage.ReviewResult(req.Result),
		TimeSpentMinutes: req.TimeSpent,
		Notes:            req.Notes,
		SpecificMistakes: req.SpecificMistakes,
	})
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, out)
}

type intensiveRequest struct {
	Result string `json:"result" binding:"required"`
	Notes  string `json:"notes"`
}

// POST /api/problems/:id/intensive
func (h *ReviewHandler) ProcessIntensive(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	var req intensiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	status, err := h.scheduler.ProcessDailyIntensiveRecovery(c.Request.Context(), id, storage.ReviewResult(req.Result), req.Notes)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, status)
}

type forgettingRequest struct {
	ForgottenStage   int      `json:"forgotten_stage" binding:"required"`
	TimeSpent        *int     `json:"time_spent"`
	ConfusionNotes   string   `json:"confusion_notes"`
	SpecificMistakes []string `json:"specific_mistakes"`
}

// POST /api/problems/:id/forgetting
func (h *ReviewHandler) RecordForgetting(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	var req forgettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	plan, err := h.scheduler.HandleForgettingEvent(c.Request.Context(), spaced.ForgettingEvent{
		ProblemID:        id,
		ForgottenStage:   req.ForgottenStage,
		TimeSpentMinutes: req.TimeSpent,
		ConfusionNotes:   req.ConfusionNotes,
		SpecificMistakes: req.SpecificMistakes,
	})
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, plan)
}

type historyEntry struct {
	ID               uint                 `json:"id"`
	ReviewDate       spaced.Date          `json:"review_date"`
	Result           storage.ReviewResult `json:"result"`
	ReviewStage      int                  `json:"review_stage"`
	ForgottenStage   *int                 `json:"forgotten_stage,omitempty"`
	ScheduledDate    spaced.Date          `json:"scheduled_review_time"`
	IntervalDays     int                  `json:"interval_days"`
	Notes            string               `json:"review_notes"`
	ActualDelayHours float64              `json:"actual_delay_hours"`
	TimeSpentMinutes *int                 `json:"time_spent_minutes,omitempty"`
}

func toHistoryEntries(rows []storage.ReviewHistory) []historyEntry {
	out := make([]historyEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, historyEntry{
			ID:               r.ID,
			ReviewDate:       spaced.Date{Time: r.ReviewDate.UTC()},
			Result:           r.Result,
			ReviewStage:      r.ReviewStage,
			ForgottenStage:   r.ForgottenStage,
			ScheduledDate:    spaced.Date{Time: r.ScheduledReviewTime.UTC()},
			IntervalDays:     r.IntervalDays,
			Notes:            r.ReviewNotes,
			ActualDelayHours: r.ActualDelayHours,
			TimeSpentMinutes: r.TimeSpentMinutes,
		})
	}
	return out
}

// GET /api/problems/:id/history
func (h *ReviewHandler) GetHistory(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	rows, err := h.scheduler.ReviewHistory(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"problem_id": id, "history": toHistoryEntries(rows)})
}

// GET /api/problems/:id/analysis
func (h *ReviewHandler) GetAnalysis(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	analysis, err := h.scheduler.AnalyzeForgetting(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, analysis)
}

// GET /api/problems/:id/next-review
func (h *ReviewHandler) GetNextReview(c *gin.Context) {
	id, ok := problemID(c)
	if !ok {
		return
	}
	next, err := h.scheduler.NextReviewDate(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, next)
}

type queueItemView struct {
	spaced.QueueItem
	RecommendedMinutes int `json:"recommended_minutes"`
}

// GET /api/calendar/due-today?date=YYYY-MM-DD
func (h *ReviewHandler) DueToday(c *gin.Context) {
	target, err := targetDate(c)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	queue, err := h.scheduler.DailyReviewQueue(c.Request.Context(), target)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}

	out := make([]queueItemView, 0, len(queue))
	for _, item := range queue {
		out = append(out, queueItemView{
			QueueItem:          item,
			RecommendedMinutes: spaced.RecommendedStudyMinutes(item.ReviewType, item.Priority, item.TimesForgotten),
		})
	}
	RespondOK(c, out)
}

// GET /api/reviews/stats?date=YYYY-MM-DD
func (h *ReviewHandler) Stats(c *gin.Context) {
	target, err := targetDate(c)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	stats, err := h.scheduler.Statistics(c.Request.Context(), target)
	if err != nil {
		respondEngineError(c, h.log, err)
		return
	}
	RespondOK(c, stats)
}
