package spaced

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amalrajan30/spacedcode/internal/storage"
)

// ReviewLedgerStore is the mutable side of the scheduler: problems, the
// review ledger and intensive cycles. Calls made with the ctx passed to
// Transact's fn share one transaction.
type ReviewLedgerStore interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	LockProblem(ctx context.Context, id uint) (*storage.Problem, error)
	FindProblem(ctx context.Context, id uint) (*storage.Problem, error)
	SetSolved(ctx context.Context, id uint, solved bool) error

	LatestReview(ctx context.Context, problemID uint) (*storage.ReviewHistory, error)
	ReviewHistory(ctx context.Context, problemID uint) ([]storage.ReviewHistory, error)
	CountForgettings(ctx context.Context, problemID uint, since time.Time) (int, error)
	AppendReview(ctx context.Context, entry *storage.ReviewHistory) error
	AppendMistakes(ctx context.Context, mistakes []storage.Mistake) error

	ActiveCycle(ctx context.Context, problemID uint) (*storage.IntensiveRecoveryCycle, error)
	CreateCycle(ctx context.Context, cycle *storage.IntensiveRecoveryCycle) error
	SaveCycle(ctx context.Context, cycle *storage.IntensiveRecoveryCycle) error

	QueueCandidates(ctx context.Context, forgotSince time.Time) ([]storage.QueueCandidate, error)
	ForgettingsByStage(ctx context.Context, since time.Time) ([]storage.StageCount, error)
}

// RecoveryRuleStore serves the two static reference tables.
type RecoveryRuleStore interface {
	ScheduleSteps(ctx context.Context) ([]storage.ReviewSchedule, error)
	FindForgettingPattern(ctx context.Context, stage, times int) (*storage.ForgettingPattern, error)
}

type ReviewType int

const (
	NotDue ReviewType = iota
	NormalReview
	IntensiveRecovery
)

func (t ReviewType) String() string {
	switch t {
	case IntensiveRecovery:
		return "INTENSIVE_RECOVERY"
	case NormalReview:
		return "NORMAL_REVIEW"
	case NotDue:
		return "NOT_DUE"
	}
	return "UNKNOWN"
}

func (t ReviewType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Date is a civil day, serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, invalid("malformed date %q", s)
	}
	return Date{t}, nil
}

type InitialSchedule struct {
	ScheduledDate Date   `json:"scheduled_date"`
	ReviewStage   int    `json:"review_stage"`
	Message       string `json:"message"`
}

type ForgettingEvent struct {
	ProblemID        uint
	ForgottenStage   int
	TimeSpentMinutes *int
	ConfusionNotes   string
	SpecificMistakes []string
}

type RecoveryPlan struct {
	RecoveryPlan           string   `json:"recovery_plan"`
	NextReviewDate         Date     `json:"next_review_date"`
	IntensiveReviewsNeeded int      `json:"intensive_reviews_needed"`
	StudyRecommendations   []string `json:"study_recommendations"`
	UrgencyLevel           int      `json:"urgency_level"`
	EstimatedRecoveryDays  int      `json:"estimated_recovery_days"`
}

type RecoveryStatus struct {
	Status               string `json:"status"`
	CyclesRemaining      int    `json:"cycles_remaining"`
	NextReviewDate       Date   `json:"next_review_date"`
	GraduationStatus     string `json:"graduation_status"`
	DaysUntilNormalCycle int    `json:"days_until_normal_cycle"`
	Graduated            bool   `json:"graduated"`
}

type StageAdvance struct {
	PreviousStage  int    `json:"previous_stage"`
	Stage          int    `json:"review_stage"`
	IntervalDays   int    `json:"interval_days"`
	NextReviewDate Date   `json:"next_review_date"`
	Message        string `json:"message"`
}

type ReviewSubmission struct {
	ProblemID        uint
	Result           storage.ReviewResult
	TimeSpentMinutes *int
	Notes            string
	SpecificMistakes []string
}

// ReviewOutcome carries exactly one of Plan, Cycle or Advance, depending on
// which path the submission took.
type ReviewOutcome struct {
	Result            storage.ReviewResult `json:"result"`
	NextReviewDate    Date                 `json:"next_review_date"`
	Message           string               `json:"message"`
	IntensiveRecovery bool                 `json:"intensive_recovery"`
	Plan              *RecoveryPlan        `json:"recovery_plan,omitempty"`
	Cycle             *RecoveryStatus      `json:"cycle_status,omitempty"`
	Advance           *StageAdvance        `json:"advance,omitempty"`
}

type SolveOutcome struct {
	ProblemID uint             `json:"problem_id"`
	Solved    bool             `json:"solved"`
	Initial   *InitialSchedule `json:"initial_review,omitempty"`
}

type QueueItem struct {
	ProblemID      uint               `json:"problem_id"`
	ProblemTitle   string             `json:"problem_title"`
	Difficulty     storage.Difficulty `json:"difficulty"`
	ReviewType     ReviewType         `json:"review_type"`
	Priority       int                `json:"priority"`
	DaysOverdue    int                `json:"days_overdue"`
	LastReviewDate *Date              `json:"last_review_date"`
	TimesForgotten int                `json:"times_forgotten"`
	PatternNames   string             `json:"pattern_names"`
}

type NextReview struct {
	ProblemID         uint  `json:"problem_id"`
	NextReviewDate    *Date `json:"next_review_date"`
	IntensiveRecovery bool  `json:"intensive_recovery"`
}
