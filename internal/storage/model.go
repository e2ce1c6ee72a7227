package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type ReviewResult string

const (
	ResultRemembered ReviewResult = "remembered"
	ResultForgot     ReviewResult = "forgot"
)

func ParseReviewResult(s string) (ReviewResult, error) {
	switch ReviewResult(s) {
	case ResultRemembered, ResultForgot:
		return ReviewResult(s), nil
	default:
		return "", errors.Errorf("result must be %q or %q, got %q", ResultRemembered, ResultForgot, s)
	}
}

// Problem is owned by the CRUD side of the app. The scheduler only reads it
// and flips Solved.
type Problem struct {
	gorm.Model
	Title        string `gorm:"index"`
	Difficulty   Difficulty
	Solved       bool `gorm:"index"`
	LeetcodeLink string
	Patterns     []Pattern `gorm:"many2many:problem_patterns;"`
}

type Pattern struct {
	gorm.Model
	Name string `gorm:"uniqueIndex"`
}

type ReviewSchedule struct {
	ID           uint
	Stage        int `gorm:"uniqueIndex"`
	IntervalDays int
	Description  string
	CreatedAt    time.Time
}

type ForgettingPattern struct {
	ID                   uint
	StageForgotten       int `gorm:"uniqueIndex:idx_forgetting_patterns_lookup"`
	TimesForgotten       int `gorm:"uniqueIndex:idx_forgetting_patterns_lookup"`
	ResetIntervalDays    int
	IntensiveReviewCount int
	RecoveryNotes        string
	CreatedAt            time.Time
}

// ReviewHistory is one ledger entry. Rows are only ever inserted.
type ReviewHistory struct {
	ID                  uint
	ProblemID           uint         `gorm:"index:idx_review_history_problem_scheduled,priority:1"`
	ReviewDate          time.Time    `gorm:"type:date;index:idx_review_history_result_date,priority:2"`
	Result              ReviewResult `gorm:"type:varchar(16);index:idx_review_history_result_date,priority:1"`
	ReviewStage         int
	ForgottenStage      *int
	ScheduledReviewTime time.Time `gorm:"index:idx_review_history_problem_scheduled,priority:2"`
	IntervalDays        int
	ReviewNotes         string
	ActualDelayHours    float64
	TimeSpentMinutes    *int
	CreatedAt           time.Time
}

func (ReviewHistory) TableName() string {
	return "review_history"
}

var ErrLedgerAppendOnly = errors.New("review history is append-only")

func (r *ReviewHistory) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerAppendOnly
}

func (r *ReviewHistory) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerAppendOnly
}

// IntensiveRecoveryCycle is active while CompletedDate is nil. The partial
// unique index keeps at most one active cycle per problem.
type IntensiveRecoveryCycle struct {
	ID                uint
	ProblemID         uint `gorm:"uniqueIndex:idx_intensive_recovery_one_active,where:completed_date IS NULL"`
	CyclesRemaining   int
	CycleIntervalDays int
	StartedDate       time.Time  `gorm:"type:date"`
	CompletedDate     *time.Time `gorm:"type:date"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c *IntensiveRecoveryCycle) Active() bool {
	return c.CompletedDate == nil
}

type Mistake struct {
	ID              uint
	ProblemID       uint `gorm:"index"`
	Description     string
	MistakeType     string `gorm:"default:logic_error"`
	ReviewSessionID uint   `gorm:"index"`
	CreatedAt       time.Time
}

// QueueCandidate is everything the due-today queue needs about one solved
// problem, gathered in a handful of queries.
type QueueCandidate struct {
	ProblemID      uint
	Title          string
	Difficulty     Difficulty
	LastReviewDate *time.Time
	ScheduledDate  *time.Time
	ForgotCount    int
	ActiveCycle    bool
	PatternNames   []string
}

type StageCount struct {
	Stage int
	Count int
}
