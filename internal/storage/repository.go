package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func (repo *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return repo.db.WithContext(ctx)
}

// Transact runs fn in a single transaction. Repository calls made with the
// ctx handed to fn join it; nested calls reuse the outer transaction.
func (repo *Repository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (repo *Repository) Migrate(ctx context.Context) error {
	db := repo.conn(ctx)

	err := db.AutoMigrate(
		&Pattern{},
		&Problem{},
		&ReviewSchedule{},
		&ForgettingPattern{},
		&ReviewHistory{},
		&IntensiveRecoveryCycle{},
		&Mistake{},
	)
	if err != nil {
		return errors.Wrap(err, "auto migrating scheduler tables")
	}

	return repo.Seed(ctx)
}

// Seed inserts the reference tables; existing rows are left alone.
func (repo *Repository) Seed(ctx context.Context) error {
	schedules := DefaultReviewSchedules()
	if err := repo.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&schedules).Error; err != nil {
		return errors.Wrap(err, "seeding review schedules")
	}

	patterns := DefaultForgettingPatterns()
	if err := repo.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&patterns).Error; err != nil {
		return errors.Wrap(err, "seeding forgetting patterns")
	}

	return nil
}

func (repo *Repository) CreateProblem(ctx context.Context, problem *Problem) error {
	return repo.conn(ctx).Create(problem).Error
}

func (repo *Repository) FindProblem(ctx context.Context, id uint) (*Problem, error) {
	var problem Problem

	result := repo.conn(ctx).Preload("Patterns").Where("id = ?", id).First(&problem)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "problem %d", id)
		}
		return nil, errors.Wrap(result.Error, "failed to get problem")
	}

	return &problem, nil
}

// LockProblem takes a row lock on the problem for the rest of the
// transaction in ctx. Operations on other problems are not blocked.
func (repo *Repository) LockProblem(ctx context.Context, id uint) (*Problem, error) {
	var problem Problem

	result := repo.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&problem)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "problem %d", id)
		}
		return nil, errors.Wrap(result.Error, "failed to lock problem")
	}

	return &problem, nil
}

func (repo *Repository) SetSolved(ctx context.Context, id uint, solved bool) error {
	result := repo.conn(ctx).Model(&Problem{}).Where("id = ?", id).Update("solved", solved)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update solved flag")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "problem %d", id)
	}
	return nil
}

func (repo *Repository) LatestReview(ctx context.Context, problemID uint) (*ReviewHistory, error) {
	var rows []ReviewHistory

	result := repo.conn(ctx).
		Where("problem_id = ?", problemID).
		Order("review_date DESC, id DESC").
		Limit(1).
		Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to get latest review")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return &rows[0], nil
}

func (repo *Repository) ReviewHistory(ctx context.Context, problemID uint) ([]ReviewHistory, error) {
	var rows []ReviewHistory

	result := repo.conn(ctx).
		Where("problem_id = ?", problemID).
		Order("review_date DESC, id DESC").
		Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrapf(result.Error, "failed to get review history for problem %d", problemID)
	}

	return rows, nil
}

func (repo *Repository) CountForgettings(ctx context.Context, problemID uint, since time.Time) (int, error) {
	var count int64

	result := repo.conn(ctx).
		Model(&ReviewHistory{}).
		Where("problem_id = ? AND result = ? AND review_date >= ?", problemID, ResultForgot, since).
		Count(&count)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to count forgettings")
	}

	return int(count), nil
}

func (repo *Repository) AppendReview(ctx context.Context, entry *ReviewHistory) error {
	if err := repo.conn(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "failed to append review")
	}
	return nil
}

func (repo *Repository) AppendMistakes(ctx context.Context, mistakes []Mistake) error {
	if len(mistakes) == 0 {
		return nil
	}
	if err := repo.conn(ctx).Create(&mistakes).Error; err != nil {
		return errors.Wrap(err, "failed to insert mistakes")
	}
	return nil
}

func (repo *Repository) ActiveCycle(ctx context.Context, problemID uint) (*IntensiveRecoveryCycle, error) {
	var cycles []IntensiveRecoveryCycle

	result := repo.conn(ctx).
		Where("problem_id = ? AND completed_date IS NULL", problemID).
		Order("started_date DESC, id DESC").
		Limit(1).
		Find(&cycles)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to get active cycle")
	}
	if len(cycles) == 0 {
		return nil, nil
	}

	return &cycles[0], nil
}

func (repo *Repository) CreateCycle(ctx context.Context, cycle *IntensiveRecoveryCycle) error {
	if err := repo.conn(ctx).Create(cycle).Error; err != nil {
		return errors.Wrap(err, "failed to create intensive recovery cycle")
	}
	return nil
}

// SaveCycle writes the mutable cycle columns. A cycle that is already
// completed is never written again.
func (repo *Repository) SaveCycle(ctx context.Context, cycle *IntensiveRecoveryCycle) error {
	result := repo.conn(ctx).
		Model(cycle).
		Where("completed_date IS NULL").
		Select("cycles_remaining", "cycle_interval_days", "started_date", "completed_date").
		Updates(cycle)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update intensive recovery cycle")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "active cycle %d", cycle.ID)
	}
	return nil
}

func (repo *Repository) QueueCandidates(ctx context.Context, forgotSince time.Time) ([]QueueCandidate, error) {
	db := repo.conn(ctx)

	var problems []Problem
	if err := db.Preload("Patterns").Where("solved = ?", true).Order("id ASC").Find(&problems).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get solved problems")
	}
	if len(problems) == 0 {
		return []QueueCandidate{}, nil
	}

	ids := make([]uint, 0, len(problems))
	for _, p := range problems {
		ids = append(ids, p.ID)
	}

	var latest []ReviewHistory
	err := db.Raw(`
		SELECT DISTINCT ON (problem_id) *
		FROM review_history
		WHERE problem_id IN ?
		ORDER BY problem_id, review_date DESC, id DESC`, ids).
		Scan(&latest).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest reviews")
	}

	var forgot []struct {
		ProblemID uint
		Count     int
	}
	err = db.Model(&ReviewHistory{}).
		Select("problem_id, COUNT(*) AS count").
		Where("problem_id IN ? AND result = ? AND review_date >= ?", ids, ResultForgot, forgotSince).
		Group("problem_id").
		Scan(&forgot).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count forgettings")
	}

	var cycles []IntensiveRecoveryCycle
	if err := db.Where("problem_id IN ? AND completed_date IS NULL", ids).Find(&cycles).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get active cycles")
	}

	latestByProblem := make(map[uint]ReviewHistory, len(latest))
	for _, r := range latest {
		latestByProblem[r.ProblemID] = r
	}
	forgotByProblem := make(map[uint]int, len(forgot))
	for _, f := range forgot {
		forgotByProblem[f.ProblemID] = f.Count
	}
	activeByProblem := make(map[uint]bool, len(cycles))
	for _, c := range cycles {
		activeByProblem[c.ProblemID] = true
	}

	candidates := make([]QueueCandidate, 0, len(problems))
	for _, p := range problems {
		c := QueueCandidate{
			ProblemID:   p.ID,
			Title:       p.Title,
			Difficulty:  p.Difficulty,
			ForgotCount: forgotByProblem[p.ID],
			ActiveCycle: activeByProblem[p.ID],
		}
		if r, ok := latestByProblem[p.ID]; ok {
			reviewed := r.ReviewDate
			scheduled := r.ScheduledReviewTime
			c.LastReviewDate = &reviewed
			c.ScheduledDate = &scheduled
		}
		for _, pt := range p.Patterns {
			c.PatternNames = append(c.PatternNames, pt.Name)
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// ForgettingsByStage counts forgot events per forgotten stage since the
// given day.
func (repo *Repository) ForgettingsByStage(ctx context.Context, since time.Time) ([]StageCount, error) {
	var rows []StageCount

	err := repo.conn(ctx).
		Model(&ReviewHistory{}).
		Select("forgotten_stage AS stage, COUNT(*) AS count").
		Where("result = ? AND forgotten_stage IS NOT NULL AND review_date >= ?", ResultForgot, since).
		Group("forgotten_stage").
		Order("forgotten_stage").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count forgettings by stage")
	}

	return rows, nil
}

func (repo *Repository) ScheduleSteps(ctx context.Context) ([]ReviewSchedule, error) {
	var steps []ReviewSchedule

	if err := repo.conn(ctx).Order("stage ASC").Find(&steps).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get review schedules")
	}

	return steps, nil
}

// FindForgettingPattern returns nil when no row matches.
func (repo *Repository) FindForgettingPattern(ctx context.Context, stage, times int) (*ForgettingPattern, error) {
	var patterns []ForgettingPattern

	result := repo.conn(ctx).
		Where("stage_forgotten = ? AND times_forgotten = ?", stage, times).
		Limit(1).
		Find(&patterns)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to get forgetting pattern")
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	return &patterns[0], nil
}
