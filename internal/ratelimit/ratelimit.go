// Package ratelimit implements a fixed-window request counter.
//
// A window starts at now truncated to the period. Every check counts as a
// hit, including rejected ones, so a caller hammering the limiter stays
// blocked until the window rolls over.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// Backend names
const (
	BackendDatabase = "database"
	BackendMemory   = "memory"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool      `json:"allowed" yaml:"allowed"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	ResetAt   time.Time `json:"reset_at" yaml:"reset_at"`
}

// Limiter counts hits per identifier per fixed window.
type Limiter interface {
	CheckLimit(ctx context.Context, identifier string, limit int, period time.Duration) (Result, error)
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now                func() time.Time
	random             func() float64
	cleanupProbability float64
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupProbability sets the chance per check that the SQL backend
// purges windows older than twice the period.
func WithCleanupProbability(p float64) Option {
	return func(o *options) { o.cleanupProbability = p }
}

// withRandom is used by tests to force or suppress cleanup.
func withRandom(random func() float64) Option {
	return func(o *options) { o.random = random }
}

func newOptions(opts []Option) options {
	o := options{
		now:                time.Now,
		random:             rand.Float64,
		cleanupProbability: 0.01,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validate(identifier string, limit int, period time.Duration) error {
	switch {
	case identifier == "":
		return errors.Newf("rate limit identifier is required").
			Component("ratelimit").Category(errors.CategoryValidation).Build()
	case limit <= 0:
		return errors.Newf("rate limit must be positive, got %d", limit).
			Component("ratelimit").Category(errors.CategoryValidation).Build()
	case period < time.Second:
		return errors.Newf("rate limit period must be at least 1s, got %s", period).
			Component("ratelimit").Category(errors.CategoryValidation).Build()
	}
	return nil
}

func window(now time.Time, period time.Duration) (start, reset time.Time) {
	start = now.UTC().Truncate(period)
	return start, start.Add(period)
}

func result(hits, limit int, reset time.Time) Result {
	return Result{
		Allowed:   hits <= limit,
		Remaining: max(0, limit-hits),
		ResetAt:   reset,
	}
}

// sqlLimiter keeps counters in the automation_rate_limit table.
type sqlLimiter struct {
	db   *gorm.DB
	opts options
}

// NewSQLLimiter creates a Limiter backed by db.
func NewSQLLimiter(db *gorm.DB, opts ...Option) Limiter {
	return &sqlLimiter{db: db, opts: newOptions(opts)}
}

func (l *sqlLimiter) CheckLimit(ctx context.Context, identifier string, limit int, period time.Duration) (Result, error) {
	if err := validate(identifier, limit, period); err != nil {
		return Result{}, err
	}
	now := l.opts.now()
	start, reset := window(now, period)

	var hits int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &entities.RateLimitWindow{Identifier: identifier, WindowStart: start.Unix(), Hits: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identifier"}, {Name: "window_start"}},
			DoUpdates: clause.Assignments(map[string]any{
				"hits": gorm.Expr("automation_rate_limit.hits + 1"),
			}),
		}).Create(row).Error; err != nil {
			return err
		}
		return tx.Model(&entities.RateLimitWindow{}).
			Select("hits").
			Where("identifier = ? AND window_start = ?", identifier, start.Unix()).
			Scan(&hits).Error
	})
	if err != nil {
		return Result{}, errors.New(err).
			Component("ratelimit").
			Category(errors.CategoryDatabase).
			Context("operation", "check_limit").
			Build()
	}

	if l.opts.cleanupProbability > 0 && l.opts.random() < l.opts.cleanupProbability {
		l.cleanup(ctx, now, period)
	}
	return result(hits, limit, reset), nil
}

// cleanup deletes windows that ended at least one period ago. Failures are
// ignored; the next cleanup retries.
func (l *sqlLimiter) cleanup(ctx context.Context, now time.Time, period time.Duration) {
	cutoff := now.UTC().Add(-2 * period).Unix()
	l.db.WithContext(ctx).Where("window_start < ?", cutoff).Delete(&entities.RateLimitWindow{})
}

// memoryLimiter keeps counters in a go-cache map; entries expire with
// their window.
type memoryLimiter struct {
	cache *cache.Cache
	opts  options
}

// NewMemoryLimiter creates an in-process Limiter.
func NewMemoryLimiter(opts ...Option) Limiter {
	return &memoryLimiter{
		cache: cache.New(time.Minute, 5*time.Minute),
		opts:  newOptions(opts),
	}
}

func (l *memoryLimiter) CheckLimit(_ context.Context, identifier string, limit int, period time.Duration) (Result, error) {
	if err := validate(identifier, limit, period); err != nil {
		return Result{}, err
	}
	now := l.opts.now()
	start, reset := window(now, period)
	key := identifier + "|" + strconv.FormatInt(start.Unix(), 10)

	ttl := max(reset.Sub(now), time.Second)
	// Add fails when the window already exists, which is fine.
	_ = l.cache.Add(key, 0, ttl)
	hits, err := l.cache.IncrementInt(key, 1)
	if err != nil {
		return Result{}, errors.New(err).
			Component("ratelimit").
			Category(errors.CategoryState).
			Context("operation", "check_limit").
			Build()
	}
	return result(hits, limit, reset), nil
}

// New creates the limiter for the configured backend.
func New(backend string, db *gorm.DB, opts ...Option) (Limiter, error) {
	switch backend {
	case BackendDatabase:
		if db == nil {
			return nil, errors.Newf("database rate limiter needs a database").
				Component("ratelimit").Category(errors.CategoryConfiguration).Build()
		}
		return NewSQLLimiter(db, opts...), nil
	case BackendMemory:
		return NewMemoryLimiter(opts...), nil
	default:
		return nil, errors.Newf("unknown rate limit backend %q", backend).
			Component("ratelimit").Category(errors.CategoryConfiguration).Build()
	}
}
