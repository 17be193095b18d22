// Package state is a small named key-value store for process-wide values
// such as the weekly digest watermark. Consumers receive a Store by
// injection.
package state

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// Store reads and writes named timestamps.
type Store interface {
	// GetTime returns the stored time and true, or false when name is unset.
	GetTime(ctx context.Context, name string) (time.Time, bool, error)
	SetTime(ctx context.Context, name string, t time.Time) error
}

// sqlStore keeps values in the automation_state table as RFC 3339 UTC.
type sqlStore struct {
	db *gorm.DB
}

// NewSQLStore creates a Store on db.
func NewSQLStore(db *gorm.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) GetTime(ctx context.Context, name string) (time.Time, bool, error) {
	var entry entities.StateEntry
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, stateError(err, "get_state", name)
	}

	t, err := time.Parse(time.RFC3339Nano, entry.Value)
	if err != nil {
		return time.Time{}, false, errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("operation", "parse_state").
			Context("name", name).
			Build()
	}
	return t.UTC(), true, nil
}

func (s *sqlStore) SetTime(ctx context.Context, name string, t time.Time) error {
	entry := &entities.StateEntry{
		Name:  name,
		Value: t.UTC().Format(time.RFC3339Nano),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(entry).Error
	if err != nil {
		return stateError(err, "set_state", name)
	}
	return nil
}

func stateError(err error, operation, name string) error {
	return errors.New(err).
		Component("state").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("name", name).
		Build()
}

// MemoryStore is a Store held in process memory, used by tests and the
// memory queue deployment.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]time.Time)}
}

// GetTime implements Store.
func (m *MemoryStore) GetTime(_ context.Context, name string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.values[name]
	return t, ok, nil
}

// SetTime implements Store.
func (m *MemoryStore) SetTime(_ context.Context, name string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = t.UTC()
	return nil
}
