package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// eventRepository implements EventRepository.
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) GetEvent(ctx context.Context, id uint) (*entities.Event, error) {
	var event entities.Event
	err := r.db.WithContext(ctx).First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListSalesOpening(ctx context.Context, from, to time.Time) ([]entities.Event, error) {
	var events []entities.Event
	err := r.db.WithContext(ctx).
		Where("state = ? AND sales_open_at BETWEEN ? AND ?", entities.EventStatePublished, from.UTC(), to.UTC()).
		Order("sales_open_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]entities.Event, error) {
	var events []entities.Event
	err := r.db.WithContext(ctx).
		Where("state = ? AND starts_at BETWEEN ? AND ?", entities.EventStatePublished, from.UTC(), to.UTC()).
		Order("starts_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) ListCancelledBetween(ctx context.Context, from, to time.Time) ([]entities.Event, error) {
	var events []entities.Event
	err := r.db.WithContext(ctx).
		Where("state = ? AND cancelled_at BETWEEN ? AND ?", entities.EventStateCancelled, from.UTC(), to.UTC()).
		Order("cancelled_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) ListUpcomingInCategories(ctx context.Context, categoryIDs []uint, from, to time.Time, limit int) ([]entities.Event, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		return nil, ErrInvalidInput
	}
	var events []entities.Event
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("state = ? AND category_id IN ? AND starts_at BETWEEN ? AND ?",
			entities.EventStatePublished, categoryIDs, from.UTC(), to.UTC()).
		Order("starts_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
