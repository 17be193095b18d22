package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// attendeeRepository implements AttendeeRepository.
type attendeeRepository struct {
	db *gorm.DB
}

// NewAttendeeRepository creates a new AttendeeRepository.
func NewAttendeeRepository(db *gorm.DB) AttendeeRepository {
	return &attendeeRepository{db: db}
}

func (r *attendeeRepository) GetAttendee(ctx context.Context, id uint) (*entities.Attendee, error) {
	var attendee entities.Attendee
	err := r.db.WithContext(ctx).First(&attendee, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttendeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

func (r *attendeeRepository) ListConfirmed(ctx context.Context, eventID uint) ([]entities.Attendee, error) {
	var attendees []entities.Attendee
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, entities.AttendeeConfirmed).
		Order("id ASC").
		Find(&attendees).Error
	return attendees, err
}

func (r *attendeeRepository) CountConfirmed(ctx context.Context, eventID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Attendee{}).
		Where("event_id = ? AND status = ?", eventID, entities.AttendeeConfirmed).
		Count(&count).Error
	return count, err
}

func (r *attendeeRepository) ListWaitlisted(ctx context.Context, eventID uint) ([]entities.Attendee, error) {
	var attendees []entities.Attendee
	err := waitlistQuery(r.db.WithContext(ctx), eventID).Find(&attendees).Error
	return attendees, err
}

// waitlistQuery selects the waitlist of one event, first registered first.
func waitlistQuery(tx *gorm.DB, eventID uint) *gorm.DB {
	return tx.Where("event_id = ? AND status = ?", eventID, entities.AttendeeWaitlisted).
		Order("created_at ASC, id ASC")
}

func (r *attendeeRepository) PromoteWaitlisted(ctx context.Context, eventID uint, capacity int, now time.Time) ([]entities.Attendee, error) {
	if capacity < 0 {
		return nil, ErrInvalidInput
	}

	var promoted []entities.Attendee
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := waitlistQuery(tx.Clauses(clause.Locking{Strength: "UPDATE"}), eventID)

		if capacity > 0 {
			var confirmed int64
			if err := tx.Model(&entities.Attendee{}).
				Where("event_id = ? AND status = ?", eventID, entities.AttendeeConfirmed).
				Count(&confirmed).Error; err != nil {
				return err
			}
			free := capacity - int(confirmed)
			if free <= 0 {
				return nil
			}
			query = query.Limit(free)
		}

		if err := query.Find(&promoted).Error; err != nil {
			return err
		}
		if len(promoted) == 0 {
			return nil
		}

		ids := make([]uint, len(promoted))
		for i := range promoted {
			ids[i] = promoted[i].ID
		}
		promotedAt := now.UTC()
		if err := tx.Model(&entities.Attendee{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":      entities.AttendeeConfirmed,
				"promoted_at": promotedAt,
			}).Error; err != nil {
			return err
		}
		for i := range promoted {
			promoted[i].Status = entities.AttendeeConfirmed
			promoted[i].PromotedAt = &promotedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
