package repository

import (
	"context"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
)

// EventRepository reads events.
type EventRepository interface {
	// GetEvent returns ErrEventNotFound when the id does not exist.
	GetEvent(ctx context.Context, id uint) (*entities.Event, error)

	// ListSalesOpening returns published events whose sales_open_at falls in [from, to].
	ListSalesOpening(ctx context.Context, from, to time.Time) ([]entities.Event, error)

	// ListStartingBetween returns published events whose starts_at falls in [from, to].
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]entities.Event, error)

	// ListCancelledBetween returns cancelled events whose cancelled_at falls in [from, to].
	ListCancelledBetween(ctx context.Context, from, to time.Time) ([]entities.Event, error)

	// ListUpcomingInCategories returns published events in the given
	// categories starting in [from, to], soonest first, capped at limit.
	ListUpcomingInCategories(ctx context.Context, categoryIDs []uint, from, to time.Time, limit int) ([]entities.Event, error)
}

// AttendeeRepository reads attendees and promotes the waitlist.
type AttendeeRepository interface {
	// GetAttendee returns ErrAttendeeNotFound when the id does not exist.
	GetAttendee(ctx context.Context, id uint) (*entities.Attendee, error)

	// ListConfirmed returns the confirmed attendees of an event ordered by id.
	ListConfirmed(ctx context.Context, eventID uint) ([]entities.Attendee, error)

	// CountConfirmed returns the number of confirmed attendees of an event.
	CountConfirmed(ctx context.Context, eventID uint) (int64, error)

	// ListWaitlisted returns waitlisted attendees in promotion order.
	ListWaitlisted(ctx context.Context, eventID uint) ([]entities.Attendee, error)

	// PromoteWaitlisted confirms waitlisted attendees first come first
	// served until the event is full. Capacity 0 means unlimited. The
	// promoted attendees are returned in promotion order.
	PromoteWaitlisted(ctx context.Context, eventID uint, capacity int, now time.Time) ([]entities.Attendee, error)
}

// AccountRepository reads accounts and category subscriptions.
type AccountRepository interface {
	// GetAccount returns ErrAccountNotFound when the id does not exist.
	// Subscriptions are loaded.
	GetAccount(ctx context.Context, id uint) (*entities.Account, error)

	// ListDigestSubscribers returns active accounts that opted in to the
	// weekly digest and follow at least one category. Subscriptions are
	// loaded.
	ListDigestSubscribers(ctx context.Context) ([]entities.Account, error)
}
