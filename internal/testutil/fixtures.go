package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
)

var fixtureSeq atomic.Uint64

func nextSeq() uint64 {
	return fixtureSeq.Add(1)
}

// CreateAccount inserts an active account. Mutators run before insert.
func CreateAccount(t *testing.T, db *gorm.DB, mutate ...func(*entities.Account)) *entities.Account {
	t.Helper()
	n := nextSeq()
	account := &entities.Account{
		Name:   fmt.Sprintf("Account %d", n),
		Email:  fmt.Sprintf("account%d@example.com", n),
		Active: true,
	}
	for _, m := range mutate {
		m(account)
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

// CreateCategory inserts a category with a unique name.
func CreateCategory(t *testing.T, db *gorm.DB, name string) *entities.Category {
	t.Helper()
	if name == "" {
		name = fmt.Sprintf("Category %d", nextSeq())
	}
	category := &entities.Category{Name: name}
	require.NoError(t, db.Create(category).Error)
	return category
}

// Subscribe links an account to a category.
func Subscribe(t *testing.T, db *gorm.DB, accountID, categoryID uint) {
	t.Helper()
	require.NoError(t, db.Create(&entities.CategorySubscription{
		AccountID:  accountID,
		CategoryID: categoryID,
	}).Error)
}

// CreateEvent inserts a published event owned by ownerID that starts at
// startsAt. Mutators run before insert.
func CreateEvent(t *testing.T, db *gorm.DB, ownerID uint, startsAt time.Time, mutate ...func(*entities.Event)) *entities.Event {
	t.Helper()
	n := nextSeq()
	event := &entities.Event{
		Title:    fmt.Sprintf("Event %d", n),
		Slug:     fmt.Sprintf("event-%d", n),
		OwnerID:  ownerID,
		State:    entities.EventStatePublished,
		Venue:    "Town Hall",
		StartsAt: startsAt.UTC(),
	}
	for _, m := range mutate {
		m(event)
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// CreateAttendee inserts an attendee with the given status.
func CreateAttendee(t *testing.T, db *gorm.DB, eventID uint, status string, mutate ...func(*entities.Attendee)) *entities.Attendee {
	t.Helper()
	n := nextSeq()
	attendee := &entities.Attendee{
		EventID: eventID,
		Name:    fmt.Sprintf("Attendee %d", n),
		Email:   fmt.Sprintf("attendee%d@example.com", n),
		Status:  status,
	}
	for _, m := range mutate {
		m(attendee)
	}
	require.NoError(t, db.Create(attendee).Error)
	return attendee
}

// TimePtr returns a pointer to t in UTC.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// UintPtr returns a pointer to v.
func UintPtr(v uint) *uint {
	return &v
}
