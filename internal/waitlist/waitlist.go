// Package waitlist promotes waitlisted attendees when an event has free
// capacity and invites each promoted attendee.
package waitlist

import (
	"context"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Inviter queues the invite for one promoted attendee. It reports false
// when the invite was already sent.
type Inviter interface {
	QueueWaitlistInvite(ctx context.Context, eventID, attendeeID uint) (bool, error)
}

// PromotionResult describes one Promote call.
type PromotionResult struct {
	EventID  uint   `json:"event_id" yaml:"event_id"`
	Promoted []uint `json:"promoted" yaml:"promoted"` // attendee ids in promotion order
	Invited  int    `json:"invited" yaml:"invited"`
}

// Manager runs waitlist promotions.
type Manager struct {
	events    repository.EventRepository
	attendees repository.AttendeeRepository
	inviter   Inviter
	audit     ledger.AuditLog
	now       func() time.Time
	log       logger.Logger
}

// NewManager creates a Manager. now defaults to time.Now.
func NewManager(events repository.EventRepository, attendees repository.AttendeeRepository, inviter Inviter, audit ledger.AuditLog, now func() time.Time, log logger.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		events:    events,
		attendees: attendees,
		inviter:   inviter,
		audit:     audit,
		now:       now,
		log:       log.Module("waitlist"),
	}
}

// Promote confirms the earliest waitlisted attendees of eventID until the
// event is full and queues an invite for each of them. Capacity 0 promotes
// everyone. Invite failures do not undo the promotion; they are joined into
// the returned error after every attendee was tried.
func (m *Manager) Promote(ctx context.Context, eventID uint) (*PromotionResult, error) {
	ev, err := m.events.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, errors.New(err).
			Component("waitlist").
			Category(errors.CategoryNotFound).
			Context("event_id", eventID).
			Build()
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	if reason := promotable(ev, now); reason != "" {
		return nil, errors.Newf("event %d cannot promote its waitlist: %s", eventID, reason).
			Component("waitlist").
			Category(errors.CategoryIneligible).
			Build()
	}

	promoted, err := m.attendees.PromoteWaitlisted(ctx, eventID, ev.Capacity, now)
	if err != nil {
		return nil, errors.New(err).
			Component("waitlist").
			Category(errors.CategoryDatabase).
			Context("operation", "promote_waitlisted").
			Context("event_id", eventID).
			Build()
	}

	result := &PromotionResult{EventID: eventID, Promoted: make([]uint, 0, len(promoted))}
	var errs []error
	for i := range promoted {
		a := &promoted[i]
		result.Promoted = append(result.Promoted, a.ID)

		err := m.audit.Append(ctx, ledger.AuditEntry{
			EventID:          &eventID,
			Action:           ledger.ActionPromoted,
			NotificationType: "waitlist_invite",
			RecipientHash:    ledger.HashRecipient(a.Email),
			Metadata:         map[string]any{"attendee_id": a.ID},
		})
		if err != nil {
			m.log.Warn("failed to audit promotion", logger.Uint("attendee_id", a.ID), logger.Error(err))
		}

		queued, err := m.inviter.QueueWaitlistInvite(ctx, eventID, a.ID)
		if err != nil {
			errs = append(errs, err)
			m.log.Error("failed to queue waitlist invite",
				logger.Uint("event_id", eventID),
				logger.Uint("attendee_id", a.ID),
				logger.Error(err))
			continue
		}
		if queued {
			result.Invited++
		}
	}

	m.log.Info("waitlist promoted",
		logger.Uint("event_id", eventID),
		logger.Int("capacity", ev.Capacity),
		logger.Int("promoted", len(result.Promoted)),
		logger.Int("invited", result.Invited))
	return result, errors.Join(errs...)
}

func promotable(ev *entities.Event, now time.Time) string {
	switch {
	case ev.IsCancelled():
		return "event is cancelled"
	case !ev.IsPublished():
		return "event is not published"
	case ev.HasEnded(now):
		return "event has ended"
	}
	return ""
}
