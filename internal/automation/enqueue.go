package automation

import (
	"context"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// target is one recipient of one kind, ready to be recorded and queued.
type target struct {
	kind         Kind
	eventID      *uint
	identifier   string // hashed into the recipient hash; usually the email
	scheduledFor *time.Time
	metadata     map[string]any
	build        func(dispatchID uint) Job
}

// enqueue records a scheduled dispatch for t and publishes its job. It
// returns false without error when the triple was already sent.
//
// A publish failure marks the new record failed so it cannot linger as
// scheduled. An audit failure after a successful publish is only logged:
// the job is already on the queue.
func (d *Deps) enqueue(ctx context.Context, t target) (bool, error) {
	notificationType := string(t.kind)
	hash := ledger.HashRecipient(t.identifier)

	sent, err := d.Ledger.IsAlreadySent(ctx, t.eventID, notificationType, hash)
	if err != nil {
		return false, err
	}
	if sent {
		return false, nil
	}

	id, err := d.Ledger.CreateDispatch(ctx, t.eventID, notificationType, hash, t.scheduledFor, t.metadata)
	if err != nil {
		return false, err
	}
	d.Metrics.RecordDispatchCreated(notificationType)

	log := d.Log.With(
		logger.Uint("dispatch_id", id),
		logger.String("type", notificationType),
		logger.String("recipient_hash", hash))

	body, err := EncodeJob(t.build(id))
	if err == nil {
		err = d.Queue.Publish(ctx, t.kind.Queue(), body)
	}
	if err != nil {
		if markErr := d.Ledger.MarkFailed(context.WithoutCancel(ctx), id, "enqueue failed: "+err.Error()); markErr != nil {
			log.Error("failed to mark unpublished dispatch", logger.Error(markErr))
		}
		return false, err
	}

	err = d.Audit.Append(ctx, ledger.AuditEntry{
		EventID:          t.eventID,
		DispatchID:       &id,
		Action:           ledger.ActionEnqueued,
		NotificationType: notificationType,
		RecipientHash:    hash,
		Metadata:         map[string]any{"queue": t.kind.Queue()},
	})
	if err != nil {
		log.Warn("failed to audit enqueued dispatch", logger.Error(err))
	}
	log.Debug("dispatch enqueued", logger.String("queue", t.kind.Queue()))
	return true, nil
}

// attendeeTarget builds the target for an attendee-facing kind.
func attendeeTarget(kind Kind, eventID, attendeeID uint, email string, scheduledFor *time.Time) target {
	return target{
		kind:         kind,
		eventID:      &eventID,
		identifier:   email,
		scheduledFor: scheduledFor,
		metadata:     map[string]any{"attendee_id": attendeeID},
		build: func(id uint) Job {
			switch kind {
			case KindWaitlistInvite:
				return WaitlistInviteJob{DispatchID: id, EventID: eventID, AttendeeID: attendeeID, RecipientEmail: email}
			case KindEventCancelled:
				return EventCancelledJob{DispatchID: id, EventID: eventID, AttendeeID: attendeeID, RecipientEmail: email}
			default:
				return ReminderJob{Kind: kind, DispatchID: id, EventID: eventID, AttendeeID: attendeeID, RecipientEmail: email}
			}
		},
	}
}
