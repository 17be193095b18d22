package automation

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Export formats accepted by QueueExportReady.
const (
	ExportCSV = "csv"
	ExportICS = "ics"
)

// Export limit used when the settings leave it unset.
const (
	defaultExportLimit  = 10
	defaultExportPeriod = time.Hour
)

// Dispatcher creates dispatches outside the scanner: on explicit requests
// and when a domain action happens.
type Dispatcher struct {
	deps Deps
	log  logger.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if err := deps.validate("dispatcher", "ledger", "audit", "queue", "events", "attendees", "accounts", "limiter", "settings", "log"); err != nil {
		return nil, err
	}
	deps.Log = deps.Log.Module("dispatcher")
	return &Dispatcher{deps: deps, log: deps.Log}, nil
}

// QueueExportReady tells userID that an export can be downloaded from
// fileURL. Requests are limited per user; over the limit it returns
// ErrRateLimited. A second request for the same file returns 0 without
// queueing once the first was sent.
func (d *Dispatcher) QueueExportReady(ctx context.Context, userID uint, format, fileURL string) (uint, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	var kind Kind
	switch format {
	case ExportCSV:
		kind = KindExportReadyCSV
	case ExportICS:
		kind = KindExportReadyICS
	default:
		return 0, errors.Newf("unsupported export format %q", format).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	u, err := url.Parse(strings.TrimSpace(fileURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return 0, errors.Newf("export file url must be absolute: %q", fileURL).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	fileURL = u.String()

	account, err := d.deps.Accounts.GetAccount(ctx, userID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return 0, errors.New(err).
			Component("automation").
			Category(errors.CategoryNotFound).
			Context("user_id", userID).
			Build()
	}
	if err != nil {
		return 0, err
	}

	limit := d.deps.Settings.ExportLimit
	if limit <= 0 {
		limit = defaultExportLimit
	}
	period := d.deps.Settings.ExportPeriod
	if period <= 0 {
		period = defaultExportPeriod
	}
	identifier := "export_ready:" + strconv.FormatUint(uint64(userID), 10)
	res, err := d.deps.Limiter.CheckLimit(ctx, identifier, limit, period)
	if err != nil {
		return 0, err
	}
	d.deps.Metrics.RecordRateLimit("export_ready", res.Allowed)
	if !res.Allowed {
		d.log.Warn("export notice rate limited",
			logger.Uint("user_id", userID),
			logger.Time("reset_at", res.ResetAt))
		return 0, ErrRateLimited
	}

	var dispatchID uint
	_, err = d.deps.enqueue(ctx, target{
		kind:       kind,
		identifier: exportIdentifier(account.Email, fileURL),
		metadata:   map[string]any{"user_id": userID, "export_type": format},
		build: func(id uint) Job {
			dispatchID = id
			return ExportReadyJob{Kind: kind, DispatchID: id, UserID: userID, ExportType: format, FileURL: fileURL}
		},
	})
	if err != nil {
		return 0, err
	}
	return dispatchID, nil
}

// QueueEventCancelled fans the cancellation notice out to every confirmed
// attendee now instead of waiting for the next scan. It returns the number
// of jobs queued.
func (d *Dispatcher) QueueEventCancelled(ctx context.Context, eventID uint) (int, error) {
	ev, err := d.deps.Events.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return 0, errors.New(err).
			Component("automation").
			Category(errors.CategoryNotFound).
			Context("event_id", eventID).
			Build()
	}
	if err != nil {
		return 0, err
	}
	if reason := eventIneligibility(KindEventCancelled, ev, d.deps.now()); reason != "" {
		return 0, errors.New(ineligible(reason)).
			Component("automation").
			Category(errors.CategoryIneligible).
			Context("event_id", eventID).
			Build()
	}

	attendees, err := d.deps.Attendees.ListConfirmed(ctx, eventID)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, a := range attendees {
		ok, err := d.deps.enqueue(ctx, attendeeTarget(KindEventCancelled, eventID, a.ID, a.Email, ev.CancelledAt))
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	d.log.Info("cancellation notices queued",
		logger.Uint("event_id", eventID),
		logger.Int("attendees", len(attendees)),
		logger.Int("queued", queued))
	return queued, nil
}

// QueueWaitlistInvite invites one promoted attendee. It reports false when
// the invite was already sent.
func (d *Dispatcher) QueueWaitlistInvite(ctx context.Context, eventID, attendeeID uint) (bool, error) {
	attendee, err := d.deps.Attendees.GetAttendee(ctx, attendeeID)
	if errors.Is(err, repository.ErrAttendeeNotFound) {
		return false, errors.New(err).
			Component("automation").
			Category(errors.CategoryNotFound).
			Context("attendee_id", attendeeID).
			Build()
	}
	if err != nil {
		return false, err
	}
	if attendee.EventID != eventID {
		return false, errors.Newf("attendee %d is not registered for event %d", attendeeID, eventID).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	return d.deps.enqueue(ctx, attendeeTarget(KindWaitlistInvite, eventID, attendee.ID, attendee.Email, attendee.PromotedAt))
}
