package automation

import (
	"context"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// DigestWatermarkKey is the state key holding the last digest sweep.
const DigestWatermarkKey = "weekly_digest_last_run"

// digestInterval is the minimum time between two digest sweeps.
const digestInterval = 7 * 24 * time.Hour

// Scan windows relative to now.
const (
	salesOpenLookback = time.Hour
	cancelledLookback = 24 * time.Hour
	reminderSlack     = time.Hour
)

// ScanReport summarizes one kind's sweep.
type ScanReport struct {
	Kind           Kind          `json:"kind" yaml:"kind"`
	Candidates     int           `json:"candidates" yaml:"candidates"`
	Enqueued       int           `json:"enqueued" yaml:"enqueued"`
	AlreadySent    int           `json:"already_sent" yaml:"already_sent"`
	Ineligible     int           `json:"ineligible" yaml:"ineligible"`
	Gated          bool          `json:"gated,omitempty" yaml:"gated,omitempty"`
	NotImplemented bool          `json:"not_implemented,omitempty" yaml:"not_implemented,omitempty"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Err            error         `json:"-" yaml:"-"`
}

// Scanner discovers due notifications and enqueues one job per recipient.
type Scanner struct {
	deps Deps
	log  logger.Logger
}

// NewScanner creates a Scanner.
func NewScanner(deps Deps) (*Scanner, error) {
	if err := deps.validate("scanner", "ledger", "audit", "queue", "events", "attendees", "accounts", "state", "settings", "log"); err != nil {
		return nil, err
	}
	deps.Log = deps.Log.Module("scanner")
	return &Scanner{deps: deps, log: deps.Log}, nil
}

// ScanAll sweeps every scanned kind in registry order. A failing kind does
// not stop the others; the failures are joined. The waitlist scan has no
// discovery query and is reported as not implemented without failing.
func (s *Scanner) ScanAll(ctx context.Context) ([]ScanReport, error) {
	var reports []ScanReport
	var errs []error
	for _, info := range registry {
		if info.Trigger == TriggerOnDemand {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.Scan(ctx, info.Kind)
		reports = append(reports, report)
		if err != nil && !report.NotImplemented {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Scan sweeps one kind. The first error aborts the sweep and is returned
// with the partial report.
func (s *Scanner) Scan(ctx context.Context, kind Kind) (ScanReport, error) {
	report := ScanReport{Kind: kind}
	if !kind.Valid() {
		_, err := ParseKind(string(kind))
		report.Err = err
		return report, err
	}

	timer := s.deps.Metrics.StartScanTimer(string(kind))
	now := s.deps.now()

	var err error
	switch kind {
	case KindSalesOpen:
		err = s.scanSalesOpen(ctx, now, &report)
	case KindReminder24h:
		err = s.scanReminders(ctx, kind, now, 24*time.Hour, &report)
	case KindReminder2h:
		err = s.scanReminders(ctx, kind, now, 2*time.Hour, &report)
	case KindEventCancelled:
		err = s.scanCancelled(ctx, now, &report)
	case KindWeeklyDigest:
		err = s.scanWeeklyDigest(ctx, now, &report)
	case KindWaitlistInvite:
		report.NotImplemented = true
		err = ErrNotImplemented
	case KindExportReadyCSV, KindExportReadyICS:
		err = ErrOnDemandOnly
	}

	report.Duration = timer.ObserveDuration(report.Enqueued)
	report.Err = err

	fields := []logger.Field{
		logger.String("type", string(kind)),
		logger.Int("candidates", report.Candidates),
		logger.Int("enqueued", report.Enqueued),
		logger.Int("already_sent", report.AlreadySent),
		logger.Int("ineligible", report.Ineligible),
		logger.Duration("duration", report.Duration),
	}
	switch {
	case err == nil:
		s.log.Info("scan completed", fields...)
	case report.NotImplemented:
		s.log.Debug("scan not implemented", fields...)
	default:
		s.log.Error("scan failed", append(fields, logger.Error(err))...)
	}
	return report, err
}

func (s *Scanner) scanSalesOpen(ctx context.Context, now time.Time, report *ScanReport) error {
	events, err := s.deps.Events.ListSalesOpening(ctx, now.Add(-salesOpenLookback), now)
	if err != nil {
		return scanError(err, KindSalesOpen, "list_sales_opening")
	}
	for i := range events {
		ev := &events[i]
		if reason := eventIneligibility(KindSalesOpen, ev, now); reason != "" {
			report.Ineligible++
			continue
		}

		owner, err := s.deps.Accounts.GetAccount(ctx, ev.OwnerID)
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.log.Warn("event owner not found", logger.Uint("event_id", ev.ID), logger.Uint("owner_id", ev.OwnerID))
			report.Ineligible++
			continue
		}
		if err != nil {
			return scanError(err, KindSalesOpen, "get_owner")
		}
		if !owner.Active {
			report.Ineligible++
			continue
		}

		report.Candidates++
		eventID, userID := ev.ID, owner.ID
		ok, err := s.deps.enqueue(ctx, target{
			kind:         KindSalesOpen,
			eventID:      &eventID,
			identifier:   owner.Email,
			scheduledFor: ev.SalesOpenAt,
			metadata:     map[string]any{"user_id": userID},
			build: func(id uint) Job {
				return SalesOpenJob{DispatchID: id, EventID: eventID, UserID: userID}
			},
		})
		if err != nil {
			return scanError(err, KindSalesOpen, "enqueue")
		}
		count(report, ok)
	}
	return nil
}

func (s *Scanner) scanReminders(ctx context.Context, kind Kind, now time.Time, lead time.Duration, report *ScanReport) error {
	from := now.Add(lead - reminderSlack)
	to := now.Add(lead + reminderSlack)
	events, err := s.deps.Events.ListStartingBetween(ctx, from, to)
	if err != nil {
		return scanError(err, kind, "list_starting_between")
	}
	for i := range events {
		ev := &events[i]
		if reason := eventIneligibility(kind, ev, now); reason != "" {
			report.Ineligible++
			continue
		}
		scheduled := ev.StartsAt.Add(-lead)
		if err := s.fanOut(ctx, kind, ev, &scheduled, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanCancelled(ctx context.Context, now time.Time, report *ScanReport) error {
	events, err := s.deps.Events.ListCancelledBetween(ctx, now.Add(-cancelledLookback), now)
	if err != nil {
		return scanError(err, KindEventCancelled, "list_cancelled_between")
	}
	for i := range events {
		ev := &events[i]
		if reason := eventIneligibility(KindEventCancelled, ev, now); reason != "" {
			report.Ineligible++
			continue
		}
		if err := s.fanOut(ctx, KindEventCancelled, ev, ev.CancelledAt, report); err != nil {
			return err
		}
	}
	return nil
}

// fanOut enqueues kind for every confirmed attendee of ev.
func (s *Scanner) fanOut(ctx context.Context, kind Kind, ev *entities.Event, scheduledFor *time.Time, report *ScanReport) error {
	attendees, err := s.deps.Attendees.ListConfirmed(ctx, ev.ID)
	if err != nil {
		return scanError(err, kind, "list_confirmed")
	}
	for _, a := range attendees {
		report.Candidates++
		ok, err := s.deps.enqueue(ctx, attendeeTarget(kind, ev.ID, a.ID, a.Email, scheduledFor))
		if err != nil {
			return scanError(err, kind, "enqueue")
		}
		count(report, ok)
	}
	return nil
}

func (s *Scanner) scanWeeklyDigest(ctx context.Context, now time.Time, report *ScanReport) error {
	settings := s.deps.Settings
	loc := settings.Location()
	if now.In(loc).Weekday() != settings.Weekday() {
		report.Gated = true
		return nil
	}

	lastRun, ok, err := s.deps.State.GetTime(ctx, DigestWatermarkKey)
	if err != nil {
		return scanError(err, KindWeeklyDigest, "read_watermark")
	}
	if ok && now.Sub(lastRun) < digestInterval {
		report.Gated = true
		s.log.Debug("weekly digest already ran", logger.Time("last_run", lastRun))
		return nil
	}

	accounts, err := s.deps.Accounts.ListDigestSubscribers(ctx)
	if err != nil {
		return scanError(err, KindWeeklyDigest, "list_digest_subscribers")
	}
	for _, account := range accounts {
		report.Candidates++
		userID := account.ID
		ok, err := s.deps.enqueue(ctx, target{
			kind:       KindWeeklyDigest,
			identifier: digestIdentifier(account.Email, now, loc),
			metadata:   map[string]any{"user_id": userID},
			build: func(id uint) Job {
				return WeeklyDigestJob{DispatchID: id, UserID: userID}
			},
		})
		if err != nil {
			return scanError(err, KindWeeklyDigest, "enqueue")
		}
		count(report, ok)
	}

	if err := s.deps.State.SetTime(ctx, DigestWatermarkKey, now); err != nil {
		return scanError(err, KindWeeklyDigest, "write_watermark")
	}
	return nil
}

func count(report *ScanReport, enqueued bool) {
	if enqueued {
		report.Enqueued++
	} else {
		report.AlreadySent++
	}
}

func scanError(err error, kind Kind, operation string) error {
	return errors.New(err).
		Component("automation").
		Context("operation", operation).
		Context("notification_type", string(kind)).
		Build()
}
