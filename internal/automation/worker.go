package automation

import (
	"context"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Outcome is the terminal result of handling one job.
type Outcome string

// Job outcomes
const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeDropped Outcome = "dropped" // no ledger update
	OutcomeRetry   Outcome = "retry"   // ledger unreachable, record still scheduled
)

const (
	// digestLimit caps the events listed in one digest.
	digestLimit = 20
	// settleTimeout bounds the second MarkSent attempt after delivery.
	settleTimeout = 5 * time.Second
)

// Worker delivers queued jobs. Handle never returns an error: a job ends
// in a ledger status, or in OutcomeRetry when the ledger could not be
// read or written before anything was delivered.
type Worker struct {
	deps Deps
	log  logger.Logger
}

// NewWorker creates a Worker.
func NewWorker(deps Deps) (*Worker, error) {
	if err := deps.validate("worker", "ledger", "audit", "events", "attendees", "accounts", "mailer", "settings", "log"); err != nil {
		return nil, err
	}
	deps.Log = deps.Log.Module("worker")
	return &Worker{deps: deps, log: deps.Log}, nil
}

// resolved holds the entities a job refers to.
type resolved struct {
	event     *entities.Event
	attendee  *entities.Attendee
	account   *entities.Account
	recipient string
	name      string
	digest    []entities.Event
}

// Handle processes one queued payload.
func (w *Worker) Handle(ctx context.Context, body []byte) Outcome {
	job, err := DecodeJob(body)
	if err != nil {
		w.log.Warn("dropping malformed job", logger.Error(err), logger.Int("size", len(body)))
		w.deps.Metrics.RecordOutcome("unknown", string(OutcomeDropped))
		return OutcomeDropped
	}
	outcome := w.handle(ctx, job)
	w.deps.Metrics.RecordOutcome(string(job.JobKind()), string(outcome))
	return outcome
}

func (w *Worker) handle(ctx context.Context, job Job) Outcome {
	kind := job.JobKind()
	log := w.log.With(
		logger.Uint("dispatch_id", job.Dispatch()),
		logger.String("type", string(kind)))

	record, err := w.deps.Ledger.Get(ctx, job.Dispatch())
	if errors.Is(err, ledger.ErrDispatchNotFound) {
		log.Warn("dropping job without dispatch record")
		return OutcomeDropped
	}
	if err != nil {
		log.Error("failed to load dispatch record", logger.Error(err))
		return OutcomeRetry
	}
	if record.NotificationType != string(kind) {
		log.Warn("dropping job",
			logger.String("reason", ReasonKindMismatch),
			logger.String("record_type", record.NotificationType))
		return OutcomeDropped
	}
	// A redelivered job must not rewrite a settled record.
	if record.Status == ledger.StatusSent || record.Status == ledger.StatusSkipped {
		log.Debug("dispatch already settled", logger.String("status", record.Status))
		return OutcomeSkipped
	}
	log = log.With(logger.String("recipient_hash", record.RecipientHash))

	r, err := w.load(ctx, job)
	if err != nil {
		var verdict *verdictError
		if errors.As(err, &verdict) {
			log.Warn("referenced entity not found", logger.String("reason", verdict.reason))
			return w.fail(ctx, log, record, verdict.reason, nil)
		}
		log.Error("failed to load job entities", logger.Error(err))
		return w.fail(ctx, log, record, err.Error(), nil)
	}

	sent, err := w.deps.Ledger.IsAlreadySent(ctx, record.EventID, record.NotificationType, record.RecipientHash)
	if err != nil {
		log.Error("idempotency check failed", logger.Error(err))
		return OutcomeRetry
	}
	if sent {
		return w.skip(ctx, log, record, ReasonAlreadySent)
	}

	if err := w.eligible(job, r); err != nil {
		var verdict *verdictError
		if errors.As(err, &verdict) {
			return w.skip(ctx, log, record, verdict.reason)
		}
		log.Error("eligibility check failed", logger.Error(err))
		return w.fail(ctx, log, record, err.Error(), nil)
	}

	params, err := w.params(job, r)
	if err != nil {
		log.Error("failed to build message context", logger.Error(err))
		return w.fail(ctx, log, record, err.Error(), nil)
	}

	if err := w.deps.Mailer.Queue(ctx, kind.Template(), r.recipient, params); err != nil {
		log.Error("delivery failed", logger.Error(err))
		return w.fail(ctx, log, record, err.Error(), err)
	}

	if err := w.markSent(ctx, log, record.ID); err != nil {
		if errors.Is(err, ledger.ErrDuplicateSend) {
			log.Warn("another dispatch reached sent first")
			return w.skip(ctx, log, record, ReasonAlreadySent)
		}
		// Delivered but unrecorded. Redelivery would send the message again.
		log.Error("failed to mark dispatch sent", logger.Error(err))
		return OutcomeFailed
	}
	w.audit(ctx, log, record, ledger.ActionSent, map[string]any{"template": kind.Template()})
	log.Info("notification sent")
	return OutcomeSent
}

// markSent records delivery. A failed write is tried once more on a
// context detached from the job deadline, since the message is already out.
func (w *Worker) markSent(ctx context.Context, log logger.Logger, id uint) error {
	err := w.deps.Ledger.MarkSent(ctx, id)
	if err == nil || errors.Is(err, ledger.ErrDuplicateSend) || errors.Is(err, ledger.ErrDispatchNotFound) {
		return err
	}
	log.Warn("retrying mark sent", logger.Error(err))
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return w.deps.Ledger.MarkSent(settleCtx, id)
}

// load resolves the entities a job refers to.
func (w *Worker) load(ctx context.Context, job Job) (*resolved, error) {
	switch j := job.(type) {
	case SalesOpenJob:
		ev, err := w.event(ctx, j.EventID)
		if err != nil {
			return nil, err
		}
		account, err := w.account(ctx, j.UserID)
		if err != nil {
			return nil, err
		}
		return &resolved{event: ev, account: account, recipient: account.Email, name: account.Name}, nil
	case ReminderJob:
		return w.loadAttendeeJob(ctx, j.EventID, j.AttendeeID, j.RecipientEmail)
	case WaitlistInviteJob:
		return w.loadAttendeeJob(ctx, j.EventID, j.AttendeeID, j.RecipientEmail)
	case EventCancelledJob:
		return w.loadAttendeeJob(ctx, j.EventID, j.AttendeeID, j.RecipientEmail)
	case ExportReadyJob:
		account, err := w.account(ctx, j.UserID)
		if err != nil {
			return nil, err
		}
		return &resolved{account: account, recipient: account.Email, name: account.Name}, nil
	case WeeklyDigestJob:
		account, err := w.account(ctx, j.UserID)
		if err != nil {
			return nil, err
		}
		r := &resolved{account: account, recipient: account.Email, name: account.Name}
		categoryIDs := make([]uint, 0, len(account.Subscriptions))
		for _, sub := range account.Subscriptions {
			categoryIDs = append(categoryIDs, sub.CategoryID)
		}
		now := w.deps.now()
		r.digest, err = w.deps.Events.ListUpcomingInCategories(ctx, categoryIDs, now, now.Add(w.deps.Settings.DigestLookahead), digestLimit)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, errors.Newf("unknown job variant %T", job).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
}

func (w *Worker) loadAttendeeJob(ctx context.Context, eventID, attendeeID uint, email string) (*resolved, error) {
	ev, err := w.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	attendee, err := w.deps.Attendees.GetAttendee(ctx, attendeeID)
	if errors.Is(err, repository.ErrAttendeeNotFound) {
		return nil, notFound(ReasonAttendeeNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	if attendee.EventID != ev.ID {
		return nil, notFound(ReasonAttendeeNotFound, nil)
	}
	return &resolved{event: ev, attendee: attendee, recipient: email, name: attendee.Name}, nil
}

func (w *Worker) event(ctx context.Context, id uint) (*entities.Event, error) {
	ev, err := w.deps.Events.GetEvent(ctx, id)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, notFound(ReasonEventNotFound, err)
	}
	return ev, err
}

func (w *Worker) account(ctx context.Context, id uint) (*entities.Account, error) {
	account, err := w.deps.Accounts.GetAccount(ctx, id)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, notFound(ReasonUserNotFound, err)
	}
	return account, err
}

// eligible re-derives whether the notification still applies.
func (w *Worker) eligible(job Job, r *resolved) error {
	now := w.deps.now()
	switch j := job.(type) {
	case SalesOpenJob:
		if reason := eventIneligibility(KindSalesOpen, r.event, now); reason != "" {
			return ineligible(reason)
		}
		if !r.account.Active {
			return ineligible(ReasonUserInactive)
		}
		if r.event.OwnerID != r.account.ID {
			return ineligible(ReasonNotOwner)
		}
	case ReminderJob:
		if reason := eventIneligibility(j.Kind, r.event, now); reason != "" {
			return ineligible(reason)
		}
		if r.attendee.Status != entities.AttendeeConfirmed {
			return ineligible(ReasonNotConfirmed)
		}
	case WaitlistInviteJob:
		if reason := eventIneligibility(KindWaitlistInvite, r.event, now); reason != "" {
			return ineligible(reason)
		}
		if r.attendee.Status != entities.AttendeeConfirmed {
			return ineligible(ReasonNotConfirmed)
		}
		if r.attendee.PromotedAt == nil {
			return ineligible(ReasonNotWaitlistPromo)
		}
	case EventCancelledJob:
		if reason := eventIneligibility(KindEventCancelled, r.event, now); reason != "" {
			return ineligible(reason)
		}
	case ExportReadyJob:
		if !r.account.Active {
			return ineligible(ReasonUserInactive)
		}
	case WeeklyDigestJob:
		if !r.account.Active {
			return ineligible(ReasonUserInactive)
		}
		if !r.account.DigestOptIn {
			return ineligible(ReasonDigestOptOut)
		}
		if len(r.digest) == 0 {
			return ineligible(ReasonDigestEmpty)
		}
	default:
		return errors.Newf("unknown job variant %T", job).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func (w *Worker) skip(ctx context.Context, log logger.Logger, record *entities.DispatchRecord, reason string) Outcome {
	if err := w.deps.Ledger.MarkSkipped(ctx, record.ID, reason); err != nil {
		log.Error("failed to mark dispatch skipped", logger.Error(err))
		return OutcomeRetry
	}
	w.audit(ctx, log, record, ledger.ActionSkipped, map[string]any{"reason": reason})
	log.Info("dispatch skipped", logger.String("reason", reason))
	return OutcomeSkipped
}

func (w *Worker) fail(ctx context.Context, log logger.Logger, record *entities.DispatchRecord, reason string, cause error) Outcome {
	if err := w.deps.Ledger.MarkFailed(ctx, record.ID, reason); err != nil {
		log.Error("failed to mark dispatch failed", logger.Error(err))
		return OutcomeRetry
	}
	metadata := map[string]any{"reason": reason}
	if cause != nil {
		var ee *errors.EnhancedError
		if errors.As(cause, &ee) {
			metadata["category"] = ee.GetCategory()
		}
	}
	w.audit(ctx, log, record, ledger.ActionFailed, metadata)
	return OutcomeFailed
}

func (w *Worker) audit(ctx context.Context, log logger.Logger, record *entities.DispatchRecord, action string, metadata map[string]any) {
	err := w.deps.Audit.Append(ctx, ledger.AuditEntry{
		EventID:          record.EventID,
		DispatchID:       &record.ID,
		Action:           action,
		NotificationType: record.NotificationType,
		RecipientHash:    record.RecipientHash,
		Metadata:         metadata,
	})
	if err != nil {
		log.Warn("failed to append audit entry", logger.String("action", action), logger.Error(err))
	}
}
