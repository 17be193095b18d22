package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

// failingQueue rejects publishes to one queue.
type failingQueue struct {
	queue.Queue
	failOn string
}

func (q *failingQueue) Publish(ctx context.Context, name string, body []byte) error {
	if name == q.failOn {
		return errors.NewStd("broker unavailable")
	}
	return q.Queue.Publish(ctx, name, body)
}

func TestScanner_SalesOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()

	owner := testutil.CreateAccount(t, h.db)
	inactive := testutil.CreateAccount(t, h.db, func(a *entities.Account) { a.Active = false })
	due := testutil.CreateEvent(t, h.db, owner.ID, now.Add(14*24*time.Hour), func(e *entities.Event) {
		e.SalesOpenAt = testutil.TimePtr(now.Add(-30 * time.Minute))
	})
	testutil.CreateEvent(t, h.db, inactive.ID, now.Add(14*24*time.Hour), func(e *entities.Event) {
		e.SalesOpenAt = testutil.TimePtr(now.Add(-10 * time.Minute))
	})
	testutil.CreateEvent(t, h.db, owner.ID, now.Add(14*24*time.Hour), func(e *entities.Event) {
		e.SalesOpenAt = testutil.TimePtr(now.Add(-3 * time.Hour))
	})

	report, err := h.scanner(t).Scan(t.Context(), KindSalesOpen)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, 1, report.Ineligible)

	jobs := h.drain(t, KindSalesOpen)
	require.Len(t, jobs, 1)
	job, ok := jobs[0].(SalesOpenJob)
	require.True(t, ok)
	assert.Equal(t, due.ID, job.EventID)
	assert.Equal(t, owner.ID, job.UserID)

	record := h.record(t, job.DispatchID)
	assert.Equal(t, ledger.StatusScheduled, record.Status)
	assert.Equal(t, ledger.HashRecipient(owner.Email), record.RecipientHash)
	require.NotNil(t, record.EventID)
	assert.Equal(t, due.ID, *record.EventID)

	audit, err := h.deps.Audit.List(t.Context(), &due.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.ActionEnqueued, audit[0].Action)
}

func TestScanner_Reminders(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	owner := testutil.CreateAccount(t, h.db)

	dayAhead := testutil.CreateEvent(t, h.db, owner.ID, now.Add(24*time.Hour+20*time.Minute))
	first := testutil.CreateAttendee(t, h.db, dayAhead.ID, entities.AttendeeConfirmed)
	second := testutil.CreateAttendee(t, h.db, dayAhead.ID, entities.AttendeeConfirmed)
	testutil.CreateAttendee(t, h.db, dayAhead.ID, entities.AttendeeWaitlisted)

	soon := testutil.CreateEvent(t, h.db, owner.ID, now.Add(2*time.Hour))
	testutil.CreateAttendee(t, h.db, soon.ID, entities.AttendeeConfirmed)

	draft := testutil.CreateEvent(t, h.db, owner.ID, now.Add(24*time.Hour), func(e *entities.Event) {
		e.State = entities.EventStateDraft
	})
	testutil.CreateAttendee(t, h.db, draft.ID, entities.AttendeeConfirmed)

	later := testutil.CreateEvent(t, h.db, owner.ID, now.Add(12*time.Hour))
	testutil.CreateAttendee(t, h.db, later.ID, entities.AttendeeConfirmed)

	s := h.scanner(t)
	report, err := s.Scan(t.Context(), KindReminder24h)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Enqueued)

	jobs := h.drain(t, KindReminder24h)
	require.Len(t, jobs, 2)
	emails := []string{}
	for _, j := range jobs {
		r, ok := j.(ReminderJob)
		require.True(t, ok)
		assert.Equal(t, KindReminder24h, r.Kind)
		assert.Equal(t, dayAhead.ID, r.EventID)
		emails = append(emails, r.RecipientEmail)
	}
	assert.ElementsMatch(t, []string{first.Email, second.Email}, emails)

	report, err = s.Scan(t.Context(), KindReminder2h)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)
	require.Len(t, h.drain(t, KindReminder2h), 1)
}

func TestScanner_SkipsRecipientsAlreadySent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	owner := testutil.CreateAccount(t, h.db)
	ev := testutil.CreateEvent(t, h.db, owner.ID, now.Add(24*time.Hour))
	done := testutil.CreateAttendee(t, h.db, ev.ID, entities.AttendeeConfirmed)
	testutil.CreateAttendee(t, h.db, ev.ID, entities.AttendeeConfirmed)

	id := h.dispatch(t, &ev.ID, KindReminder24h, done.Email)
	require.NoError(t, h.ledger.MarkSent(t.Context(), id))

	report, err := h.scanner(t).Scan(t.Context(), KindReminder24h)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, 1, report.AlreadySent)

	records, err := h.ledger.List(t.Context(), ledger.Filter{EventID: &ev.ID})
	require.NoError(t, err)
	assert.Len(t, records, 2, "no record is created for the sent recipient")
}

func TestScanner_EventCancelled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	owner := testutil.CreateAccount(t, h.db)

	cancelled := testutil.CreateEvent(t, h.db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) {
		e.State = entities.EventStateCancelled
		e.CancelledAt = testutil.TimePtr(now.Add(-2 * time.Hour))
	})
	testutil.CreateAttendee(t, h.db, cancelled.ID, entities.AttendeeConfirmed)
	testutil.CreateAttendee(t, h.db, cancelled.ID, entities.AttendeeWaitlisted)

	old := testutil.CreateEvent(t, h.db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) {
		e.State = entities.EventStateCancelled
		e.CancelledAt = testutil.TimePtr(now.Add(-48 * time.Hour))
	})
	testutil.CreateAttendee(t, h.db, old.ID, entities.AttendeeConfirmed)

	report, err := h.scanner(t).Scan(t.Context(), KindEventCancelled)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)

	jobs := h.drain(t, KindEventCancelled)
	require.Len(t, jobs, 1)
	assert.Equal(t, cancelled.ID, jobs[0].(EventCancelledJob).EventID)
}

func TestScanner_WeeklyDigestRunsOncePerWeek(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	category := testutil.CreateCategory(t, h.db, "")
	subscriber := testutil.CreateAccount(t, h.db, func(a *entities.Account) { a.DigestOptIn = true })
	testutil.Subscribe(t, h.db, subscriber.ID, category.ID)
	optedOut := testutil.CreateAccount(t, h.db)
	testutil.Subscribe(t, h.db, optedOut.ID, category.ID)

	s := h.scanner(t)
	report, err := s.Scan(t.Context(), KindWeeklyDigest)
	require.NoError(t, err)
	assert.False(t, report.Gated)
	assert.Equal(t, 1, report.Enqueued)

	jobs := h.drain(t, KindWeeklyDigest)
	require.Len(t, jobs, 1)
	assert.Equal(t, subscriber.ID, jobs[0].(WeeklyDigestJob).UserID)
	record := h.record(t, jobs[0].Dispatch())
	assert.Nil(t, record.EventID)

	lastRun, ok, err := h.state.GetTime(t.Context(), DigestWatermarkKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, lastRun.Equal(monday))

	h.clock.Set(monday.Add(2 * time.Hour))
	report, err = s.Scan(t.Context(), KindWeeklyDigest)
	require.NoError(t, err)
	assert.True(t, report.Gated)
	assert.Zero(t, report.Enqueued)
	assert.Empty(t, h.drain(t, KindWeeklyDigest))

	h.clock.Set(monday.Add(24 * time.Hour))
	report, err = s.Scan(t.Context(), KindWeeklyDigest)
	require.NoError(t, err)
	assert.True(t, report.Gated, "tuesday is not digest day")

	h.clock.Set(monday.Add(7 * 24 * time.Hour))
	report, err = s.Scan(t.Context(), KindWeeklyDigest)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued, "next week runs again")
}

func TestScanner_WaitlistAndOnDemandKinds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.scanner(t)

	report, err := s.Scan(t.Context(), KindWaitlistInvite)
	require.ErrorIs(t, err, ErrNotImplemented)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotImplemented))
	assert.True(t, report.NotImplemented)
	assert.Zero(t, h.queue.Len(KindWaitlistInvite.Queue()))

	_, err = s.Scan(t.Context(), KindExportReadyCSV)
	require.ErrorIs(t, err, ErrOnDemandOnly)

	_, err = s.Scan(t.Context(), Kind("bogus"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestScanner_ScanAllContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Queue = &failingQueue{Queue: h.queue, failOn: KindReminder24h.Queue()}
	now := h.clock.Now()
	owner := testutil.CreateAccount(t, h.db)

	tomorrow := testutil.CreateEvent(t, h.db, owner.ID, now.Add(24*time.Hour))
	testutil.CreateAttendee(t, h.db, tomorrow.ID, entities.AttendeeConfirmed)
	soon := testutil.CreateEvent(t, h.db, owner.ID, now.Add(2*time.Hour))
	testutil.CreateAttendee(t, h.db, soon.ID, entities.AttendeeConfirmed)

	reports, err := h.scanner(t).ScanAll(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.NotErrorIs(t, err, ErrNotImplemented)

	byKind := make(map[Kind]ScanReport)
	for _, r := range reports {
		byKind[r.Kind] = r
	}
	assert.Len(t, reports, 6, "every scanned kind plus the waitlist stub")
	require.Error(t, byKind[KindReminder24h].Err)
	assert.Equal(t, 1, byKind[KindReminder2h].Enqueued, "later kinds still run")
	assert.True(t, byKind[KindWaitlistInvite].NotImplemented)

	records, err := h.ledger.List(t.Context(), ledger.Filter{EventID: &tomorrow.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
	assert.Contains(t, records[0].LastError, "enqueue failed")
}
