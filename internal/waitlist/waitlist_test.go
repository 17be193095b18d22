package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ratelimit"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/state"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

var now = time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)

type recordingInviter struct {
	mu      sync.Mutex
	invited []uint
	failFor uint
}

func (r *recordingInviter) QueueWaitlistInvite(_ context.Context, _, attendeeID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if attendeeID == r.failFor {
		return false, errors.NewStd("queue down")
	}
	r.invited = append(r.invited, attendeeID)
	return true, nil
}

func newManager(t *testing.T, db *gorm.DB, inviter Inviter) *Manager {
	t.Helper()
	return NewManager(
		repository.NewEventRepository(db),
		repository.NewAttendeeRepository(db),
		inviter,
		ledger.NewAuditLog(db, testutil.DiscardLogger()),
		func() time.Time { return now },
		testutil.DiscardLogger())
}

// waitlistAt inserts a waitlisted attendee registered at created.
func waitlistAt(t *testing.T, db *gorm.DB, eventID uint, created time.Time) *entities.Attendee {
	t.Helper()
	return testutil.CreateAttendee(t, db, eventID, entities.AttendeeWaitlisted, func(a *entities.Attendee) {
		a.CreatedAt = created.UTC()
	})
}

func TestPromote_FirstComeFirstServed(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateAccount(t, db)
	ev := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) { e.Capacity = 3 })
	testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeConfirmed)

	third := waitlistAt(t, db, ev.ID, now.Add(-1*time.Hour))
	first := waitlistAt(t, db, ev.ID, now.Add(-3*time.Hour))
	second := waitlistAt(t, db, ev.ID, now.Add(-2*time.Hour))

	inviter := &recordingInviter{}
	result, err := newManager(t, db, inviter).Promote(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{first.ID, second.ID}, result.Promoted)
	assert.Equal(t, 2, result.Invited)
	assert.Equal(t, []uint{first.ID, second.ID}, inviter.invited)

	remaining, err := repository.NewAttendeeRepository(db).ListWaitlisted(t.Context(), ev.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, third.ID, remaining[0].ID)

	audit, err := ledger.NewAuditLog(db, testutil.DiscardLogger()).List(t.Context(), &ev.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, ledger.ActionPromoted, audit[0].Action)
}

func TestPromote_UnlimitedCapacityPromotesEveryone(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateAccount(t, db)
	ev := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour))
	for i := range 4 {
		waitlistAt(t, db, ev.ID, now.Add(-time.Duration(i+1)*time.Minute))
	}

	result, err := newManager(t, db, &recordingInviter{}).Promote(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Len(t, result.Promoted, 4)
}

func TestPromote_FullEventPromotesNobody(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateAccount(t, db)
	ev := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) { e.Capacity = 1 })
	testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeConfirmed)
	waitlistAt(t, db, ev.ID, now.Add(-time.Hour))

	inviter := &recordingInviter{}
	result, err := newManager(t, db, inviter).Promote(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Promoted)
	assert.Empty(t, inviter.invited)
}

func TestPromote_InviteFailureKeepsGoing(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateAccount(t, db)
	ev := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour))
	first := waitlistAt(t, db, ev.ID, now.Add(-2*time.Hour))
	second := waitlistAt(t, db, ev.ID, now.Add(-time.Hour))

	inviter := &recordingInviter{failFor: first.ID}
	result, err := newManager(t, db, inviter).Promote(t.Context(), ev.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue down")
	assert.Equal(t, []uint{first.ID, second.ID}, result.Promoted)
	assert.Equal(t, 1, result.Invited)
}

func TestPromote_Ineligible(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateAccount(t, db)
	m := newManager(t, db, &recordingInviter{})

	cancelled := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) {
		e.State = entities.EventStateCancelled
	})
	_, err := m.Promote(t.Context(), cancelled.ID)
	assert.True(t, errors.IsCategory(err, errors.CategoryIneligible))

	past := testutil.CreateEvent(t, db, owner.ID, now.Add(-72*time.Hour))
	_, err = m.Promote(t.Context(), past.ID)
	assert.True(t, errors.IsCategory(err, errors.CategoryIneligible))

	_, err = m.Promote(t.Context(), 424242)
	assert.True(t, errors.IsNotFound(err))
}

func TestPromote_QueuesInvitesThroughDispatcher(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	q := queue.NewMemoryQueue(16, testutil.DiscardLogger())
	dispatcher, err := automation.NewDispatcher(automation.Deps{
		Ledger:    ledger.New(db),
		Audit:     ledger.NewAuditLog(db, testutil.DiscardLogger()),
		Queue:     q,
		Events:    repository.NewEventRepository(db),
		Attendees: repository.NewAttendeeRepository(db),
		Accounts:  repository.NewAccountRepository(db),
		State:     state.NewMemoryStore(),
		Limiter:   ratelimit.NewSQLLimiter(db),
		Settings:  &conf.AutomationSettings{},
		Log:       testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	owner := testutil.CreateAccount(t, db)
	ev := testutil.CreateEvent(t, db, owner.ID, now.Add(72*time.Hour), func(e *entities.Event) { e.Capacity = 1 })
	promoted := waitlistAt(t, db, ev.ID, now.Add(-time.Hour))

	result, err := newManager(t, db, dispatcher).Promote(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Invited)

	msgs := q.Drain(automation.KindWaitlistInvite.Queue())
	require.Len(t, msgs, 1)
	job, err := automation.DecodeJob(msgs[0].Body)
	require.NoError(t, err)
	invite, ok := job.(automation.WaitlistInviteJob)
	require.True(t, ok)
	assert.Equal(t, promoted.ID, invite.AttendeeID)
	assert.Equal(t, promoted.Email, invite.RecipientEmail)
}
