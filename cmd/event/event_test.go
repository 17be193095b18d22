package event

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

// seedEvent creates an event in the given state with two confirmed
// attendees and one on the waitlist.
func seedEvent(t *testing.T, settings *conf.Settings, state string) uint {
	t.Helper()
	var eventID uint
	testutil.SeedSettingsDB(t, settings, func(db *gorm.DB) {
		owner := testutil.CreateAccount(t, db)
		ev := testutil.CreateEvent(t, db, owner.ID, time.Now().Add(48*time.Hour), func(e *entities.Event) {
			e.State = state
			if state == entities.EventStateCancelled {
				e.CancelledAt = testutil.TimePtr(time.Now().Add(-time.Hour))
			}
		})
		testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeConfirmed)
		testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeConfirmed)
		testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeWaitlisted)
		eventID = ev.ID
	})
	return eventID
}

// Not parallel: commands install the process-wide logger.
func TestNotifyCancelled_QueuesConfirmedAttendees(t *testing.T) {
	settings := testutil.NewTestSettings(t)
	eventID := seedEvent(t, settings, entities.EventStateCancelled)

	out, err := execute(t, Command(settings), "notify-cancelled", "--event", uintArg(eventID), "-o", "json")
	require.NoError(t, err)

	var result CancelledResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, CancelledResult{EventID: eventID, Queued: 2}, result)

	db, err := datastore.Open(&settings.Database, testutil.DiscardLogger())
	require.NoError(t, err)
	defer func() { _ = datastore.Close(db) }()
	records, err := ledger.New(db).List(t.Context(), ledger.Filter{EventID: &eventID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "event_cancelled", r.NotificationType)
		assert.Equal(t, ledger.StatusScheduled, r.Status)
	}
}

func TestNotifyCancelled_TableOutput(t *testing.T) {
	settings := testutil.NewTestSettings(t)
	eventID := seedEvent(t, settings, entities.EventStateCancelled)

	out, err := execute(t, Command(settings), "notify-cancelled", "--event", uintArg(eventID))
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "2")
}

func TestNotifyCancelled_Rejects(t *testing.T) {
	settings := testutil.NewTestSettings(t)
	live := seedEvent(t, settings, entities.EventStatePublished)

	_, err := execute(t, Command(settings), "notify-cancelled", "--event", uintArg(live))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIneligible))

	_, err = execute(t, Command(settings), "notify-cancelled", "--event", "424242")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = execute(t, Command(settings), "notify-cancelled", "--event", uintArg(live), "-o", "xml")
	require.Error(t, err)

	_, err = execute(t, Command(settings), "notify-cancelled")
	require.ErrorContains(t, err, "required flag")
}

func uintArg(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
