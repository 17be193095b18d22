package waitlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
	waitlistpkg "github.com/anna-pye/myeventlane-v2-sub001/internal/waitlist"
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

// Not parallel: commands install the process-wide logger.
func TestPromoteCommand(t *testing.T) {
	settings := testutil.NewTestSettings(t)
	var eventID, first uint
	testutil.SeedSettingsDB(t, settings, func(db *gorm.DB) {
		owner := testutil.CreateAccount(t, db)
		ev := testutil.CreateEvent(t, db, owner.ID, time.Now().Add(72*time.Hour), func(e *entities.Event) { e.Capacity = 2 })
		testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeConfirmed)
		created := time.Now().Add(-time.Hour).UTC()
		first = testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeWaitlisted, func(a *entities.Attendee) { a.CreatedAt = created }).ID
		testutil.CreateAttendee(t, db, ev.ID, entities.AttendeeWaitlisted, func(a *entities.Attendee) { a.CreatedAt = created.Add(time.Minute) })
		eventID = ev.ID
	})

	out, err := execute(t, Command(settings), "promote", "--event", fmt.Sprint(eventID), "-o", "json")
	require.NoError(t, err)

	var result waitlistpkg.PromotionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, eventID, result.EventID)
	assert.Equal(t, []uint{first}, result.Promoted)
	assert.Equal(t, 1, result.Invited)

	out, err = execute(t, Command(settings), "promote", "--event", fmt.Sprint(eventID), "-o", "json")
	require.NoError(t, err)
	var again waitlistpkg.PromotionResult
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Empty(t, again.Promoted, "event is full after the first promotion")

	out, err = execute(t, Command(settings), "promote", "--event", fmt.Sprint(eventID))
	require.NoError(t, err)
	assert.Contains(t, out, "promoted")
	assert.Contains(t, out, "invited")
}

func TestPromoteCommand_Rejects(t *testing.T) {
	settings := testutil.NewTestSettings(t)
	var cancelled uint
	testutil.SeedSettingsDB(t, settings, func(db *gorm.DB) {
		owner := testutil.CreateAccount(t, db)
		cancelled = testutil.CreateEvent(t, db, owner.ID, time.Now().Add(72*time.Hour), func(e *entities.Event) {
			e.State = entities.EventStateCancelled
		}).ID
	})

	_, err := execute(t, Command(settings), "promote", "--event", fmt.Sprint(cancelled))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIneligible))

	_, err = execute(t, Command(settings), "promote", "--event", "424242")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = execute(t, Command(settings), "promote", "--event", fmt.Sprint(cancelled), "-o", "xml")
	require.Error(t, err)
}
