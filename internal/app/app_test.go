package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := testutil.NewTestSettings(t)
	s.Queue.Backend = queue.BackendMemory
	return s
}

// Not parallel: New installs the process-wide logger and error reporter.
func TestNew_WiresDispatcher(t *testing.T) {
	a, err := New(t.Context(), testSettings(t), Options{Queue: true, Mailer: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	require.NoError(t, datastore.Migrate(t.Context(), a.DB, true))
	for name, check := range a.HealthChecks() {
		assert.NoError(t, check(t.Context()), name)
	}

	account := testutil.CreateAccount(t, a.DB)
	d, err := automation.NewDispatcher(a.Deps())
	require.NoError(t, err)

	id, err := d.QueueExportReady(t.Context(), account.ID, automation.ExportCSV, "https://files.myeventlane.test/a.csv")
	require.NoError(t, err)
	assert.NotZero(t, id)

	mem, ok := a.Queue.(*queue.MemoryQueue)
	require.True(t, ok)
	assert.Equal(t, 1, mem.Len(automation.KindExportReadyCSV.Queue()))

	worker, err := automation.NewWorker(a.Deps())
	require.NoError(t, err)
	msgs := mem.Drain(automation.KindExportReadyCSV.Queue())
	require.Len(t, msgs, 1)
	assert.Equal(t, automation.OutcomeSent, worker.Handle(t.Context(), msgs[0].Body))
}

func TestNew_WithoutQueueOrMailer(t *testing.T) {
	a, err := New(t.Context(), testSettings(t), Options{})
	require.NoError(t, err)
	assert.Nil(t, a.Queue)
	assert.Nil(t, a.Mailer)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")
}

func TestNew_UnknownDatabase(t *testing.T) {
	s := testSettings(t)
	s.Database.Type = "oracle"
	_, err := New(t.Context(), s, Options{})
	require.Error(t, err)
}
