package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []entities.AuditLogEntry
	err     error
}

func (s *recordingSink) PublishAudit(_ context.Context, entry *entities.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return s.err
}

func TestAuditLog_AppendAndList(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	sink := &recordingSink{}
	audit := ledger.NewAuditLog(db, testutil.DiscardLogger(), sink)
	ctx := t.Context()

	dispatchID := uint(12)
	require.NoError(t, audit.Append(ctx, ledger.AuditEntry{
		EventID:          testutil.UintPtr(3),
		DispatchID:       &dispatchID,
		Action:           ledger.ActionEnqueued,
		NotificationType: typeReminder,
		RecipientHash:    ledger.HashRecipient("a@example.com"),
		Metadata:         map[string]any{"queue": "automation_reminder_24h"},
	}))
	require.NoError(t, audit.Append(ctx, ledger.AuditEntry{
		Action:           ledger.ActionSent,
		NotificationType: typeDigest,
		CorrelationID:    "fixed-correlation",
	}))

	all, err := audit.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.ActionSent, all[0].Action, "newest first")
	assert.Equal(t, "fixed-correlation", all[0].CorrelationID)
	assert.Len(t, all[1].CorrelationID, 36, "correlation id generated when empty")

	scoped, err := audit.List(ctx, testutil.UintPtr(3), 10)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.JSONEq(t, `{"queue":"automation_reminder_24h"}`, string(scoped[0].Metadata))

	require.Len(t, sink.entries, 2)
	assert.Equal(t, ledger.ActionEnqueued, sink.entries[0].Action)
}

func TestAuditLog_SinkFailureDoesNotFailAppend(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	sink := &recordingSink{err: errors.NewStd("broker unavailable")}
	audit := ledger.NewAuditLog(db, testutil.DiscardLogger(), sink)

	require.NoError(t, audit.Append(t.Context(), ledger.AuditEntry{Action: ledger.ActionFailed}))

	rows, err := audit.List(t.Context(), nil, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAuditLog_RequiresAction(t *testing.T) {
	t.Parallel()
	audit := ledger.NewAuditLog(testutil.NewTestDB(t), testutil.DiscardLogger())
	err := audit.Append(t.Context(), ledger.AuditEntry{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
