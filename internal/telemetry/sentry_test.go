package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/buildinfo"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

// mockTransport captures events instead of sending them.
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool              { return true }
func (t *mockTransport) FlushWithContext(context.Context) bool { return true }
func (t *mockTransport) Close()                                {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

// Not parallel: the Sentry hub and the error reporter are process globals.
func TestInit_ReportsScrubbedErrors(t *testing.T) {
	transport := &mockTransport{}
	flush, err := initSentry(&conf.SentrySettings{
		Enabled:     true,
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		MinPriority: errors.PriorityHigh,
	}, buildinfo.Context{Version: "v0.0.1"}, transport, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(flush)

	_ = errors.Newf("delivery to jane@example.com rejected").
		Component("mailer").
		Category(errors.CategoryDelivery).
		Priority(errors.PriorityCritical).
		Build()
	_ = errors.Newf("low priority noise").
		Component("mailer").
		Priority(errors.PriorityLow).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Message, "jane@example.com")
	assert.Contains(t, events[0].Message, "[EMAIL_REDACTED]")
	assert.Equal(t, "myeventlane@v0.0.1", events[0].Release)
	assert.Equal(t, "mailer", events[0].Tags["component"])
}

func TestInit_Disabled(t *testing.T) {
	flush, err := Init(&conf.SentrySettings{}, buildinfo.Current(), testutil.DiscardLogger())
	require.NoError(t, err)
	flush()
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()
	event := &sentry.Event{
		Message:    "token=abc123 for bob@example.org",
		ServerName: "worker-1",
		User:       sentry.User{Email: "bob@example.org"},
		Exception:  []sentry.Exception{{Value: "send to bob@example.org failed"}},
		Extra:      map[string]any{"component": "worker", "recipient": "bob@example.org"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}},
	}

	got := applyPrivacyFilters(event)
	assert.Empty(t, got.ServerName)
	assert.Empty(t, got.User.Email)
	assert.Equal(t, "token=[REDACTED] for [EMAIL_REDACTED]", got.Message)
	assert.Equal(t, "send to [EMAIL_REDACTED] failed", got.Exception[0].Value)
	assert.Equal(t, map[string]any{"component": "worker"}, got.Extra)
	assert.NotContains(t, got.Contexts, "os")
}
