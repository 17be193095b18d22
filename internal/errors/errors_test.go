package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitFields(t *testing.T) {
	t.Parallel()

	base := NewStd("insert failed")
	ee := New(base).
		Component("ledger").
		Category(CategoryDatabase).
		Priority(PriorityHigh).
		DispatchContext(42, "reminder_24h").
		Context("operation", "mark_sent").
		Build()

	assert.Equal(t, "ledger", ee.GetComponent())
	assert.Equal(t, CategoryDatabase, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	ctx := ee.GetContext()
	assert.Equal(t, uint(42), ctx["dispatch_id"])
	assert.Equal(t, "reminder_24h", ctx["notification_type"])
	assert.ErrorIs(t, ee, base)
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"not found", NewStd("event not found"), CategoryNotFound},
		{"timeout", NewStd("context deadline exceeded"), CategoryTimeout},
		{"network", NewStd("dial tcp: connection refused"), CategoryNetwork},
		{"validation", NewStd("dispatch_id is required"), CategoryValidation},
		{"nested enhanced", New(NewStd("x")).Category(CategoryQueue).Build(), CategoryQueue},
		{"generic", NewStd("something odd"), CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(tt.err))
		})
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", New(NewStd("missing")).Category(CategoryNotFound).Build())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsCategory(err, CategoryNotFound))
	assert.False(t, IsCategory(err, CategoryDatabase))
	assert.False(t, IsNotFound(NewStd("plain")))
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := New(NewStd("a")).Category(CategoryConflict).Build()
	b := New(NewStd("b")).Category(CategoryConflict).Build()
	c := New(NewStd("c")).Category(CategoryLimit).Build()
	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	scrubbed := scrubMessageForPrivacy("send to User@Example.com failed at https://api.mail.test/v1?key=abc token=s3cret")
	assert.NotContains(t, scrubbed, "User@Example.com")
	assert.NotContains(t, scrubbed, "s3cret")
	assert.NotContains(t, scrubbed, "key=abc")
	assert.Contains(t, scrubbed, "[EMAIL_REDACTED]")
}

type countingReporter struct{ n int }

func (c *countingReporter) ReportError(ee *EnhancedError) { c.n++; ee.MarkReported() }
func (c *countingReporter) IsEnabled() bool               { return true }

func TestReporterReceivesBuiltErrors(t *testing.T) {
	r := &countingReporter{}
	SetTelemetryReporter(r)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("ledger write failed")).Category(CategoryDatabase).Build()
	require.Equal(t, 1, r.n)
	assert.True(t, ee.IsReported())
}

func TestSentryReporterPriorityThreshold(t *testing.T) {
	t.Parallel()

	sr := NewSentryReporter(true, PriorityHigh)
	low := &EnhancedError{Err: NewStd("x"), Priority: PriorityLow}
	crit := &EnhancedError{Err: NewStd("x"), Priority: PriorityCritical}
	unset := &EnhancedError{Err: NewStd("x")}
	assert.False(t, sr.shouldReport(low))
	assert.True(t, sr.shouldReport(crit))
	assert.False(t, sr.shouldReport(unset))
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Component("ledger").Category(CategoryDatabase).Context("operation", "mark_sent").Build()
	assert.Equal(t, "Ledger Database Error Mark Sent", generateErrorTitle(ee))
}

func TestLookupComponent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ledger", lookupComponent(modulePath+"/internal/ledger.(*store).MarkSent"))
	assert.Equal(t, "configuration", lookupComponent(modulePath+"/internal/conf.Load"))
	assert.Equal(t, ComponentUnknown, lookupComponent("main.main"))
}
