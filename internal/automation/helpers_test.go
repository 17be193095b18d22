package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ratelimit"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/state"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

// monday is a Monday morning in UTC.
var monday = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type mailCall struct {
	Template  string
	Recipient string
	Params    map[string]any
}

// recordingMailer remembers every Queue call and fails with err when set.
type recordingMailer struct {
	mu    sync.Mutex
	calls []mailCall
	err   error
	hook  func() // runs inside Queue, outside the lock
}

func (m *recordingMailer) Queue(_ context.Context, templateKey, recipient string, params map[string]any) error {
	if m.hook != nil {
		m.hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mailCall{Template: templateKey, Recipient: recipient, Params: params})
	return m.err
}

func (m *recordingMailer) Calls() []mailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailCall(nil), m.calls...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	db     *gorm.DB
	deps   Deps
	queue  *queue.MemoryQueue
	mailer *recordingMailer
	state  *state.MemoryStore
	clock  *testClock
	ledger ledger.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	clock := &testClock{now: monday}
	h := &harness{
		db:     db,
		queue:  queue.NewMemoryQueue(256, testutil.DiscardLogger()),
		mailer: &recordingMailer{},
		state:  state.NewMemoryStore(),
		clock:  clock,
		ledger: ledger.New(db),
	}
	h.deps = Deps{
		Ledger:    h.ledger,
		Audit:     ledger.NewAuditLog(db, testutil.DiscardLogger()),
		Queue:     h.queue,
		Events:    repository.NewEventRepository(db),
		Attendees: repository.NewAttendeeRepository(db),
		Accounts:  repository.NewAccountRepository(db),
		State:     h.state,
		Limiter:   ratelimit.NewSQLLimiter(db, ratelimit.WithClock(clock.Now)),
		Mailer:    h.mailer,
		Settings: &conf.AutomationSettings{
			SiteName:        "MyEventLane",
			SiteURL:         "https://myeventlane.test",
			Timezone:        "UTC",
			DigestWeekday:   "monday",
			DigestLookahead: 7 * 24 * time.Hour,
			ExportLimit:     2,
			ExportPeriod:    time.Hour,
		},
		Log:   testutil.DiscardLogger(),
		Clock: clock.Now,
	}
	return h
}

func (h *harness) scanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := NewScanner(h.deps)
	require.NoError(t, err)
	return s
}

func (h *harness) worker(t *testing.T) *Worker {
	t.Helper()
	w, err := NewWorker(h.deps)
	require.NoError(t, err)
	return w
}

func (h *harness) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(h.deps)
	require.NoError(t, err)
	return d
}

// drain decodes every queued job of kind.
func (h *harness) drain(t *testing.T, kind Kind) []Job {
	t.Helper()
	var jobs []Job
	for _, msg := range h.queue.Drain(kind.Queue()) {
		job, err := DecodeJob(msg.Body)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	return jobs
}

// dispatch creates a scheduled record and returns its id.
func (h *harness) dispatch(t *testing.T, eventID *uint, kind Kind, identifier string) uint {
	t.Helper()
	id, err := h.ledger.CreateDispatch(t.Context(), eventID, string(kind), ledger.HashRecipient(identifier), nil, nil)
	require.NoError(t, err)
	return id
}

func (h *harness) record(t *testing.T, id uint) *entities.DispatchRecord {
	t.Helper()
	record, err := h.ledger.Get(t.Context(), id)
	require.NoError(t, err)
	return record
}

func encode(t *testing.T, job Job) []byte {
	t.Helper()
	body, err := EncodeJob(job)
	require.NoError(t, err)
	return body
}
