package automation

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
)

// Default pool settings.
const (
	DefaultConcurrency = 2
	DefaultJobTimeout  = 30 * time.Second
)

// handler is the part of Worker the runner drives.
type handler interface {
	Handle(ctx context.Context, body []byte) Outcome
}

// RunnerConfig sizes the worker pool.
type RunnerConfig struct {
	Queues      []string // defaults to QueueNames()
	Concurrency int      // consumers per queue
	JobTimeout  time.Duration
}

// RunnerStats are the counters of a running pool.
type RunnerStats struct {
	Processed uint64
	Sent      uint64
	Skipped   uint64
	Failed    uint64
	Dropped   uint64
	Retried   uint64
}

// Runner consumes the notification queues and hands every message to the
// worker. Messages are acknowledged once the ledger holds the outcome;
// OutcomeRetry is returned to the queue as an error so the broker
// redelivers it.
type Runner struct {
	queue   queue.Queue
	worker  handler
	config  RunnerConfig
	metrics *metrics.AutomationMetrics
	log     logger.Logger

	processed atomic.Uint64
	sent      atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	retried   atomic.Uint64
}

// NewRunner creates a Runner.
func NewRunner(q queue.Queue, worker *Worker, config RunnerConfig, am *metrics.AutomationMetrics, log logger.Logger) (*Runner, error) {
	if q == nil || worker == nil {
		return nil, errors.Newf("runner needs a queue and a worker").
			Component("automation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return newRunner(q, worker, config, am, log), nil
}

func newRunner(q queue.Queue, h handler, config RunnerConfig, am *metrics.AutomationMetrics, log logger.Logger) *Runner {
	if len(config.Queues) == 0 {
		config.Queues = QueueNames()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultJobTimeout
	}
	return &Runner{
		queue:   q,
		worker:  h,
		config:  config,
		metrics: am,
		log:     log.Module("runner"),
	}
}

// Run blocks until ctx is cancelled or a consumer fails.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting worker pool",
		logger.Int("queues", len(r.config.Queues)),
		logger.Int("concurrency", r.config.Concurrency),
		logger.Duration("job_timeout", r.config.JobTimeout))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.config.Queues {
		for range r.config.Concurrency {
			g.Go(func() error {
				return r.queue.Consume(gctx, name, r.process)
			})
		}
	}
	err := g.Wait()

	stats := r.Stats()
	r.log.Info("worker pool stopped",
		logger.Int64("processed", int64(stats.Processed)),
		logger.Int64("sent", int64(stats.Sent)),
		logger.Int64("failed", int64(stats.Failed)),
		logger.Int64("retried", int64(stats.Retried)))
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (r *Runner) process(ctx context.Context, msg queue.Message) error {
	r.metrics.JobStarted(msg.Queue)
	defer r.metrics.JobFinished(msg.Queue)

	jobCtx, cancel := context.WithTimeout(ctx, r.config.JobTimeout)
	defer cancel()

	outcome := r.worker.Handle(jobCtx, msg.Body)
	r.processed.Add(1)
	switch outcome {
	case OutcomeSent:
		r.sent.Add(1)
	case OutcomeSkipped:
		r.skipped.Add(1)
	case OutcomeFailed:
		r.failed.Add(1)
	case OutcomeDropped:
		r.dropped.Add(1)
	case OutcomeRetry:
		r.retried.Add(1)
	}
	r.log.Debug("job handled",
		logger.String("queue", msg.Queue),
		logger.String("message_id", msg.ID),
		logger.Int("attempt", msg.Attempt),
		logger.String("outcome", string(outcome)))
	if outcome == OutcomeRetry {
		return ErrLedgerUnavailable
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Processed: r.processed.Load(),
		Sent:      r.sent.Load(),
		Skipped:   r.skipped.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Retried:   r.retried.Load(),
	}
}
