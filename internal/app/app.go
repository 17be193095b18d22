// Package app builds the collaborators shared by the CLI commands from
// loaded settings.
package app

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/buildinfo"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/mailer"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/mqtt"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ratelimit"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/state"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/telemetry"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/waitlist"
)

// Options select the optional parts of the graph.
type Options struct {
	Queue  bool // connect the configured queue backend
	Mailer bool // build the messaging collaborator
}

// App holds the wired collaborators. Close releases them in reverse order.
type App struct {
	Settings *conf.Settings
	Log      logger.Logger
	DB       *gorm.DB
	Metrics  *observability.Metrics

	Ledger    ledger.Ledger
	Audit     ledger.AuditLog
	Events    repository.EventRepository
	Attendees repository.AttendeeRepository
	Accounts  repository.AccountRepository
	State     state.Store
	Limiter   ratelimit.Limiter
	Queue     queue.Queue
	Mailer    mailer.Mailer

	closers []func() error
}

// New opens the database and builds every collaborator the options ask for.
// On error everything opened so far is closed.
func New(ctx context.Context, settings *conf.Settings, opts Options) (_ *App, err error) {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(central)

	a := &App{Settings: settings, Log: central.Module("app")}
	a.onClose(central.Close)
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	flush, err := telemetry.Init(&settings.Sentry, buildinfo.Current(), a.Log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		flush()
		return nil
	})

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}

	if a.DB, err = datastore.Open(&settings.Database, a.Log); err != nil {
		return nil, err
	}
	db := a.DB
	a.onClose(func() error { return datastore.Close(db) })

	var sinks []ledger.AuditSink
	if settings.Audit.MQTT.Enabled {
		sink, err := mqtt.NewAuditSink(ctx, &settings.Audit.MQTT, a.Metrics.Automation, a.Log)
		if err != nil {
			// The audit trail is still written to the database.
			a.Log.Warn("mqtt audit mirror unavailable", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
			a.onClose(func() error {
				sink.Close()
				return nil
			})
		}
	}

	a.Ledger = ledger.New(a.DB)
	a.Audit = ledger.NewAuditLog(a.DB, a.Log, sinks...)
	a.Events = repository.NewEventRepository(a.DB)
	a.Attendees = repository.NewAttendeeRepository(a.DB)
	a.Accounts = repository.NewAccountRepository(a.DB)
	a.State = state.NewSQLStore(a.DB)

	if a.Limiter, err = ratelimit.New(settings.RateLimit.Backend, a.DB,
		ratelimit.WithCleanupProbability(settings.RateLimit.CleanupProbability)); err != nil {
		return nil, err
	}

	if opts.Queue {
		if a.Queue, err = queue.New(ctx, &settings.Queue, a.DB, a.Log); err != nil {
			return nil, err
		}
		a.onClose(a.Queue.Close)
	}

	if opts.Mailer {
		if a.Mailer, err = mailer.New(&settings.Mailer, &settings.Automation, a.Metrics.Automation, a.Log); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Deps returns the automation dependencies backed by this App.
func (a *App) Deps() automation.Deps {
	return automation.Deps{
		Ledger:    a.Ledger,
		Audit:     a.Audit,
		Queue:     a.Queue,
		Events:    a.Events,
		Attendees: a.Attendees,
		Accounts:  a.Accounts,
		State:     a.State,
		Limiter:   a.Limiter,
		Mailer:    a.Mailer,
		Settings:  &a.Settings.Automation,
		Metrics:   a.Metrics.Automation,
		Log:       a.Log,
	}
}

// Waitlist returns a promotion manager that queues invites through d.
func (a *App) Waitlist(d *automation.Dispatcher) *waitlist.Manager {
	return waitlist.NewManager(a.Events, a.Attendees, d, a.Audit, time.Now, a.Log)
}

// HealthChecks are served on /healthz by the worker.
func (a *App) HealthChecks() map[string]observability.HealthCheck {
	db := a.DB
	return map[string]observability.HealthCheck{
		"database": func(ctx context.Context) error { return datastore.Ping(ctx, db) },
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
