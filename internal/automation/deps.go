package automation

import (
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/repository"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/mailer"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/queue"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ratelimit"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/state"
)

// Deps are the collaborators shared by the scanner, the worker and the
// dispatcher. Components only read the fields they need; Validate checks
// the common ones.
type Deps struct {
	Ledger    ledger.Ledger
	Audit     ledger.AuditLog
	Queue     queue.Queue
	Events    repository.EventRepository
	Attendees repository.AttendeeRepository
	Accounts  repository.AccountRepository
	State     state.Store
	Limiter   ratelimit.Limiter
	Mailer    mailer.Mailer
	Settings  *conf.AutomationSettings
	Metrics   *metrics.AutomationMetrics // optional
	Log       logger.Logger
	Clock     func() time.Time // defaults to time.Now
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Deps) validate(component string, need ...string) error {
	missing := make([]string, 0, len(need))
	for _, name := range need {
		var unset bool
		switch name {
		case "ledger":
			unset = d.Ledger == nil
		case "audit":
			unset = d.Audit == nil
		case "queue":
			unset = d.Queue == nil
		case "events":
			unset = d.Events == nil
		case "attendees":
			unset = d.Attendees == nil
		case "accounts":
			unset = d.Accounts == nil
		case "state":
			unset = d.State == nil
		case "limiter":
			unset = d.Limiter == nil
		case "mailer":
			unset = d.Mailer == nil
		case "settings":
			unset = d.Settings == nil
		case "log":
			unset = d.Log == nil
		}
		if unset {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf("%s is missing dependencies: %v", component, missing).
			Component("automation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
