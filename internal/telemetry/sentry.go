// Package telemetry wires error reporting to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/buildinfo"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

const flushTimeout = 2 * time.Second

// allowedExtra lists the event extras that survive privacy filtering.
var allowedExtra = map[string]bool{
	"component":  true,
	"error_type": true,
}

// Init initializes the Sentry SDK and installs the error reporter. It is a
// no-op when telemetry is disabled. The returned func flushes pending
// events and must be called before exit.
func Init(settings *conf.SentrySettings, build buildinfo.Context, log logger.Logger) (func(), error) {
	return initSentry(settings, build, nil, log)
}

func initSentry(settings *conf.SentrySettings, build buildinfo.Context, transport sentry.Transport, log logger.Logger) (func(), error) {
	log = log.Module("telemetry")
	if !settings.Enabled {
		log.Debug("sentry telemetry disabled")
		errors.SetTelemetryReporter(nil)
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Environment:      settings.Environment,
		Release:          build.Release(),
		SampleRate:       1.0,
		AttachStacktrace: false,
		SendDefaultPII:   false,
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true, settings.MinPriority))
	log.Info("sentry telemetry enabled",
		logger.String("environment", settings.Environment),
		logger.String("min_priority", settings.MinPriority))

	return func() {
		errors.SetTelemetryReporter(nil)
		if !sentry.Flush(flushTimeout) {
			log.Warn("sentry flush timed out")
		}
	}, nil
}

// applyPrivacyFilters drops host and user data and redacts addresses that
// slipped into messages.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil
	event.Message = errors.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}
	return event
}
