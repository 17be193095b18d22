package mailer

import (
	"strings"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
)

// dryRunKeep is how many messages the log transport remembers.
const dryRunKeep = 100

// NewTransport creates the transport selected by settings.Transport.
func NewTransport(settings *conf.MailerSettings, log logger.Logger) (Transport, error) {
	switch strings.ToLower(settings.Transport) {
	case TransportSMTP:
		return NewSMTPTransport(&settings.SMTP)
	case TransportShoutrrr:
		return NewShoutrrrTransport(settings.Shoutrrr.URLs, settings.Timeout)
	case TransportWebhook:
		return NewWebhookTransport(&settings.Webhook, settings.Timeout, nil)
	case TransportLog, "":
		return NewLogTransport(log, dryRunKeep), nil
	default:
		return nil, errors.Newf("unknown mail transport %q", settings.Transport).
			Component("mailer").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// New builds a TemplateMailer from configuration: transport, embedded
// templates, throttling, circuit breaker and site defaults.
func New(settings *conf.MailerSettings, site *conf.AutomationSettings, am *metrics.AutomationMetrics, log logger.Logger) (*TemplateMailer, error) {
	log = log.Module("mailer")

	transport, err := NewTransport(settings, log)
	if err != nil {
		return nil, err
	}
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithRateLimit(settings.RateLimit, settings.Burst),
		WithTimeout(settings.Timeout),
		WithMetrics(am),
		WithDefaults(map[string]any{
			"site_name": site.SiteName,
			"site_url":  site.SiteURL,
		}),
	}
	if settings.CircuitBreaker.MaxFailures > 0 {
		cfg := DefaultCircuitBreakerConfig()
		cfg.MaxFailures = settings.CircuitBreaker.MaxFailures
		if settings.CircuitBreaker.ResetTimeout > 0 {
			cfg.Timeout = settings.CircuitBreaker.ResetTimeout
		}
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(cfg, transport.Name(), am, log)))
	}

	log.Info("mailer configured",
		logger.String("transport", transport.Name()),
		logger.Float64("rate_limit", settings.RateLimit),
		logger.Int("templates", len(templates.Keys())))

	return NewTemplateMailer(transport, templates, settings.From, settings.FromName, log, opts...), nil
}
