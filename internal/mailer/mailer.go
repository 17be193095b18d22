// Package mailer renders notification templates and hands the resulting
// messages to a mail transport.
package mailer

import (
	"context"
	"maps"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
)

// Mailer queues a templated message for one recipient.
type Mailer interface {
	Queue(ctx context.Context, templateKey, recipient string, params map[string]any) error
}

// Message is a rendered message ready for a transport.
type Message struct {
	TemplateKey string
	From        string
	FromName    string
	To          string
	Subject     string
	HTML        string
	Text        string
}

// Transport delivers rendered messages.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// TemplateMailer implements Mailer on top of the embedded templates.
type TemplateMailer struct {
	transport Transport
	templates *Templates
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
	from      string
	fromName  string
	timeout   time.Duration
	defaults  map[string]any
	metrics   *metrics.AutomationMetrics
	log       logger.Logger
}

// Option configures a TemplateMailer.
type Option func(*TemplateMailer)

// WithRateLimit throttles deliveries to perSecond messages per second.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(m *TemplateMailer) {
		if perSecond <= 0 {
			m.limiter = nil
			return
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithCircuitBreaker guards the transport with cb.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(m *TemplateMailer) { m.breaker = cb }
}

// WithTimeout bounds one transport call.
func WithTimeout(d time.Duration) Option {
	return func(m *TemplateMailer) { m.timeout = d }
}

// WithDefaults sets template parameters that every message receives unless
// the caller overrides them, such as site_name and site_url.
func WithDefaults(defaults map[string]any) Option {
	return func(m *TemplateMailer) { maps.Copy(m.defaults, defaults) }
}

// WithMetrics records delivery latency and errors.
func WithMetrics(am *metrics.AutomationMetrics) Option {
	return func(m *TemplateMailer) { m.metrics = am }
}

// NewTemplateMailer creates a mailer sending from the given address.
func NewTemplateMailer(transport Transport, templates *Templates, from, fromName string, log logger.Logger, opts ...Option) *TemplateMailer {
	m := &TemplateMailer{
		transport: transport,
		templates: templates,
		from:      from,
		fromName:  fromName,
		defaults:  map[string]any{},
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transport returns the underlying transport name.
func (m *TemplateMailer) Transport() string {
	return m.transport.Name()
}

// Queue renders templateKey with params and delivers it to recipient.
// Unknown templates and invalid recipients fail with a validation error;
// everything else that goes wrong is a delivery error.
func (m *TemplateMailer) Queue(ctx context.Context, templateKey, recipient string, params map[string]any) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(recipient))
	if err != nil {
		return errors.New(err).
			Component("mailer").
			Category(errors.CategoryValidation).
			Context("operation", "parse_recipient").
			Context("template", templateKey).
			Build()
	}

	data := maps.Clone(m.defaults)
	maps.Copy(data, params)

	rendered, err := m.templates.Render(templateKey, data)
	if err != nil {
		return err
	}

	msg := &Message{
		TemplateKey: templateKey,
		From:        m.from,
		FromName:    m.fromName,
		To:          addr.Address,
		Subject:     rendered.Subject,
		HTML:        rendered.HTML,
		Text:        rendered.Text,
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return m.deliveryError(err, templateKey, "throttle")
		}
	}

	sendCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	err = m.breaker.Call(sendCtx, func(ctx context.Context) error {
		return m.transport.Send(ctx, msg)
	})
	elapsed := time.Since(start)

	if err != nil {
		category := string(errors.CategoryDelivery)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			category = ee.GetCategory()
		}
		m.metrics.RecordDelivery(m.transport.Name(), elapsed, category)
		return m.deliveryError(err, templateKey, "send")
	}

	m.metrics.RecordDelivery(m.transport.Name(), elapsed, "")
	m.log.Debug("message delivered",
		logger.String("template", templateKey),
		logger.String("transport", m.transport.Name()),
		logger.String("recipient", logger.MaskEmail(addr.Address)),
		logger.Duration("elapsed", elapsed))
	return nil
}

func (m *TemplateMailer) deliveryError(err error, templateKey, operation string) error {
	return errors.New(err).
		Component("mailer").
		Category(errors.CategoryDelivery).
		Context("operation", operation).
		Context("template", templateKey).
		Context("transport", m.transport.Name()).
		Build()
}
