package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

const (
	// TransportWebhook is the name of the webhook transport.
	TransportWebhook = "webhook"

	defaultWebhookTimeout = 30 * time.Second

	// maxErrorBodySize limits how much of an error response is kept.
	maxErrorBodySize = 1024
)

// webhookPayload is the JSON body posted to the mail API.
type webhookPayload struct {
	Template string `json:"template"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text"`
}

// WebhookTransport posts rendered messages as JSON to a transactional mail
// API. Any 2xx response counts as accepted.
type WebhookTransport struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewWebhookTransport creates a webhook transport. A nil client gets a
// default one with the given timeout.
func NewWebhookTransport(settings *conf.WebhookSettings, timeout time.Duration, client *http.Client) (*WebhookTransport, error) {
	u, err := url.Parse(settings.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("webhook URL must be an absolute http(s) URL").
			Component("mailer").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if client == nil {
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookTransport{endpoint: u.String(), token: settings.Token, client: client}, nil
}

// Name implements Transport.
func (t *WebhookTransport) Name() string { return TransportWebhook }

// Send implements Transport.
func (t *WebhookTransport) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(webhookPayload{
		Template: msg.TemplateKey,
		From:     msg.From,
		FromName: msg.FromName,
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
	})
	if err != nil {
		return errors.New(err).
			Component("mailer").
			Category(errors.CategoryValidation).
			Context("operation", "encode_webhook_payload").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.New(err).
			Component("mailer").
			Category(errors.CategoryNetwork).
			Context("operation", "build_webhook_request").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "myeventlane-automation")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		category := errors.CategoryNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return errors.New(err).
			Component("mailer").
			Category(category).
			NetworkContext(t.endpoint, t.client.Timeout).
			Timing("webhook_post", time.Since(start)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return errors.Newf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body)).
			Component("mailer").
			Category(errors.CategoryDelivery).
			Context("status_code", resp.StatusCode).
			NetworkContext(t.endpoint, t.client.Timeout).
			Build()
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
