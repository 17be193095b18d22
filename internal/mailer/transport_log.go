package mailer

import (
	"context"
	"sync"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// TransportLog is the name of the dry-run transport.
const TransportLog = "log"

// LogTransport logs messages instead of sending them. It keeps the last
// messages in memory so dry runs and tests can inspect them.
type LogTransport struct {
	log  logger.Logger
	mu   sync.Mutex
	sent []Message
	keep int
}

// NewLogTransport creates a dry-run transport that remembers up to keep
// messages.
func NewLogTransport(log logger.Logger, keep int) *LogTransport {
	return &LogTransport{log: log, keep: keep}
}

// Name implements Transport.
func (t *LogTransport) Name() string { return TransportLog }

// Send implements Transport.
func (t *LogTransport) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info("dry-run message",
		logger.String("template", msg.TemplateKey),
		logger.String("recipient", logger.MaskEmail(msg.To)),
		logger.String("subject", msg.Subject),
		logger.Int("html_bytes", len(msg.HTML)))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.keep > 0 {
		if len(t.sent) == t.keep {
			t.sent = t.sent[1:]
		}
		t.sent = append(t.sent, *msg)
	}
	return nil
}

// Sent returns a copy of the remembered messages, oldest first.
func (t *LogTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}
