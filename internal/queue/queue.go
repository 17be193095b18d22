// Package queue moves job payloads from the scanner and on-demand helpers
// to the workers. Backends differ in durability; all of them deliver at
// least once, so consumers must be idempotent.
package queue

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Backend names
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendSQS      = "sqs"
	BackendNATS     = "nats"
	BackendKafka    = "kafka"
)

// Message is one delivery of a published payload.
type Message struct {
	ID      string
	Queue   string
	Body    []byte
	Attempt int // 1 on first delivery, when the backend tracks it
}

// Handler processes one message. A nil return acknowledges it; an error
// leaves it for redelivery under the backend's policy.
type Handler func(ctx context.Context, msg Message) error

// Queue publishes to and consumes from named queues.
type Queue interface {
	Publish(ctx context.Context, queueName string, body []byte) error

	// Consume blocks, delivering messages to handler until ctx is done.
	// It may be called concurrently for the same queue.
	Consume(ctx context.Context, queueName string, handler Handler) error

	Close() error
}

// New creates the configured backend. db is only used by the database
// backend.
func New(ctx context.Context, settings *conf.QueueSettings, db *gorm.DB, log logger.Logger) (Queue, error) {
	log = log.Module("queue")
	switch settings.Backend {
	case BackendMemory:
		return NewMemoryQueue(settings.MemoryBuffer, log), nil
	case BackendDatabase:
		if db == nil {
			return nil, configError("database queue needs a database", settings.Backend)
		}
		return NewDatabaseQueue(db, DatabaseOptions{
			PollInterval:  settings.PollInterval,
			LeaseDuration: settings.LeaseDuration,
		}, log), nil
	case BackendSQS:
		return NewSQSQueue(ctx, &settings.SQS, log)
	case BackendNATS:
		return NewNATSQueue(ctx, &settings.NATS, log)
	case BackendKafka:
		return NewKafkaQueue(&settings.Kafka, log)
	default:
		return nil, configError("unknown queue backend", settings.Backend)
	}
}

func configError(msg, backend string) error {
	return errors.Newf("%s", msg).
		Component("queue").
		Category(errors.CategoryConfiguration).
		Context("backend", backend).
		Build()
}

func queueError(err error, operation, queueName string) error {
	return errors.New(err).
		Component("queue").
		Category(errors.CategoryQueue).
		Context("operation", operation).
		Context("queue", queueName).
		Build()
}

// sanitizeName maps a queue name onto the character set accepted by
// broker subject, topic and consumer names.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
