package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// MemoryMaxAttempts bounds redelivery of failed messages in the memory
// backend.
const MemoryMaxAttempts = 3

// ErrQueueClosed is returned by Publish after Close.
var ErrQueueClosed = errors.NewStd("queue closed")

// MemoryQueue is a process-local queue on buffered channels. Messages are
// lost on exit.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan Message
	buffer int
	closed bool
	log    logger.Logger
}

// NewMemoryQueue creates a MemoryQueue whose queues hold buffer messages.
func NewMemoryQueue(buffer int, log logger.Logger) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{
		queues: make(map[string]chan Message),
		buffer: buffer,
		log:    log,
	}
}

func (q *MemoryQueue) channel(name string) (chan Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Message, q.buffer)
		q.queues[name] = ch
	}
	return ch, nil
}

// Publish implements Queue. It blocks while the queue is full.
func (q *MemoryQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	return q.send(ctx, Message{
		ID:      uuid.NewString(),
		Queue:   queueName,
		Body:    append([]byte(nil), body...),
		Attempt: 1,
	})
}

func (q *MemoryQueue) send(ctx context.Context, msg Message) error {
	ch, err := q.channel(msg.Queue)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return queueError(ctx.Err(), "publish", msg.Queue)
	}
}

// Consume implements Queue. A failed message is requeued until it has been
// attempted MemoryMaxAttempts times.
func (q *MemoryQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	ch, err := q.channel(queueName)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				q.retry(ctx, msg, err)
			}
		}
	}
}

func (q *MemoryQueue) retry(ctx context.Context, msg Message, cause error) {
	if msg.Attempt >= MemoryMaxAttempts || ctx.Err() != nil {
		q.log.Warn("dropping message after failed delivery",
			logger.String("queue", msg.Queue),
			logger.String("message_id", msg.ID),
			logger.Int("attempt", msg.Attempt),
			logger.Error(cause))
		return
	}
	msg.Attempt++
	if err := q.send(ctx, msg); err != nil {
		q.log.Warn("requeue failed",
			logger.String("queue", msg.Queue),
			logger.String("message_id", msg.ID),
			logger.Error(err))
	}
}

// Len reports the number of messages waiting in a queue.
func (q *MemoryQueue) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.queues[queueName]; ok {
		return len(ch)
	}
	return 0
}

// Drain removes and returns every waiting message of a queue.
func (q *MemoryQueue) Drain(queueName string) []Message {
	ch, err := q.channel(queueName)
	if err != nil {
		return nil
	}
	var out []Message
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Close rejects further publishes. Consumers stop with their context.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
