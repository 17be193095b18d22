package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

const natsFetchBatch = 10

// NATSQueue publishes to JetStream subjects <stream>.<queue> and consumes
// through one durable pull consumer per queue. Message ids go in the
// Nats-Msg-Id header so the stream drops duplicate publishes.
type NATSQueue struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	stream     string
	ackWait    time.Duration
	maxDeliver int
	fetchWait  time.Duration
	log        logger.Logger
}

// NewNATSQueue connects and ensures the stream exists.
func NewNATSQueue(ctx context.Context, settings *conf.NATSSettings, log logger.Logger) (*NATSQueue, error) {
	if settings.URL == "" || settings.Stream == "" {
		return nil, configError("nats url and stream are required", BackendNATS)
	}
	conn, err := nats.Connect(settings.URL, nats.Name("myeventlane-automation"))
	if err != nil {
		return nil, queueError(err, "connect", "")
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, queueError(err, "jetstream", "")
	}

	q := newNATSQueue(js, settings, log)
	q.conn = conn
	if err := q.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func newNATSQueue(js nats.JetStreamContext, settings *conf.NATSSettings, log logger.Logger) *NATSQueue {
	ackWait := settings.AckWait
	if ackWait <= 0 {
		ackWait = time.Minute
	}
	maxDeliver := settings.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 5
	}
	return &NATSQueue{
		js:         js,
		stream:     sanitizeName(settings.Stream),
		ackWait:    ackWait,
		maxDeliver: maxDeliver,
		fetchWait:  2 * time.Second,
		log:        log,
	}
}

func (q *NATSQueue) subject(queueName string) string {
	return q.stream + "." + sanitizeName(queueName)
}

func (q *NATSQueue) ensureStream(ctx context.Context) error {
	_, err := q.js.StreamInfo(q.stream, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return queueError(err, "stream_info", "")
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:       q.stream,
		Subjects:   []string{q.stream + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.WorkQueuePolicy,
		Duplicates: 10 * time.Minute,
	}, nats.Context(ctx))
	if err != nil {
		return queueError(err, "add_stream", "")
	}
	return nil
}

// Publish implements Queue.
func (q *NATSQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	msg := nats.NewMsg(q.subject(queueName))
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	if _, err := q.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return queueError(err, "publish", queueName)
	}
	return nil
}

func (q *NATSQueue) ensureConsumer(ctx context.Context, queueName string) (string, error) {
	durable := sanitizeName(queueName)
	_, err := q.js.ConsumerInfo(q.stream, durable, nats.Context(ctx))
	if err == nil {
		return durable, nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return "", queueError(err, "consumer_info", queueName)
	}
	_, err = q.js.AddConsumer(q.stream, &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       q.ackWait,
		MaxDeliver:    q.maxDeliver,
		FilterSubject: q.subject(queueName),
	}, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return "", queueError(err, "add_consumer", queueName)
	}
	return durable, nil
}

// Consume implements Queue. Failed messages are negatively acknowledged
// and redelivered until MaxDeliver.
func (q *NATSQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	durable, err := q.ensureConsumer(ctx, queueName)
	if err != nil {
		return err
	}
	sub, err := q.js.PullSubscribe(q.subject(queueName), durable, nats.Bind(q.stream, durable))
	if err != nil {
		return queueError(err, "pull_subscribe", queueName)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, q.fetchWait)
		msgs, err := sub.Fetch(natsFetchBatch, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			q.log.Warn("nats fetch failed", logger.String("queue", queueName), logger.Error(err))
			if sleepCtx(ctx, time.Second) != nil {
				return nil
			}
			continue
		}
		for _, m := range msgs {
			q.handle(ctx, queueName, m, handler)
		}
	}
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, queueName string, m *nats.Msg, handler Handler) {
	msg := Message{
		ID:      m.Header.Get(nats.MsgIdHdr),
		Queue:   queueName,
		Body:    m.Data,
		Attempt: 1,
	}
	if md, err := m.Metadata(); err == nil {
		msg.Attempt = int(md.NumDelivered)
	}

	if err := handler(ctx, msg); err != nil {
		q.log.Debug("nats message nacked",
			logger.String("queue", queueName),
			logger.String("message_id", msg.ID),
			logger.Error(err))
		_ = m.Nak()
		return
	}
	if err := m.Ack(); err != nil {
		q.log.Warn("nats ack failed",
			logger.String("queue", queueName),
			logger.String("message_id", msg.ID),
			logger.Error(err))
	}
}

// Close drains the connection.
func (q *NATSQueue) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Drain()
}
