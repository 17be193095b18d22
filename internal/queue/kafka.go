package queue

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// KafkaQueue publishes to topics <prefix><queue> with an idempotent
// producer and consumes with one consumer group per queue. Kafka has no
// per-message redelivery: a failed message is retried in place a few
// times and then committed so the partition keeps moving.
type KafkaQueue struct {
	brokers     []string
	groupID     string
	topicPrefix string
	config      *sarama.Config
	producer    sarama.SyncProducer
	retries     int
	log         logger.Logger
}

// NewKafkaQueue creates the producer. Consumer groups are created per
// Consume call.
func NewKafkaQueue(settings *conf.KafkaSettings, log logger.Logger) (*KafkaQueue, error) {
	if len(settings.Brokers) == 0 {
		return nil, configError("kafka brokers are required", BackendKafka)
	}
	cfg := newSaramaConfig()
	producer, err := sarama.NewSyncProducer(settings.Brokers, cfg)
	if err != nil {
		return nil, queueError(err, "new_producer", "")
	}
	return newKafkaQueue(producer, cfg, settings, log), nil
}

func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "myeventlane-automation"
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

func newKafkaQueue(producer sarama.SyncProducer, cfg *sarama.Config, settings *conf.KafkaSettings, log logger.Logger) *KafkaQueue {
	groupID := settings.GroupID
	if groupID == "" {
		groupID = "myeventlane-automation"
	}
	return &KafkaQueue{
		brokers:     settings.Brokers,
		groupID:     groupID,
		topicPrefix: settings.TopicPrefix,
		config:      cfg,
		producer:    producer,
		retries:     3,
		log:         log,
	}
}

func (q *KafkaQueue) topic(queueName string) string {
	return q.topicPrefix + sanitizeName(queueName)
}

// Publish implements Queue. The message id is the record key.
func (q *KafkaQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return queueError(err, "publish", queueName)
	}
	_, _, err := q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic(queueName),
		Key:   sarama.StringEncoder(uuid.NewString()),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return queueError(err, "publish", queueName)
	}
	return nil
}

// Consume implements Queue.
func (q *KafkaQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	group, err := sarama.NewConsumerGroup(q.brokers, q.groupID+"."+sanitizeName(queueName), q.config)
	if err != nil {
		return queueError(err, "new_consumer_group", queueName)
	}
	defer func() { _ = group.Close() }()

	h := &kafkaGroupHandler{queue: q, queueName: queueName, handler: handler}
	for ctx.Err() == nil {
		// Consume returns on every rebalance.
		if err := group.Consume(ctx, []string{q.topic(queueName)}, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.log.Warn("kafka consume failed", logger.String("queue", queueName), logger.Error(err))
			if sleepCtx(ctx, time.Second) != nil {
				return nil
			}
		}
	}
	return nil
}

// Close closes the producer.
func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}

type kafkaGroupHandler struct {
	queue     *KafkaQueue
	queueName string
	handler   Handler
}

func (h *kafkaGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *kafkaGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.process(ctx, record)
			if ctx.Err() != nil {
				// Not marked: the record is redelivered after the rebalance.
				return nil
			}
			session.MarkMessage(record, "")
		}
	}
}

func (h *kafkaGroupHandler) process(ctx context.Context, record *sarama.ConsumerMessage) {
	msg := Message{
		ID:    string(record.Key),
		Queue: h.queueName,
		Body:  record.Value,
	}
	for attempt := 1; attempt <= h.queue.retries; attempt++ {
		msg.Attempt = attempt
		err := h.handler(ctx, msg)
		if err == nil {
			return
		}
		h.queue.log.Warn("kafka message failed",
			logger.String("queue", h.queueName),
			logger.String("message_id", msg.ID),
			logger.Int("attempt", attempt),
			logger.Error(err))
		if sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond) != nil {
			return
		}
	}
}
