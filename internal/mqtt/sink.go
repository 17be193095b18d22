package mqtt

import (
	"context"
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability/metrics"
)

const sinkName = "mqtt"

// AuditMessage is the payload published for every audit entry.
type AuditMessage struct {
	ID               uint            `json:"id"`
	EventID          *uint           `json:"event_id,omitempty"`
	DispatchID       *uint           `json:"dispatch_id,omitempty"`
	Action           string          `json:"action"`
	NotificationType string          `json:"notification_type,omitempty"`
	RecipientHash    string          `json:"recipient_hash,omitempty"`
	CorrelationID    string          `json:"correlation_id"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AuditSink publishes audit entries to <topic>/<action>. It implements
// ledger.AuditSink.
type AuditSink struct {
	client  pahomqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	metrics *metrics.AutomationMetrics
	log     logger.Logger
}

// NewAuditSink connects to the configured broker.
func NewAuditSink(ctx context.Context, settings *conf.MQTTSettings, am *metrics.AutomationMetrics, log logger.Logger) (*AuditSink, error) {
	if !settings.Enabled {
		return nil, errors.Newf("mqtt audit sink not enabled in settings").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log = log.Module("mqtt")
	client, err := Connect(ctx, settings, log)
	if err != nil {
		return nil, err
	}
	return newAuditSink(client, settings, am, log), nil
}

func newAuditSink(client pahomqtt.Client, settings *conf.MQTTSettings, am *metrics.AutomationMetrics, log logger.Logger) *AuditSink {
	return &AuditSink{
		client:  client,
		topic:   settings.Topic,
		qos:     byte(settings.QoS),
		timeout: publishTimeout,
		metrics: am,
		log:     log,
	}
}

// PublishAudit implements ledger.AuditSink.
func (s *AuditSink) PublishAudit(ctx context.Context, entry *entities.AuditLogEntry) (err error) {
	defer func() { s.metrics.RecordAuditPublish(sinkName, err) }()

	if !s.client.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}

	payload, err := json.Marshal(AuditMessage{
		ID:               entry.ID,
		EventID:          entry.EventID,
		DispatchID:       entry.DispatchID,
		Action:           entry.Action,
		NotificationType: entry.NotificationType,
		RecipientHash:    entry.RecipientHash,
		CorrelationID:    entry.CorrelationID,
		Metadata:         json.RawMessage(entry.Metadata),
		CreatedAt:        entry.CreatedAt,
	})
	if err != nil {
		return errors.New(err).Component("mqtt").Category(errors.CategoryValidation).Build()
	}

	topic := s.Topic(entry)
	if err := waitToken(ctx, s.client.Publish(topic, s.qos, false, payload), s.timeout); err != nil {
		return mqttError(err, "publish", topic, errors.CategoryNetwork)
	}
	s.log.Debug("audit entry published",
		logger.String("topic", topic),
		logger.String("correlation_id", entry.CorrelationID))
	return nil
}

// Topic returns the topic an entry is published to.
func (s *AuditSink) Topic(entry *entities.AuditLogEntry) string {
	if entry.Action == "" {
		return s.topic
	}
	return s.topic + "/" + entry.Action
}

// Close disconnects from the broker.
func (s *AuditSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}
