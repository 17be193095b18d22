// Package mqtt mirrors the automation audit trail onto an MQTT broker.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

const (
	connectTimeout    = 30 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Connect resolves the broker host and opens a paho client with automatic
// reconnects.
func Connect(ctx context.Context, settings *conf.MQTTSettings, log logger.Logger) (pahomqtt.Client, error) {
	u, err := url.Parse(settings.Broker)
	if err != nil {
		return nil, mqttError(err, "parse_broker", settings.Broker, errors.CategoryConfiguration)
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return nil, mqttError(err, "resolve_broker", settings.Broker, errors.CategoryNetwork)
		}
	}

	clientID := settings.ClientID
	if clientID == "" {
		clientID = "myeventlane-audit"
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Info("connected to MQTT broker", logger.String("broker", settings.Broker))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("connection to MQTT broker lost",
			logger.String("broker", settings.Broker),
			logger.Error(err))
	})

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), connectTimeout); err != nil {
		return nil, mqttError(err, "connect", settings.Broker, errors.CategoryNetwork)
	}
	return client, nil
}

// waitToken blocks until the token completes, ctx ends or timeout elapses.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewStd("mqtt operation timed out")
	}
}

func mqttError(err error, op, target string, category errors.ErrorCategory) error {
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("operation", op).
		Context("target", target).
		Build()
}
