package mailer

import (
	"context"
	"crypto/tls"

	"gopkg.in/gomail.v2"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// TransportSMTP is the name of the SMTP transport.
const TransportSMTP = "smtp"

// smtpSender is the part of *gomail.Dialer the transport uses.
type smtpSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport sends multipart messages through an SMTP relay. Every
// message opens its own connection.
type SMTPTransport struct {
	sender smtpSender
}

// NewSMTPTransport creates a transport for the configured relay.
func NewSMTPTransport(settings *conf.SMTPSettings) (*SMTPTransport, error) {
	if settings.Host == "" {
		return nil, errors.Newf("smtp host is required").
			Component("mailer").
			Category(errors.CategoryConfiguration).
			Build()
	}
	port := settings.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(settings.Host, port, settings.Username, settings.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         settings.Host,
		InsecureSkipVerify: settings.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
		MinVersion:         tls.VersionTLS12,
	}
	return &SMTPTransport{sender: d}, nil
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return TransportSMTP }

// Send implements Transport. gomail has no context support, so ctx is only
// checked before dialing.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.sender.DialAndSend(buildGomailMessage(msg))
}

func buildGomailMessage(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.From, msg.FromName)
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-MyEventLane-Template", msg.TemplateKey)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)
	return m
}
