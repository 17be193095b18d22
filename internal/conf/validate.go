// conf/validate.go settings validation
package conf

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError collects every problem found in the settings
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	for _, check := range []func(*Settings) error{
		validateDatabaseSettings,
		validateQueueSettings,
		validateMailerSettings,
		validateAutomationSettings,
		validateRateLimitSettings,
		validateObservabilitySettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	db := &s.Database
	switch db.Type {
	case "sqlite":
		if db.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "mysql":
		if db.MySQL.Host == "" || db.MySQL.Database == "" || db.MySQL.Username == "" {
			return fmt.Errorf("database.mysql requires host, database and username")
		}
		if db.MySQL.Port < 1 || db.MySQL.Port > 65535 {
			return fmt.Errorf("database.mysql.port %d is out of range", db.MySQL.Port)
		}
	case "postgres":
		if db.Postgres.DSN == "" {
			return fmt.Errorf("database.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("database.type %q is not one of sqlite, mysql, postgres", db.Type)
	}
	return nil
}

func validateQueueSettings(s *Settings) error {
	q := &s.Queue
	if q.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be at least 1")
	}
	if q.JobTimeout <= 0 {
		return fmt.Errorf("queue.jobtimeout must be positive")
	}
	switch q.Backend {
	case "memory":
		return nil
	case "database":
		if q.PollInterval <= 0 || q.LeaseDuration <= 0 {
			return fmt.Errorf("queue.pollinterval and queue.leaseduration must be positive")
		}
		if q.LeaseDuration <= q.JobTimeout {
			return fmt.Errorf("queue.leaseduration must exceed queue.jobtimeout")
		}
	case "sqs":
		if q.SQS.Region == "" {
			return fmt.Errorf("queue.sqs.region is required")
		}
		if q.SQS.WaitTimeSeconds < 0 || q.SQS.WaitTimeSeconds > 20 {
			return fmt.Errorf("queue.sqs.waittimeseconds must be between 0 and 20")
		}
	case "nats":
		if q.NATS.URL == "" || q.NATS.Stream == "" {
			return fmt.Errorf("queue.nats requires url and stream")
		}
	case "kafka":
		if len(q.Kafka.Brokers) == 0 || q.Kafka.GroupID == "" {
			return fmt.Errorf("queue.kafka requires brokers and groupid")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", q.Backend)
	}
	return nil
}

func validateMailerSettings(s *Settings) error {
	m := &s.Mailer
	if _, err := mail.ParseAddress(m.From); err != nil {
		return fmt.Errorf("mailer.from %q is not a valid address", m.From)
	}
	if m.RateLimit < 0 || m.Burst < 0 {
		return fmt.Errorf("mailer.ratelimit and mailer.burst cannot be negative")
	}
	switch m.Transport {
	case "log":
	case "smtp":
		if m.SMTP.Host == "" || m.SMTP.Port == 0 {
			return fmt.Errorf("mailer.smtp requires host and port")
		}
	case "shoutrrr":
		if len(m.Shoutrrr.URLs) == 0 {
			return fmt.Errorf("mailer.shoutrrr.urls requires at least one URL")
		}
	case "webhook":
		u, err := url.Parse(m.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("mailer.webhook.url must be an http(s) URL")
		}
	default:
		return fmt.Errorf("mailer.transport %q is not supported", m.Transport)
	}
	return nil
}

func validateAutomationSettings(s *Settings) error {
	a := &s.Automation
	var problems []string
	if _, err := url.ParseRequestURI(a.SiteURL); err != nil {
		problems = append(problems, "automation.siteurl must be an absolute URL")
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("automation.timezone %q is unknown", a.Timezone))
	}
	if _, ok := parseWeekday(a.DigestWeekday); !ok {
		problems = append(problems, fmt.Sprintf("automation.digestweekday %q is not a weekday", a.DigestWeekday))
	}
	if a.ExportLimit < 1 || a.ExportPeriod <= 0 {
		problems = append(problems, "automation.exportlimit and automation.exportperiod must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateRateLimitSettings(s *Settings) error {
	r := &s.RateLimit
	if !slices.Contains([]string{"database", "memory"}, r.Backend) {
		return fmt.Errorf("ratelimit.backend %q is not one of database, memory", r.Backend)
	}
	if r.CleanupProbability < 0 || r.CleanupProbability > 1 {
		return fmt.Errorf("ratelimit.cleanupprobability must be between 0 and 1")
	}
	return nil
}

func validateObservabilitySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	if s.Audit.MQTT.Enabled {
		if s.Audit.MQTT.Broker == "" || s.Audit.MQTT.Topic == "" {
			return fmt.Errorf("audit.mqtt requires broker and topic")
		}
		if s.Audit.MQTT.QoS < 0 || s.Audit.MQTT.QoS > 2 {
			return fmt.Errorf("audit.mqtt.qos must be 0, 1 or 2")
		}
	}
	if s.Metrics.Enabled && s.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}
