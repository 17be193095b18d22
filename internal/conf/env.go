// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "MYEVENTLANE_DEBUG", validateEnvBool},

		{"database.type", "MYEVENTLANE_DATABASE_TYPE", validateEnvOneOf("sqlite", "mysql", "postgres")},
		{"database.sqlite.path", "MYEVENTLANE_SQLITE_PATH", nil},
		{"database.mysql.host", "MYEVENTLANE_MYSQL_HOST", nil},
		{"database.mysql.port", "MYEVENTLANE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "MYEVENTLANE_MYSQL_USERNAME", nil},
		{"database.mysql.password", "MYEVENTLANE_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "MYEVENTLANE_MYSQL_DATABASE", nil},
		{"database.postgres.dsn", "DATABASE_URL", nil},

		{"queue.backend", "MYEVENTLANE_QUEUE_BACKEND", validateEnvOneOf("memory", "database", "sqs", "nats", "kafka")},
		{"queue.concurrency", "MYEVENTLANE_QUEUE_CONCURRENCY", validateEnvPositiveInt},
		{"queue.sqs.region", "AWS_REGION", nil},
		{"queue.sqs.endpoint", "AWS_SQS_ENDPOINT", validateEnvURL},
		{"queue.sqs.accesskeyid", "AWS_ACCESS_KEY_ID", nil},
		{"queue.sqs.secretaccesskey", "AWS_SECRET_ACCESS_KEY", nil},
		{"queue.nats.url", "NATS_URL", validateEnvURL},
		{"queue.kafka.brokers", "KAFKA_BROKERS", nil},

		{"mailer.transport", "MYEVENTLANE_MAILER_TRANSPORT", validateEnvOneOf("smtp", "shoutrrr", "webhook", "log")},
		{"mailer.from", "MYEVENTLANE_MAIL_FROM", nil},
		{"mailer.smtp.host", "SMTP_HOST", nil},
		{"mailer.smtp.port", "SMTP_PORT", validateEnvPort},
		{"mailer.smtp.username", "SMTP_USERNAME", nil},
		{"mailer.smtp.password", "SMTP_PASSWORD", nil},
		{"mailer.webhook.url", "MYEVENTLANE_MAIL_WEBHOOK_URL", validateEnvURL},
		{"mailer.webhook.token", "MYEVENTLANE_MAIL_WEBHOOK_TOKEN", nil},

		{"automation.siteurl", "MYEVENTLANE_SITE_URL", validateEnvURL},
		{"automation.timezone", "MYEVENTLANE_TIMEZONE", validateEnvTimezone},
		{"automation.digestweekday", "MYEVENTLANE_DIGEST_WEEKDAY", validateEnvWeekday},

		{"sentry.dsn", "SENTRY_DSN", nil},
		{"sentry.enabled", "MYEVENTLANE_SENTRY_ENABLED", validateEnvBool},

		{"audit.mqtt.broker", "MYEVENTLANE_MQTT_BROKER", validateEnvURL},
		{"audit.mqtt.username", "MYEVENTLANE_MQTT_USERNAME", nil},
		{"audit.mqtt.password", "MYEVENTLANE_MQTT_PASSWORD", nil},
	}
}

// bindEnvVars binds every environment variable and validates set values
func bindEnvVars() error {
	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value: %v", binding.EnvVar, err))
			}
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvTimezone(value string) error {
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("unknown timezone")
	}
	return nil
}

func validateEnvWeekday(value string) error {
	if _, ok := parseWeekday(value); !ok {
		return fmt.Errorf("must be a weekday name")
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, true
		}
	}
	return time.Sunday, false
}
