// Package conf loads and validates application settings using viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/secrets"
)

// Settings is the root of the configuration tree
type Settings struct {
	Debug bool // enable debug logging and verbose SQL

	Logging    logger.LoggingConfig
	Database   DatabaseSettings
	Queue      QueueSettings
	Mailer     MailerSettings
	Automation AutomationSettings
	RateLimit  RateLimitSettings
	Metrics    MetricsSettings
	Sentry     SentrySettings
	Audit      AuditSettings
}

// DatabaseSettings selects and configures the relational store
type DatabaseSettings struct {
	Type            string        // sqlite, mysql or postgres
	SlowThreshold   time.Duration // queries slower than this are logged at warn
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SQLite          SQLiteSettings
	MySQL           MySQLSettings
	Postgres        PostgresSettings
}

// SQLiteSettings configures the SQLite store
type SQLiteSettings struct {
	Path string
}

// MySQLSettings configures the MySQL store
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	TLS      string // value for the go-sql-driver tls parameter, empty disables
}

// PostgresSettings configures the PostgreSQL store
type PostgresSettings struct {
	DSN string
}

// QueueSettings selects the job transport between scanner and workers
type QueueSettings struct {
	Backend       string        // memory, database, sqs, nats or kafka
	Concurrency   int           // consumers per notification queue
	JobTimeout    time.Duration // upper bound for handling one job
	PollInterval  time.Duration // database backend polling interval
	LeaseDuration time.Duration // database backend claim lease
	MemoryBuffer  int
	SQS           SQSSettings
	NATS          NATSSettings
	Kafka         KafkaSettings
}

// SQSSettings configures the Amazon SQS backend
type SQSSettings struct {
	Region            string
	Endpoint          string // LocalStack or custom endpoint
	QueuePrefix       string // queue names are QueuePrefix + queue name
	WaitTimeSeconds   int32
	VisibilityTimeout int32
	AccessKeyID       string
	SecretAccessKey   string
}

// NATSSettings configures the NATS JetStream backend
type NATSSettings struct {
	URL        string
	Stream     string
	AckWait    time.Duration
	MaxDeliver int
}

// KafkaSettings configures the Kafka backend
type KafkaSettings struct {
	Brokers     []string
	GroupID     string
	TopicPrefix string
}

// MailerSettings configures the messaging collaborator
type MailerSettings struct {
	Transport      string  // smtp, shoutrrr, webhook or log
	From           string  // sender address
	FromName       string  // sender display name
	RateLimit      float64 // messages per second, 0 disables throttling
	Burst          int
	Timeout        time.Duration
	SMTP           SMTPSettings
	Shoutrrr       ShoutrrrSettings
	Webhook        WebhookSettings
	CircuitBreaker CircuitBreakerSettings
}

// SMTPSettings configures the gomail transport
type SMTPSettings struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// ShoutrrrSettings configures the shoutrrr transport
type ShoutrrrSettings struct {
	URLs []string
}

// WebhookSettings configures the HTTP mail API transport
type WebhookSettings struct {
	URL   string
	Token string
}

// CircuitBreakerSettings protects the transport from cascading failures
type CircuitBreakerSettings struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// AutomationSettings controls scanning windows and message content
type AutomationSettings struct {
	SiteName        string
	SiteURL         string
	Timezone        string        // display timezone for dates in messages and the digest weekday
	DigestWeekday   string        // weekday the weekly digest runs on
	DigestLookahead time.Duration // how far ahead the digest lists events
	ExportLimit     int           // export-ready notices per user per ExportPeriod
	ExportPeriod    time.Duration
}

// RateLimitSettings configures the fixed-window limiter
type RateLimitSettings struct {
	Backend            string  // database or memory
	CleanupProbability float64 // chance per check of purging stale windows
}

// MetricsSettings configures the Prometheus endpoint served by the worker
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings configures error telemetry
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	MinPriority string
}

// AuditSettings configures mirroring of audit entries
type AuditSettings struct {
	MQTT MQTTSettings
}

// MQTTSettings configures the audit MQTT publisher
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      int
}

// Load reads .env, the config file, environment variables and bound flags
// into Settings and validates the result.
func Load() (*Settings, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// resolveSecrets replaces ${VAR} and file: references in credential
// settings with the values they point at
func resolveSecrets(s *Settings) error {
	return secrets.ResolveAll(map[string]*string{
		"database.mysql.password":   &s.Database.MySQL.Password,
		"database.postgres.dsn":     &s.Database.Postgres.DSN,
		"queue.sqs.secretaccesskey": &s.Queue.SQS.SecretAccessKey,
		"mailer.smtp.password":      &s.Mailer.SMTP.Password,
		"mailer.webhook.token":      &s.Mailer.Webhook.Token,
		"audit.mqtt.password":       &s.Audit.MQTT.Password,
		"sentry.dsn":                &s.Sentry.DSN,
	})
}

// loadDotEnv loads .env from the working directory when present
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "load_dotenv").
			Build()
	}
	return nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range DefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "myeventlane"))
	}
	return append(paths, "/etc/myeventlane")
}

// Location returns the configured display timezone, UTC when unset or invalid.
func (a *AutomationSettings) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Weekday parses DigestWeekday, defaulting to Monday.
func (a *AutomationSettings) Weekday() time.Weekday {
	if d, ok := parseWeekday(a.DigestWeekday); ok {
		return d
	}
	return time.Monday
}
