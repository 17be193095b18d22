package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultSettings unmarshals the registered defaults into a fresh Settings
func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaultConfig()
	s := &Settings{}
	require.NoError(t, viper.Unmarshal(s))
	return s
}

func TestDefaultsAreValid(t *testing.T) {
	s := defaultSettings(t)

	require.NoError(t, ValidateSettings(s))
	assert.Equal(t, "sqlite", s.Database.Type)
	assert.Equal(t, "database", s.Queue.Backend)
	assert.Equal(t, 30*time.Second, s.Queue.JobTimeout)
	assert.Equal(t, time.Monday, s.Automation.Weekday())
	assert.Equal(t, "Australia/Melbourne", s.Automation.Location().String())
	assert.Equal(t, []string{"localhost:9092"}, s.Queue.Kafka.Brokers)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	s := defaultSettings(t)
	s.Database.Type = "oracle"
	s.Queue.Backend = "rabbit"
	s.Mailer.From = "not an address"
	s.RateLimit.CleanupProbability = 2

	err := ValidateSettings(s)
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4)
}

func TestValidateTransportRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"smtp without host", func(s *Settings) { s.Mailer.Transport = "smtp" }, true},
		{"smtp with host", func(s *Settings) { s.Mailer.Transport = "smtp"; s.Mailer.SMTP.Host = "mail.test" }, false},
		{"shoutrrr without urls", func(s *Settings) { s.Mailer.Transport = "shoutrrr" }, true},
		{"webhook bad scheme", func(s *Settings) { s.Mailer.Transport = "webhook"; s.Mailer.Webhook.URL = "ftp://x" }, true},
		{"sqs wait too long", func(s *Settings) { s.Queue.Backend = "sqs"; s.Queue.SQS.WaitTimeSeconds = 30 }, true},
		{"lease shorter than timeout", func(s *Settings) { s.Queue.LeaseDuration = time.Second }, true},
		{"mysql without user", func(s *Settings) { s.Database.Type = "mysql" }, true},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, true},
		{"mqtt bad qos", func(s *Settings) {
			s.Audit.MQTT.Enabled = true
			s.Audit.MQTT.Broker = "tcp://localhost:1883"
			s.Audit.MQTT.QoS = 3
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSettings(t)
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadReadsConfigFileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	yaml := []byte("queue:\n  backend: memory\nautomation:\n  digestweekday: fri\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Chdir(dir)
	t.Setenv("MYEVENTLANE_MAILER_TRANSPORT", "log")
	t.Setenv("SMTP_PORT", "2525")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Queue.Backend)
	assert.Equal(t, time.Friday, s.Automation.Weekday())
	assert.Equal(t, 2525, s.Mailer.SMTP.Port)
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webhook_token"), []byte("s3cret\n"), 0o600))
	yaml := []byte("mailer:\n  smtp:\n    password: ${MEL_TEST_SMTP_PASSWORD}\n  webhook:\n    token: file:" +
		filepath.Join(dir, "webhook_token") + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Chdir(dir)
	t.Setenv("MEL_TEST_SMTP_PASSWORD", "hunter2")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", s.Mailer.SMTP.Password)
	assert.Equal(t, "s3cret", s.Mailer.Webhook.Token)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("MYEVENTLANE_QUEUE_BACKEND", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYEVENTLANE_QUEUE_BACKEND")
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Weekday{
		"monday":   time.Monday,
		" Sunday ": time.Sunday,
		"wed":      time.Wednesday,
	}
	for in, want := range tests {
		got, ok := parseWeekday(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseWeekday("someday")
	assert.False(t, ok)
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvPort("587"))
	assert.Error(t, validateEnvPort("70000"))
	assert.NoError(t, validateEnvURL("http://localhost:4566"))
	assert.Error(t, validateEnvURL("localhost"))
	assert.NoError(t, validateEnvOneOf("a", "b")("B"))
	assert.Error(t, validateEnvOneOf("a", "b")("c"))
	assert.Error(t, validateEnvTimezone("Nowhere/Town"))
}
