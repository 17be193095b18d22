package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// NewTestSettings returns settings for a file-backed SQLite database in a
// temporary directory, the database queue and the log mail transport.
func NewTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Logging: logger.LoggingConfig{DefaultLevel: "error", Timezone: "UTC"},
		Database: conf.DatabaseSettings{
			Type:          datastore.DialectSQLite,
			SlowThreshold: time.Second,
			SQLite:        conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "myeventlane.db")},
		},
		Queue: conf.QueueSettings{
			Backend:       "database",
			Concurrency:   1,
			JobTimeout:    5 * time.Second,
			PollInterval:  10 * time.Millisecond,
			LeaseDuration: time.Minute,
			MemoryBuffer:  16,
		},
		Mailer: conf.MailerSettings{
			Transport: "log",
			From:      "no-reply@myeventlane.test",
			FromName:  "MyEventLane",
			Timeout:   time.Second,
		},
		Automation: conf.AutomationSettings{
			SiteName:        "MyEventLane",
			SiteURL:         "https://myeventlane.test",
			Timezone:        "UTC",
			DigestWeekday:   "monday",
			DigestLookahead: 7 * 24 * time.Hour,
			ExportLimit:     5,
			ExportPeriod:    time.Hour,
		},
		RateLimit: conf.RateLimitSettings{Backend: "database"},
	}
}

// SeedSettingsDB migrates the database of settings, including the
// ticketing tables, and runs seed against it. The connection is closed
// before returning so commands under test open their own.
func SeedSettingsDB(t *testing.T, settings *conf.Settings, seed func(db *gorm.DB)) {
	t.Helper()
	db, err := datastore.Open(&settings.Database, DiscardLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, datastore.Close(db)) }()

	require.NoError(t, datastore.Migrate(t.Context(), db, true))
	if seed != nil {
		seed(db)
	}
}
