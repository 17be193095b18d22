package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// DiscardLogger returns a logger that drops everything below error level
// and writes the rest to io.Discard.
func DiscardLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// NewTestDB opens a private in-memory SQLite database with the automation
// and ticketing tables migrated. It is closed when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	settings := &conf.DatabaseSettings{
		Type:          datastore.DialectSQLite,
		SlowThreshold: time.Second,
		SQLite:        conf.SQLiteSettings{Path: ":memory:"},
	}
	db, err := datastore.Open(settings, DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = datastore.Close(db)
	})

	require.NoError(t, datastore.Migrate(t.Context(), db, true))
	return db
}
