package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// sqliteDSNOptions enables WAL and a busy timeout so the scanner and
// workers can share the file.
const sqliteDSNOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

func openSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, validationError("sqlite path is required", "database.sqlite.path", path)
	}

	dsn := path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, dbError(err, "resolve_sqlite_path", errors.PriorityHigh, "path", path)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			return nil, dbError(err, "create_sqlite_dir", errors.PriorityHigh)
		}
		dsn = abs + sqliteDSNOptions
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, dbError(err, "open_sqlite", errors.PriorityCritical)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", errors.PriorityHigh)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
