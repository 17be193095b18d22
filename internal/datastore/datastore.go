// Package datastore opens the relational store and manages its schema.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Dialect names
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// AutomationModels are the tables owned by this service.
func AutomationModels() []any {
	return []any{
		&entities.DispatchRecord{},
		&entities.AuditLogEntry{},
		&entities.StateEntry{},
		&entities.RateLimitWindow{},
		&entities.QueueItem{},
	}
}

// DomainModels are the ticketing tables read by the scanner and workers.
func DomainModels() []any {
	return []any{
		&entities.Category{},
		&entities.Account{},
		&entities.CategorySubscription{},
		&entities.Event{},
		&entities.Attendee{},
	}
}

// Open connects to the configured database and applies pool settings.
func Open(settings *conf.DatabaseSettings, log logger.Logger) (*gorm.DB, error) {
	// Timestamps are stored in UTC so range queries compare correctly on
	// SQLite, which stores them as text.
	cfg := &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log, settings.SlowThreshold),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch settings.Type {
	case DialectSQLite:
		db, err = openSQLite(settings.SQLite.Path, cfg)
	case DialectMySQL:
		db, err = openMySQL(&settings.MySQL, cfg)
	case DialectPostgres:
		db, err = openPostgres(settings.Postgres.DSN, cfg)
	default:
		return nil, validationError("unsupported database type", "database.type", settings.Type)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", errors.PriorityHigh)
	}
	if settings.Type != DialectSQLite {
		sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
		sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime)
	}
	return db, nil
}

// Migrate creates or updates the automation tables. When includeDomain is
// set the ticketing tables are migrated too, for standalone deployments
// and tests.
func Migrate(ctx context.Context, db *gorm.DB, includeDomain bool) error {
	start := time.Now()
	models := AutomationModels()
	if includeDomain {
		models = append(DomainModels(), models...)
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Timing("auto_migrate", time.Since(start)).
			Build()
	}
	return nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityLow)
	}
	return sqlDB.Close()
}

// Ping checks connectivity, used by the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "ping", errors.PriorityMedium)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping", errors.PriorityMedium)
	}
	return nil
}
