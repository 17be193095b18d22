package datastore

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

func openPostgres(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if dsn == "" {
		return nil, validationError("postgres dsn is required", "database.postgres.dsn", "")
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, dbError(err, "open_postgres", errors.PriorityCritical)
	}
	return db, nil
}
