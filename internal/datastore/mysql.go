package datastore

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// MySQLDSN builds a DSN with utf8mb4, parsed times in UTC and the
// configured TLS mode.
func MySQLDSN(s *conf.MySQLSettings) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", s.Host, s.Port)
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if s.TLS != "" {
		cfg.TLSConfig = s.TLS
	}
	return cfg.FormatDSN()
}

func openMySQL(s *conf.MySQLSettings, cfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(MySQLDSN(s)), cfg)
	if err != nil {
		return nil, dbError(err, "open_mysql", errors.PriorityCritical,
			"host", s.Host,
			"database", s.Database)
	}
	return db, nil
}
