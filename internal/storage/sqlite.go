package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

func NewSQLite(dsn string, timeout time.Duration) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:tickguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dependency("open sqlite", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)
	return &sqlStore{db: db, dialect: dialectSQLite, timeout: timeout}, nil
}
