package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const pingTimeout = 5 * time.Second

// Open connects to MySQL and verifies the connection before returning.
// The document store keeps reservation and sale documents as JSON rows,
// so a single schemaless table is all the backend needs. maxConns caps
// both open and idle connections; values below 1 get a small cap so the
// pool never grows unbounded.
func Open(user, pass, host, port, name string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn(user, pass, host, port, name))
	if err != nil {
		return nil, err
	}

	if maxConns < 1 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// dsn builds the driver connection string. parseTime maps DATETIME
// columns to time.Time and loc=UTC keeps the stored timestamps
// comparable across instances.
func dsn(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth += ":" + pass
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
}
