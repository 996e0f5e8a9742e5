// Package repository persists photo records in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	driverName      = "pgx"
	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 2 * time.Minute
	connMaxLifetime = 30 * time.Minute
	maxIdleConns    = 5
	maxOpenConns    = 25
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// Open connects to the database at databaseURL and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open(driverName, databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
