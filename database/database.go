// Package database applies migration descriptors to PostgreSQL: it opens the
// single connection a run uses, splits scripts into statements, executes them
// while tolerating "already applied" errors, and verifies the end state from
// the system catalogs.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/gestasaas/gestamigrate/config"
)

// Database is one pinned connection to the target database.
type Database struct {
	db   *sqlx.DB
	conn *sqlx.Conn
}

// Open connects with the given settings and pins a single connection. Every
// failure is returned as a *ConnectionError.
func Open(ctx context.Context, cfg config.DBConfig) (*Database, error) {
	return OpenDSN(ctx, cfg.DSN())
}

// OpenDSN is Open for an already rendered connection string.
func OpenDSN(ctx context.Context, dsn string) (*Database, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, NewConnectionError(err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, NewConnectionError(err)
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		_ = db.Close()
		return nil, NewConnectionError(err)
	}

	return &Database{db: db, conn: conn}, nil
}

// Connection returns the pinned connection.
func (d *Database) Connection() *sqlx.Conn {
	return d.conn
}

// ExecContext runs a statement on the pinned connection.
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return res, nil
}

// SelectContext runs a query on the pinned connection and scans all rows into dest.
func (d *Database) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if err := d.conn.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("failed to select: %w", err)
	}
	return nil
}

// GetContext runs a query on the pinned connection and scans one row into dest.
func (d *Database) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if err := d.conn.GetContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("failed to get: %w", err)
	}
	return nil
}

// Close releases the pinned connection and the pool.
func (d *Database) Close() error {
	return errors.Join(d.conn.Close(), d.db.Close())
}
