// Package database provides PostgreSQL storage for alerts, per-recipient
// delivery statuses and the recipient directory.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// codeForeignKeyViolation is raised when a delivery references a purged alert.
const codeForeignKeyViolation = "23503"

// DB wraps a database connection and provides alert, delivery and directory operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// Ping checks the connection, for health reporting.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// storeErr classifies a driver error. Everything except a missing referenced
// row is considered transient and worth retrying.
func storeErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("failed to %s: %w", op, alert.ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, alert.ErrTransient, err)
}
