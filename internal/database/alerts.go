package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// SaveAlert inserts an alert record and reports whether it was inserted.
// Records are immutable, so saving an id that already exists leaves the stored
// record untouched and returns false.
func (db *DB) SaveAlert(ctx context.Context, rec *alert.Record) (bool, error) {
	query := `
		INSERT INTO alerts (alert_id, kind, title, message, app_name, origin_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id) DO NOTHING
	`
	result, err := db.conn.ExecContext(ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.Title,
		rec.Message,
		rec.AppName,
		rec.OriginAt,
		rec.CreatedAt,
	)
	if err != nil {
		return false, storeErr("save alert", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		slog.Debug("Alert already exists, skipping insert", "alert_id", rec.ID)
		return false, nil
	}
	slog.Debug("Inserted alert", "alert_id", rec.ID, "kind", rec.Kind, "app_name", rec.AppName)
	return true, nil
}

// AlertExists reports whether an alert with the given id has been saved.
func (db *DB) AlertExists(ctx context.Context, alertID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)`,
		alertID,
	).Scan(&exists)
	if err != nil {
		return false, storeErr("check alert", err)
	}
	return exists, nil
}

// GetAlert retrieves an alert by id.
func (db *DB) GetAlert(ctx context.Context, alertID string) (*alert.Record, error) {
	query := `
		SELECT alert_id, kind, title, message, app_name, origin_at, created_at
		FROM alerts
		WHERE alert_id = $1
	`
	var rec alert.Record
	var kind string
	err := db.conn.QueryRowContext(ctx, query, alertID).Scan(
		&rec.ID,
		&kind,
		&rec.Title,
		&rec.Message,
		&rec.AppName,
		&rec.OriginAt,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", alertID, alert.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get alert", err)
	}
	rec.Kind = alert.Kind(kind)
	return &rec, nil
}

// PurgeAlerts deletes alerts created before the cutoff. Their delivery statuses
// go with them through the cascading foreign key. Returns the number of alerts removed.
func (db *DB) PurgeAlerts(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < $1`, before)
	if err != nil {
		return 0, storeErr("purge alerts", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	slog.Info("Purged alerts", "before", before, "count", n)
	return n, nil
}
