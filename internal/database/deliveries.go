package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// SaveDeliveryStatuses inserts a batch of delivery statuses in one transaction.
// Rows whose (alert, recipient) pair already exists are skipped by the unique
// constraint. Returns only the rows that were created, with ids and timestamps filled in.
func (db *DB) SaveDeliveryStatuses(ctx context.Context, batch []alert.DeliveryStatus) ([]alert.DeliveryStatus, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin delivery transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO delivery_statuses (alert_id, recipient_id, is_read)
		VALUES ($1, $2, $3)
		ON CONFLICT (alert_id, recipient_id) DO NOTHING
		RETURNING delivery_id, created_at
	`

	created := make([]alert.DeliveryStatus, 0, len(batch))
	for _, ds := range batch {
		row := ds
		err := tx.QueryRowContext(ctx, query, ds.AlertID, ds.RecipientID, ds.Read).Scan(&row.ID, &row.CreatedAt)
		if err == sql.ErrNoRows {
			slog.Debug("Delivery status already exists, skipping",
				"alert_id", ds.AlertID,
				"recipient_id", ds.RecipientID,
			)
			continue
		}
		if err != nil {
			return nil, storeErr("insert delivery status", err)
		}
		created = append(created, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit delivery statuses", err)
	}
	return created, nil
}

// DeliveryExists reports whether a delivery status exists for the pair.
func (db *DB) DeliveryExists(ctx context.Context, alertID, recipientID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM delivery_statuses WHERE alert_id = $1 AND recipient_id = $2)`,
		alertID, recipientID,
	).Scan(&exists)
	if err != nil {
		return false, storeErr("check delivery status", err)
	}
	return exists, nil
}

// ToggleRead sets the read flag of a delivery owned by recipientID. A delivery
// owned by someone else is reported as not found.
func (db *DB) ToggleRead(ctx context.Context, recipientID string, deliveryID int64, read bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE delivery_statuses SET is_read = $2 WHERE delivery_id = $1 AND recipient_id = $3`,
		deliveryID, read, recipientID,
	)
	if err != nil {
		return storeErr("update read state", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delivery %d: %w", deliveryID, alert.ErrNotFound)
	}

	slog.Debug("Updated read state", "delivery_id", deliveryID, "recipient_id", recipientID, "read", read)
	return nil
}

// ListDeliveriesFor returns every delivery for a recipient joined with its alert, newest first.
func (db *DB) ListDeliveriesFor(ctx context.Context, recipientID string) ([]alert.Delivery, error) {
	query := `
		SELECT d.delivery_id, d.alert_id, d.recipient_id, d.is_read, d.created_at,
		       a.kind, a.title, a.message, a.app_name, a.origin_at, a.created_at
		FROM delivery_statuses d
		JOIN alerts a ON a.alert_id = d.alert_id
		WHERE d.recipient_id = $1
		ORDER BY d.created_at DESC, d.delivery_id DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, storeErr("list deliveries", err)
	}
	defer rows.Close()

	deliveries := make([]alert.Delivery, 0)
	for rows.Next() {
		var d alert.Delivery
		var kind string
		if err := rows.Scan(
			&d.ID,
			&d.AlertID,
			&d.RecipientID,
			&d.Read,
			&d.CreatedAt,
			&kind,
			&d.Alert.Title,
			&d.Alert.Message,
			&d.Alert.AppName,
			&d.Alert.OriginAt,
			&d.Alert.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Alert.ID = d.AlertID
		d.Alert.Kind = alert.Kind(kind)
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate deliveries", err)
	}
	return deliveries, nil
}
