package database

import (
	"context"
	"fmt"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// ListRecipients returns the recipient directory ordered by id.
func (db *DB) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT recipient_id, department, email FROM recipients ORDER BY recipient_id`,
	)
	if err != nil {
		return nil, storeErr("list recipients", err)
	}
	defer rows.Close()

	var recipients []alert.Recipient
	for rows.Next() {
		var r alert.Recipient
		var dept string
		if err := rows.Scan(&r.ID, &dept, &r.Email); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		r.Department = alert.Department(dept)
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate recipients", err)
	}
	return recipients, nil
}

// UpsertRecipients writes directory entries in one transaction, replacing the
// department and email of entries that already exist.
func (db *DB) UpsertRecipients(ctx context.Context, recipients []alert.Recipient) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin recipient transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO recipients (recipient_id, department, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (recipient_id) DO UPDATE
		SET department = EXCLUDED.department, email = EXCLUDED.email
	`
	for _, r := range recipients {
		if _, err := tx.ExecContext(ctx, query, r.ID, string(r.Department), r.Email); err != nil {
			return storeErr("upsert recipient "+r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit recipients", err)
	}
	return nil
}
