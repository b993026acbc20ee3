package store

import (
	"context"
	"database/sql"
	"fmt"
)

const leaseName = "writer"

// TryAcquire implements the try-acquire primitive: ensure the leader row
// exists, then claim it if it is expired or already held by holder. Returns
// true iff the row was (re)claimed by holder.
func TryAcquire(ctx context.Context, db *sql.DB, holder string, nowMs, expiresAtMs int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: try_acquire: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO leader(name, holder, expires_at_ms) VALUES (?, '', 0)
		 ON CONFLICT(name) DO NOTHING`, leaseName); err != nil {
		return false, fmt.Errorf("store: try_acquire: seed row: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE leader SET holder = ?, expires_at_ms = ?
		 WHERE name = ? AND (expires_at_ms < ? OR holder = ?)`,
		holder, expiresAtMs, leaseName, nowMs, holder)
	if err != nil {
		return false, fmt.Errorf("store: try_acquire: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: try_acquire: rows affected: %w", err)
	}
	if n == 0 {
		return false, tx.Commit()
	}
	return true, tx.Commit()
}

// Renew implements the renew primitive: extend the expiry only if holder
// still owns the row. Returns true iff still held.
func Renew(ctx context.Context, db *sql.DB, holder string, expiresAtMs int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE leader SET expires_at_ms = ? WHERE name = ? AND holder = ?`,
		expiresAtMs, leaseName, holder)
	if err != nil {
		return false, fmt.Errorf("store: renew: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: renew: rows affected: %w", err)
	}
	return n > 0, nil
}
