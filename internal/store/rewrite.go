package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RewritePathPrefix replaces oldRoot with newRoot as the prefix of every
// stored file path under a single transaction. Paths that do not share the
// prefix are left unchanged. Used by the worktree bootstrap after copying an
// index from a sibling worktree.
func RewritePathPrefix(ctx context.Context, db *sql.DB, oldRoot, newRoot string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: rewrite prefix: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, path FROM files`)
	if err != nil {
		return fmt.Errorf("store: rewrite prefix: select: %w", err)
	}

	type update struct {
		id      uint32
		newPath string
	}
	var updates []update
	prefix := oldRoot + "/"

	for rows.Next() {
		var id uint32
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return fmt.Errorf("store: rewrite prefix: scan: %w", err)
		}
		if path == oldRoot {
			updates = append(updates, update{id: id, newPath: newRoot})
			continue
		}
		if suffix, ok := strings.CutPrefix(path, prefix); ok {
			updates = append(updates, update{id: id, newPath: newRoot + "/" + suffix})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("store: rewrite prefix: rows: %w", err)
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE files SET path = ? WHERE id = ?`, u.newPath, u.id); err != nil {
			return fmt.Errorf("store: rewrite prefix: update: %w", err)
		}
	}

	return tx.Commit()
}
