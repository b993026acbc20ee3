package store

import (
	"context"
	"fmt"
)

// FileRow is one row of the files table, used to rebuild the writer actor's
// in-memory path→id map at startup.
type FileRow struct {
	ID   uint32
	Path string
}

// AllFiles lists every indexed file's id and path.
func AllFiles(ctx context.Context, q Queryer) ([]FileRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, path FROM files`)
	if err != nil {
		return nil, fmt.Errorf("store: all files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var r FileRow
		if err := rows.Scan(&r.ID, &r.Path); err != nil {
			return nil, fmt.Errorf("store: all files: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
