package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

// LoadPosting returns the decoded posting bitmap for a trigram. ok is false
// when no row exists for it (the trigram occurs in no indexed file).
func LoadPosting(ctx context.Context, q Queryer, t text.Trigram) (*roaring.Bitmap, bool, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT file_ids FROM trigrams WHERE trigram = ?`, t[:]).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("store: load posting: %w", err)
	}
	bm, err := decodePosting(blob)
	if err != nil {
		return nil, false, err
	}
	return bm, true, nil
}

// LoadFileTrigrams returns the stored per-file trigram set for fileID. ok is
// false when the file has no row (never indexed, or already removed).
func LoadFileTrigrams(ctx context.Context, q Queryer, fileID uint32) ([]text.Trigram, bool, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT trigrams FROM file_trigrams WHERE file_id = ?`, fileID).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("store: load file_trigrams: %w", err)
	}
	trigrams, err := decodeTrigramSet(blob)
	if err != nil {
		return nil, false, err
	}
	return trigrams, true, nil
}

// PathForFileID resolves a file id to its stored canonical path.
func PathForFileID(ctx context.Context, q Queryer, fileID uint32) (string, bool, error) {
	var path string
	err := q.QueryRowContext(ctx, `SELECT path FROM files WHERE id = ?`, fileID).Scan(&path)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("store: path for file id: %w", err)
	}
	return path, true, nil
}

// FileIDForPath resolves a canonical path to its file id.
func FileIDForPath(ctx context.Context, q Queryer, path string) (uint32, bool, error) {
	var id uint32
	err := q.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("store: file id for path: %w", err)
	}
	return id, true, nil
}

// GetMeta reads a single meta value.
func GetMeta(ctx context.Context, q Queryer, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("store: get meta %q: %w", key, err)
	}
	return value, true, nil
}

// PathHit is one row returned by SearchPathsContaining.
type PathHit struct {
	FileID uint32
	Path   string
}

// SearchPathsContaining implements the file-path search operation:
// a case-insensitive substring match against stored paths, sorted path
// ascending. An empty pattern returns no rows.
func SearchPathsContaining(ctx context.Context, q Queryer, pattern string) ([]PathHit, error) {
	if pattern == "" {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, path FROM files WHERE instr(lower(path), lower(?)) > 0 ORDER BY path ASC`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("store: search paths: %w", err)
	}
	defer rows.Close()

	var hits []PathHit
	for rows.Next() {
		var h PathHit
		if err := rows.Scan(&h.FileID, &h.Path); err != nil {
			return nil, fmt.Errorf("store: search paths: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
