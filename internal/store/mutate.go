package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

// Upsert applies the upsert algorithm inside the caller's
// transaction: stale-mtime guard, files row, posting cleanup for the prior
// trigram set, and posting insertion for the new one. applied is false when
// the stale-mtime guard fired, which the writer treats as a no-op rather
// than a failure.
func Upsert(ctx context.Context, tx *sql.Tx, fileID uint32, path string, mtime int64, trigrams []text.Trigram) (applied bool, err error) {
	var existingMtime sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT last_modified FROM files WHERE id = ?`, fileID).Scan(&existingMtime)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("store: upsert: load existing: %w", err)
	default:
		if existingMtime.Valid && existingMtime.Int64 >= mtime {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files(id, path, last_modified) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path, last_modified = excluded.last_modified`,
		fileID, path, mtime); err != nil {
		return false, fmt.Errorf("store: upsert: write files row: %w", err)
	}

	prior, _, err := LoadFileTrigrams(ctx, tx, fileID)
	if err != nil {
		return false, err
	}
	for _, t := range prior {
		if err := removeFromPosting(ctx, tx, t, fileID); err != nil {
			return false, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_trigrams(file_id, trigrams) VALUES (?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET trigrams = excluded.trigrams`,
		fileID, encodeTrigramSet(trigrams)); err != nil {
		return false, fmt.Errorf("store: upsert: write file_trigrams row: %w", err)
	}

	for _, t := range trigrams {
		if err := addToPosting(ctx, tx, t, fileID); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Remove applies the remove algorithm: drop fileID from every posting it
// appears in, then delete its file_trigrams and files rows. A path with no
// corresponding file is a no-op.
func Remove(ctx context.Context, tx *sql.Tx, path string) error {
	fileID, ok, err := FileIDForPath(ctx, tx, path)
	if err != nil || !ok {
		return err
	}

	prior, _, err := LoadFileTrigrams(ctx, tx, fileID)
	if err != nil {
		return err
	}
	for _, t := range prior {
		if err := removeFromPosting(ctx, tx, t, fileID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_trigrams WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("store: remove: delete file_trigrams: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("store: remove: delete files row: %w", err)
	}
	return nil
}

func addToPosting(ctx context.Context, tx *sql.Tx, t text.Trigram, fileID uint32) error {
	bm, ok, err := LoadPosting(ctx, tx, t)
	if err != nil {
		return err
	}
	if !ok {
		bm = roaring.New()
	}
	bm.Add(fileID)

	encoded, err := encodePosting(bm)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trigrams(trigram, file_ids) VALUES (?, ?)
		 ON CONFLICT(trigram) DO UPDATE SET file_ids = excluded.file_ids`,
		t[:], encoded); err != nil {
		return fmt.Errorf("store: write posting: %w", err)
	}
	return nil
}

func removeFromPosting(ctx context.Context, tx *sql.Tx, t text.Trigram, fileID uint32) error {
	bm, ok, err := LoadPosting(ctx, tx, t)
	if err != nil || !ok {
		return err
	}
	bm.Remove(fileID)

	if bm.IsEmpty() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trigrams WHERE trigram = ?`, t[:]); err != nil {
			return fmt.Errorf("store: delete empty posting: %w", err)
		}
		return nil
	}

	encoded, err := encodePosting(bm)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE trigrams SET file_ids = ? WHERE trigram = ?`, encoded, t[:]); err != nil {
		return fmt.Errorf("store: update posting: %w", err)
	}
	return nil
}

// SetMeta upserts a single meta key/value pair with last-write-wins
// semantics.
func SetMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("store: set meta %q: %w", key, err)
	}
	return nil
}
