// Package worktree implements the bootstrap sequence that runs whenever a
// process opens the index for a given root: corruption recovery, and
// cloning a sibling git worktree's index when this root has none of its own
// yet.
package worktree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/irvingoujAtDevolution/source-fast/internal/git"
	"github.com/irvingoujAtDevolution/source-fast/internal/store"
)

// Open implements the bootstrap sequence: ensure the database directory
// exists, recover from a corrupt file, try cloning a sibling worktree's
// index, and finally open or create at dbPath.
func Open(ctx context.Context, root, dbPath string) (*store.Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("worktree: create db dir: %w", err)
	}

	if _, err := os.Stat(dbPath); err == nil {
		engine, openErr := store.Open(dbPath)
		if openErr == nil {
			return engine, nil
		}
		if !store.IsCorrupt(openErr) {
			return nil, openErr
		}
		removeDBFiles(dbPath)
	}

	if primaryRoot, ok := copyFromPrimaryWorktree(ctx, root, dbPath); ok {
		engine, openErr := store.Open(dbPath)
		if openErr == nil {
			if err := store.RewritePathPrefix(ctx, engine.DB(), primaryRoot, root); err != nil {
				engine.Close()
				return nil, fmt.Errorf("worktree: rewrite paths: %w", err)
			}
			return engine, nil
		}
		if !store.IsCorrupt(openErr) {
			return nil, openErr
		}
		removeDBFiles(dbPath)
	}

	return store.Open(dbPath)
}

// copyFromPrimaryWorktree locates the repository's primary worktree, and if
// it differs from root and has its own index, copies the three database
// files into dbPath's directory. It reports the primary root on success so
// the caller can rewrite stored path prefixes.
func copyFromPrimaryWorktree(ctx context.Context, root, dbPath string) (primaryRoot string, ok bool) {
	repo, isRepo, err := git.Open(root)
	if err != nil || !isRepo {
		return "", false
	}

	primary, err := repo.PrimaryWorktree(ctx)
	if err != nil {
		return "", false
	}
	if samePath(primary, root) {
		return "", false
	}

	rel, err := filepath.Rel(root, dbPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	primaryDBPath := filepath.Join(primary, rel)

	if _, err := os.Stat(primaryDBPath); err != nil {
		return "", false
	}

	if err := copyDBFiles(primaryDBPath, dbPath); err != nil {
		return "", false
	}
	return primary, true
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA == nil && errB == nil {
		return ra == rb
	}
	return a == b
}

// dbSuffixes lists the SQLite WAL-mode sidecar files that travel with the
// main database file.
var dbSuffixes = []string{"", "-wal", "-shm"}

func copyDBFiles(srcDBPath, dstDBPath string) error {
	for _, suffix := range dbSuffixes {
		src := srcDBPath + suffix
		if _, err := os.Stat(src); err != nil {
			if suffix == "" {
				return err
			}
			continue
		}
		if err := copyFile(src, dstDBPath+suffix); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func removeDBFiles(dbPath string) {
	for _, suffix := range dbSuffixes {
		_ = os.Remove(dbPath + suffix)
	}
}
