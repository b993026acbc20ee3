// Package scan implements SmartScan, the index-reconciliation entry point
// of the strategy selection: a full filesystem walk when no repository is discoverable, an
// initial version-control scan on a repo's first run, or an incremental
// tree-diff against a stored checkpoint thereafter.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/irvingoujAtDevolution/source-fast/internal/git"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

const (
	indexDirName  = ".source_fast"
	gitDirName    = ".git"
	gitHeadKey    = "git_head"
	walkerWorkers = 8
)

// Writer is the subset of the writer actor's API the scanner drives. It is
// an interface so strategies can be tested against a fake.
type Writer interface {
	Upsert(ctx context.Context, path string, mtime int64, trigrams []text.Trigram) error
	Remove(ctx context.Context, path string) error
	Flush(ctx context.Context) error
	Meta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// SmartScan reconciles the index at root with the current state of the
// working tree, choosing between a full walk, an initial VC scan, or an
// incremental tree-diff.
func SmartScan(ctx context.Context, root string, w Writer, log zerolog.Logger) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("scan: resolve root: %w", err)
	}

	repo, ok, err := git.Open(root)
	if err != nil {
		return fmt.Errorf("scan: git discovery: %w", err)
	}
	if !ok {
		return fullWalk(ctx, root, w, log)
	}

	storedHead, hasHead, err := w.Meta(ctx, gitHeadKey)
	if err != nil {
		return fmt.Errorf("scan: read git_head: %w", err)
	}
	if !hasHead {
		return initialVCScan(ctx, root, w, repo, log)
	}

	return incrementalScan(ctx, root, w, repo, storedHead, log)
}

func initialVCScan(ctx context.Context, root string, w Writer, repo *git.Provider, log zerolog.Logger) error {
	tracked, err := repo.LsFiles(ctx)
	if err != nil {
		return fmt.Errorf("scan: ls-files: %w", err)
	}
	statusChanges, err := repo.StatusChanges(ctx)
	if err != nil {
		return fmt.Errorf("scan: status: %w", err)
	}

	candidates := make(map[string]struct{}, len(tracked)+len(statusChanges))
	for _, rel := range tracked {
		candidates[filepath.Join(repo.Root(), rel)] = struct{}{}
	}
	for _, path := range touchedPaths(repo.Root(), statusChanges) {
		candidates[path] = struct{}{}
	}

	if err := applyCandidates(ctx, root, w, candidates, log); err != nil {
		return err
	}
	if err := w.Flush(ctx); err != nil {
		return fmt.Errorf("scan: flush: %w", err)
	}

	head, err := repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("scan: read HEAD: %w", err)
	}
	return w.SetMeta(ctx, gitHeadKey, head)
}

func incrementalScan(ctx context.Context, root string, w Writer, repo *git.Provider, storedHead string, log zerolog.Logger) error {
	currentHead, err := repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("scan: read HEAD: %w", err)
	}

	if storedHead != currentHead && !repo.CommitExists(ctx, storedHead) {
		if err := fullWalk(ctx, root, w, log); err != nil {
			return err
		}
		return w.SetMeta(ctx, gitHeadKey, currentHead)
	}

	candidates := make(map[string]struct{})

	if storedHead != currentHead {
		diff, err := repo.DiffNameStatus(ctx, storedHead, currentHead)
		if err != nil {
			return fmt.Errorf("scan: diff: %w", err)
		}
		for _, path := range touchedPaths(repo.Root(), diff) {
			candidates[path] = struct{}{}
		}
	}

	statusChanges, err := repo.StatusChanges(ctx)
	if err != nil {
		return fmt.Errorf("scan: status: %w", err)
	}
	for _, path := range touchedPaths(repo.Root(), statusChanges) {
		candidates[path] = struct{}{}
	}

	if err := applyCandidates(ctx, root, w, candidates, log); err != nil {
		return err
	}
	if err := w.Flush(ctx); err != nil {
		return fmt.Errorf("scan: flush: %w", err)
	}

	return w.SetMeta(ctx, gitHeadKey, currentHead)
}

// touchedPaths flattens a change list into the set of absolute paths that
// must be re-applied. A rename contributes both its source (which will no
// longer exist, and so will be removed) and its destination (which will be
// upserted), since a rename touches both paths.
func touchedPaths(repoRoot string, changes []git.Change) []string {
	paths := make([]string, 0, len(changes)*2)
	for _, c := range changes {
		if c.OldPath != "" {
			paths = append(paths, filepath.Join(repoRoot, c.OldPath))
		}
		if c.Path != "" {
			paths = append(paths, filepath.Join(repoRoot, c.Path))
		}
	}
	return paths
}

func fullWalk(ctx context.Context, root string, w Writer, log zerolog.Logger) error {
	matcher := newIgnoreMatcher()
	if err := matcher.loadGitignore(root); err != nil {
		return fmt.Errorf("scan: load .gitignore: %w", err)
	}

	indexDir := filepath.Join(root, indexDirName)
	gitDir := filepath.Join(root, gitDirName)

	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// scanner errors on a single path are logged and skipped
			log.Warn().Err(err).Str("path", path).Msg("scan: walk error, skipping")
			return nil
		}
		if path == indexDir || path == gitDir {
			return filepath.SkipDir
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if rel != "." && matcher.shouldIgnore(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.shouldIgnore(rel, false) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan: walk: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(walkerWorkers)
	for _, path := range candidates {
		path := path
		g.Go(func() error {
			return applyPath(gctx, root, indexDir, gitDir, w, path, log)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return w.Flush(ctx)
}

func applyCandidates(ctx context.Context, root string, w Writer, candidates map[string]struct{}, log zerolog.Logger) error {
	indexDir := filepath.Join(root, indexDirName)
	gitDir := filepath.Join(root, gitDirName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(walkerWorkers)
	for path := range candidates {
		path := path
		g.Go(func() error {
			return applyPath(gctx, root, indexDir, gitDir, w, path, log)
		})
	}
	return g.Wait()
}

// applyPath implements the path-hygiene + apply step common to every
// strategy: canonicalize, reject paths outside root or inside reserved
// directories, then upsert if the candidate is an existing regular file or
// remove otherwise. A writer failure on this single path is logged and
// skipped rather than propagated, so one bad file never aborts the rest of
// the scan.
func applyPath(ctx context.Context, root, indexDir, gitDir string, w Writer, path string, log zerolog.Logger) error {
	canonical, err := text.Canonicalize(path)
	if err != nil {
		return nil
	}

	if !strings.HasPrefix(canonical, root+string(filepath.Separator)) && canonical != root {
		return nil
	}
	if strings.HasPrefix(canonical, indexDir+string(filepath.Separator)) {
		return nil
	}
	if strings.HasPrefix(canonical, gitDir+string(filepath.Separator)) {
		return nil
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		if err := w.Remove(ctx, canonical); err != nil {
			log.Warn().Err(err).Str("path", canonical).Msg("scan: failed to remove path, skipping")
		}
		return nil
	}

	data, ok, err := text.ReadText(canonical)
	if err != nil {
		return nil
	}
	var trigrams []text.Trigram
	if ok {
		trigrams = text.ExtractTrigrams(data)
	}

	if err := w.Upsert(ctx, canonical, info.ModTime().Unix(), trigrams); err != nil {
		log.Warn().Err(err).Str("path", canonical).Msg("scan: failed to upsert path, skipping")
	}
	return nil
}
