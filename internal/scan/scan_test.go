package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvingoujAtDevolution/source-fast/internal/git"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

type fakeWriter struct {
	upserts map[string][]text.Trigram
	removed map[string]bool
	meta    map[string]string
	failOn  map[string]bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		upserts: make(map[string][]text.Trigram),
		removed: make(map[string]bool),
		meta:    make(map[string]string),
		failOn:  make(map[string]bool),
	}
}

func (f *fakeWriter) Upsert(_ context.Context, path string, _ int64, trigrams []text.Trigram) error {
	if f.failOn[path] {
		return fmt.Errorf("simulated upsert failure for %s", path)
	}
	f.upserts[path] = trigrams
	delete(f.removed, path)
	return nil
}

func (f *fakeWriter) Remove(_ context.Context, path string) error {
	if f.failOn[path] {
		return fmt.Errorf("simulated remove failure for %s", path)
	}
	f.removed[path] = true
	delete(f.upserts, path)
	return nil
}

func (f *fakeWriter) Flush(_ context.Context) error { return nil }

func (f *fakeWriter) Meta(_ context.Context, key string) (string, bool, error) {
	v, ok := f.meta[key]
	return v, ok, nil
}

func (f *fakeWriter) SetMeta(_ context.Context, key, value string) error {
	f.meta[key] = value
	return nil
}

func TestSmartScanFullWalkIndexesFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "skip.go"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("vendor/\n"), 0o644))

	w := newFakeWriter()
	require.NoError(t, SmartScan(context.Background(), root, w, zerolog.Nop()))

	canonicalA, err := text.Canonicalize(filepath.Join(root, "a.go"))
	require.NoError(t, err)

	_, indexed := w.upserts[canonicalA]
	assert.True(t, indexed)

	for path := range w.upserts {
		assert.NotContains(t, path, "vendor")
	}
}

func TestSmartScanSkipsReservedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".source_fast"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".source_fast", "index.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package main"), 0o644))

	w := newFakeWriter()
	require.NoError(t, SmartScan(context.Background(), root, w, zerolog.Nop()))

	for path := range w.upserts {
		assert.NotContains(t, path, ".source_fast")
	}
}

func TestSmartScanSkipsFileWithWriterFailureAndContinues(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.go"), []byte("package main"), 0o644))

	canonicalBad, err := text.Canonicalize(filepath.Join(root, "bad.go"))
	require.NoError(t, err)
	canonicalGood, err := text.Canonicalize(filepath.Join(root, "good.go"))
	require.NoError(t, err)

	w := newFakeWriter()
	w.failOn[canonicalBad] = true

	require.NoError(t, SmartScan(context.Background(), root, w, zerolog.Nop()),
		"a single path's writer failure must not abort the whole scan")

	_, badIndexed := w.upserts[canonicalBad]
	assert.False(t, badIndexed)

	_, goodIndexed := w.upserts[canonicalGood]
	assert.True(t, goodIndexed)
}

func TestTouchedPathsIncludesBothSidesOfRename(t *testing.T) {
	changes := []git.Change{
		{Kind: git.ChangeRenamed, OldPath: "old.go", Path: "new.go"},
		{Kind: git.ChangeModified, Path: "existing.go"},
	}

	got := touchedPaths("/repo", changes)
	assert.ElementsMatch(t, []string{
		filepath.Join("/repo", "old.go"),
		filepath.Join("/repo", "new.go"),
		filepath.Join("/repo", "existing.go"),
	}, got)
}
