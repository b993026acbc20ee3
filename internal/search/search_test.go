package search

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
	"github.com/irvingoujAtDevolution/source-fast/internal/writer"
)

func buildIndex(t *testing.T, files map[string]string) (dbPath string, root string) {
	t.Helper()
	root = t.TempDir()
	dbPath = filepath.Join(root, "index.db")

	engine, err := store.Open(dbPath)
	require.NoError(t, err)
	defer engine.Close()

	enabled := &atomic.Bool{}
	enabled.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := writer.New(ctx, engine, enabled, zerolog.Nop())
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(context.Background())
	go a.Run(runCtx)
	defer stop()

	var mtime int64 = 1
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, a.Upsert(ctx, path, mtime, text.ExtractTrigrams([]byte(content))))
		mtime++
	}
	require.NoError(t, a.Flush(ctx))

	return dbPath, root
}

func TestSearchFindsSubstringMatch(t *testing.T) {
	dbPath, root := buildIndex(t, map[string]string{
		"lib.go": "func calculateSum(a, b int) int { return a + b }",
	})

	hits, err := Search(context.Background(), dbPath, "calculateSum", nil, true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(root, "lib.go"), hits[0].Path)
	require.NotNil(t, hits[0].Snippet)
	assert.Contains(t, hits[0].Snippet.Lines[0].Text, "calculateSum")
}

func TestSearchShortQueryReturnsEmpty(t *testing.T) {
	dbPath, _ := buildIndex(t, map[string]string{"a.go": "package main"})

	hits, err := Search(context.Background(), dbPath, "ab", nil, false)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchUnknownTrigramReturnsEmpty(t *testing.T) {
	dbPath, _ := buildIndex(t, map[string]string{"a.go": "package main"})

	hits, err := Search(context.Background(), dbPath, "zzz_not_present", nil, false)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFiltersByPathRegex(t *testing.T) {
	dbPath, _ := buildIndex(t, map[string]string{
		"a.go": "sharedTerm here",
		"b.ts": "sharedTerm here too",
	})

	re := regexp.MustCompile(`\.go$`)
	hits, err := Search(context.Background(), dbPath, "sharedTerm", re, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Path, "a.go")
}

func TestSearchFilesSubstringCaseInsensitive(t *testing.T) {
	dbPath, root := buildIndex(t, map[string]string{
		"Widget.go": "x",
	})

	hits, err := SearchFiles(context.Background(), dbPath, "widget")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(root, "Widget.go"), hits[0].Path)
}
