// Package search implements the read-only query path over the persistent
// index: trigram intersection, path filtering, and parallel snippet
// attachment. Every call opens its own read-only connection, independent of
// the writer actor and of any other concurrent reader.
package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

const snippetParallelism = 8

// Hit is one surviving file from a content search, with its snippet filled
// in if requested.
type Hit struct {
	FileID       uint32
	Path         string
	Snippet      *text.Snippet
	SnippetError string
}

// Search runs the content-search algorithm against dbPath. pathRegex
// may be nil. When withSnippets is true, each hit's first-match snippet is
// extracted in parallel; a per-hit failure is recorded in SnippetError
// rather than failing the whole search.
func Search(ctx context.Context, dbPath, query string, pathRegex *regexp.Regexp, withSnippets bool) ([]Hit, error) {
	if len(query) < 3 {
		return nil, nil
	}

	db, err := store.OpenReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}
	defer db.Close()

	trigrams := text.ExtractTrigrams([]byte(query))

	postings := make([]*roaring.Bitmap, 0, len(trigrams))
	for _, t := range trigrams {
		bm, ok, err := store.LoadPosting(ctx, db, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		postings = append(postings, bm)
	}

	sort.Slice(postings, func(i, j int) bool {
		return postings[i].GetCardinality() < postings[j].GetCardinality()
	})

	result := postings[0].Clone()
	for _, bm := range postings[1:] {
		result.And(bm)
		if result.IsEmpty() {
			return nil, nil
		}
	}

	var hits []Hit
	it := result.Iterator()
	for it.HasNext() {
		fileID := it.Next()
		path, ok, err := store.PathForFileID(ctx, db, fileID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if pathRegex != nil && !pathRegex.MatchString(path) {
			continue
		}
		hits = append(hits, Hit{FileID: fileID, Path: path})
	}

	if withSnippets {
		attachSnippets(ctx, hits, query)
	}

	return hits, nil
}

func attachSnippets(ctx context.Context, hits []Hit, query string) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(snippetParallelism)

	for i := range hits {
		i := i
		g.Go(func() error {
			snippet, ok, err := text.ExtractSnippet(hits[i].Path, query)
			switch {
			case err != nil:
				hits[i].SnippetError = err.Error()
			case ok:
				hits[i].Snippet = &snippet
			}
			return nil
		})
	}
	_ = g.Wait()
}

// SearchFiles implements the file-path search operation: a
// case-insensitive substring match against stored paths, sorted ascending.
func SearchFiles(ctx context.Context, dbPath, pattern string) ([]store.PathHit, error) {
	db, err := store.OpenReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}
	defer db.Close()

	return store.SearchPathsContaining(ctx, db, pattern)
}
