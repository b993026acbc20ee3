// Package writer implements the single background actor that owns every
// mutation to the index. Producers — the scanner, the watcher, and the
// server façade's kickoff path — never touch the database directly; they
// send jobs over a channel and the actor applies them in batches.
package writer

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

// maxBatch is the writer's batching cap: the first job blocks the actor, and
// up to maxBatch-1 more are drained without blocking before a transaction is
// opened.
const maxBatch = 128

const jobQueueCapacity = 4096

type jobKind int

const (
	jobUpsert jobKind = iota
	jobRemove
	jobFlush
	jobMeta
)

type job struct {
	kind     jobKind
	path     string
	mtime    int64
	trigrams []text.Trigram
	metaKey  string
	metaVal  string
	reply    chan error
}

// Actor is the single writer goroutine. Construct with New and start it
// with Run in its own goroutine.
type Actor struct {
	engine       *store.Engine
	writeEnabled *atomic.Bool
	log          zerolog.Logger

	jobs chan *job

	nextID   uint32
	pathToID map[string]uint32
}

// New creates a writer actor bound to engine, priming its file-id counter
// and path→id map from the database's current contents. writeEnabled is
// shared with the lease manager, which toggles it as the process gains or
// loses the writer lease.
func New(ctx context.Context, engine *store.Engine, writeEnabled *atomic.Bool, log zerolog.Logger) (*Actor, error) {
	maxID, err := store.MaxFileID(ctx, engine.DB())
	if err != nil {
		return nil, fmt.Errorf("writer: load max file id: %w", err)
	}

	rows, err := store.AllFiles(ctx, engine.DB())
	if err != nil {
		return nil, fmt.Errorf("writer: load existing files: %w", err)
	}
	pathToID := make(map[string]uint32, len(rows))
	for _, r := range rows {
		pathToID[r.Path] = r.ID
	}

	return &Actor{
		engine:       engine,
		writeEnabled: writeEnabled,
		log:          log,
		jobs:         make(chan *job, jobQueueCapacity),
		nextID:       maxID + 1,
		pathToID:     pathToID,
	}, nil
}

// Upsert indexes (or re-indexes) path with the given mtime and trigram set,
// blocking until the batch containing it commits (or is dropped).
func (a *Actor) Upsert(ctx context.Context, path string, mtime int64, trigrams []text.Trigram) error {
	return a.submit(ctx, &job{kind: jobUpsert, path: path, mtime: mtime, trigrams: trigrams})
}

// Remove deletes path from the index, blocking until its batch commits.
func (a *Actor) Remove(ctx context.Context, path string) error {
	return a.submit(ctx, &job{kind: jobRemove, path: path})
}

// SetMeta upserts a single meta key/value pair (e.g. the git_head
// checkpoint) through the same single-writer path as content mutations.
func (a *Actor) SetMeta(ctx context.Context, key, value string) error {
	return a.submit(ctx, &job{kind: jobMeta, metaKey: key, metaVal: value})
}

// Flush forces the current batch to commit and waits for acknowledgement;
// it is the only job the writer actor guarantees a synchronous response for
// by design, though in this implementation every job replies.
func (a *Actor) Flush(ctx context.Context) error {
	return a.submit(ctx, &job{kind: jobFlush})
}

// Meta reads a meta value directly off the engine's connection. Reads never
// go through the job channel: they don't mutate anything, so there is
// nothing for the single-writer invariant to protect here.
func (a *Actor) Meta(ctx context.Context, key string) (string, bool, error) {
	return store.GetMeta(ctx, a.engine.DB(), key)
}

func (a *Actor) submit(ctx context.Context, j *job) error {
	j.reply = make(chan error, 1)
	select {
	case a.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains jobs until ctx is cancelled, then returns; jobs still queued at
// that point get no reply, and their producers wait until their own context
// ends. Callers should run it in its own goroutine for the lifetime of the
// process.
func (a *Actor) Run(ctx context.Context) {
	for {
		var first *job
		select {
		case first = <-a.jobs:
		case <-ctx.Done():
			return
		}

		batch := []*job{first}
		for len(batch) < maxBatch {
			select {
			case j := <-a.jobs:
				batch = append(batch, j)
			default:
				goto applyBatch
			}
		}

	applyBatch:
		a.applyBatch(ctx, batch)
	}
}

func (a *Actor) applyBatch(ctx context.Context, batch []*job) {
	if !a.writeEnabled.Load() {
		for _, j := range batch {
			j.reply <- nil
		}
		return
	}

	tx, err := a.engine.DB().BeginTx(ctx, nil)
	if err != nil {
		a.failBatch(batch, fmt.Errorf("writer: begin batch: %w", err))
		return
	}

	if applyErr := a.applyJobs(ctx, tx, batch); applyErr != nil {
		_ = tx.Rollback()
		a.log.Warn().Err(applyErr).Int("batch_size", len(batch)).Msg("writer batch aborted")
		a.failBatch(batch, applyErr)
		return
	}

	if err := tx.Commit(); err != nil {
		a.failBatch(batch, fmt.Errorf("writer: commit batch: %w", err))
		return
	}

	for _, j := range batch {
		j.reply <- nil
	}
}

func (a *Actor) applyJobs(ctx context.Context, tx *sql.Tx, batch []*job) error {
	for _, j := range batch {
		switch j.kind {
		case jobUpsert:
			id, ok := a.pathToID[j.path]
			if !ok {
				id = a.nextID
				a.nextID++
			}
			applied, err := store.Upsert(ctx, tx, id, j.path, j.mtime, j.trigrams)
			if err != nil {
				return err
			}
			if applied {
				a.pathToID[j.path] = id
			}
		case jobRemove:
			if err := store.Remove(ctx, tx, j.path); err != nil {
				return err
			}
			delete(a.pathToID, j.path)
		case jobMeta:
			if err := store.SetMeta(ctx, tx, j.metaKey, j.metaVal); err != nil {
				return err
			}
		case jobFlush:
			// No storage effect; its presence in the batch just forces this
			// transaction to commit before replying, which already happens
			// unconditionally for every batch.
		}
	}
	return nil
}

func (a *Actor) failBatch(batch []*job, err error) {
	for _, j := range batch {
		j.reply <- err
	}
}
