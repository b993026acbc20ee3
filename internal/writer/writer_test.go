package writer

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

func newTestActor(t *testing.T, writeEnabled *atomic.Bool) (*Actor, context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, engine, writeEnabled, zerolog.Nop())
	require.NoError(t, err)
	go a.Run(ctx)
	t.Cleanup(cancel)
	return a, cancel
}

func TestWriterUpsertThenSearchableViaStore(t *testing.T) {
	enabled := &atomic.Bool{}
	enabled.Store(true)
	a, _ := newTestActor(t, enabled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 1, text.ExtractTrigrams([]byte("calculateSum"))))

	id, ok := a.pathToID["/abs/a.go"]
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)

	bm, found, err := store.LoadPosting(ctx, a.engine.DB(), text.Trigram{'c', 'a', 'l'})
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, bm.Contains(id))
}

func TestWriterSameFileGetsStableID(t *testing.T) {
	enabled := &atomic.Bool{}
	enabled.Store(true)
	a, _ := newTestActor(t, enabled)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 1, nil))
	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 2, nil))

	assert.Equal(t, uint32(1), a.pathToID["/abs/a.go"])
}

func TestWriterRemoveDropsFromMap(t *testing.T) {
	enabled := &atomic.Bool{}
	enabled.Store(true)
	a, _ := newTestActor(t, enabled)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 1, nil))
	require.NoError(t, a.Remove(ctx, "/abs/a.go"))

	_, ok := a.pathToID["/abs/a.go"]
	assert.False(t, ok)
}

func TestWriterSilentlyDropsWhenWritesDisabled(t *testing.T) {
	enabled := &atomic.Bool{}
	enabled.Store(false)
	a, _ := newTestActor(t, enabled)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.Upsert(ctx, "/abs/a.go", 1, nil)
	assert.NoError(t, err, "jobs must be acknowledged, not applied, when writes are disabled")

	_, ok := a.pathToID["/abs/a.go"]
	assert.False(t, ok, "a disabled writer must not mutate its in-memory map either")
}

func TestWriterFlushRoundTrip(t *testing.T) {
	enabled := &atomic.Bool{}
	enabled.Store(true)
	a, _ := newTestActor(t, enabled)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 1, nil))
	require.NoError(t, a.Flush(ctx))
}
