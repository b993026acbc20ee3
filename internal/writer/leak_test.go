//go:build leaktests
// +build leaktests

package writer

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
)

// TestActorStopsCleanlyOnCancel verifies that Run's goroutine exits once its
// context is cancelled, leaving no goroutine behind.
func TestActorStopsCleanlyOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer engine.Close()

	enabled := &atomic.Bool{}
	enabled.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, engine, enabled, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.NoError(t, a.Upsert(ctx, "/abs/a.go", 1, nil))
	require.NoError(t, a.Flush(ctx))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not stop after cancellation")
	}
}
