//go:build leaktests
// +build leaktests

package lease

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

// TestManagerRunStopsCleanlyOnCancel verifies that Run's ticker goroutine
// exits once its context is cancelled, leaving no goroutine behind.
func TestManagerRunStopsCleanlyOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer engine.Close()

	writeEnabled := &atomic.Bool{}
	ready := &atomic.Bool{}

	m := New(engine.DB(), writeEnabled, ready, zerolog.Nop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lease manager did not stop after cancellation")
	}
}
