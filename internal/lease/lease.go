// Package lease implements the periodic leader-election loop that decides,
// across cooperating processes sharing one index, which one is allowed to
// write. Exactly one process holds the writer lease at a time; every other
// process still serves searches against the on-disk state.
package lease

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/irvingoujAtDevolution/source-fast/internal/store"
)

const (
	tickInterval = 500 * time.Millisecond
	leaseTTL     = 5 * time.Second
)

// OnPromote is called once per promotion, the moment this process becomes
// the writer. It should launch the scanner and watcher in the background and
// return without blocking the election loop.
type OnPromote func(ctx context.Context)

// OnDemote is called once per demotion, the moment this process loses the
// writer lease to another holder. It should stop whatever OnPromote started
// (cancel the scanner/watcher context) so a later re-promotion can launch a
// fresh scan rather than running two concurrently.
type OnDemote func()

// Manager runs the try-acquire/renew state machine described by the storage
// engine's leader row.
type Manager struct {
	db           *sql.DB
	holder       string
	writeEnabled *atomic.Bool
	ready        *atomic.Bool
	log          zerolog.Logger
	onPromote    OnPromote
	onDemote     OnDemote

	isWriter      bool
	writerStarted bool
}

// New creates a lease manager bound to db's leader row. writeEnabled and
// ready are shared with the writer actor and the server façade
// respectively. This manager sets and clears writeEnabled; it only clears
// ready on demotion, and setting ready is left to whatever onPromote
// starts. onPromote and onDemote may be nil.
func New(db *sql.DB, writeEnabled, ready *atomic.Bool, log zerolog.Logger, onPromote OnPromote, onDemote OnDemote) *Manager {
	return &Manager{
		db:           db,
		holder:       fmt.Sprintf("pid:%d:%d", os.Getpid(), time.Now().UnixNano()),
		writeEnabled: writeEnabled,
		ready:        ready,
		log:          log,
		onPromote:    onPromote,
		onDemote:     onDemote,
	}
}

// Run drives the election loop until ctx is cancelled, ticking every 500ms.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if !m.isWriter {
		m.tryPromote(ctx)
	}
	if m.isWriter {
		m.renew(ctx)
	}
}

func (m *Manager) tryPromote(ctx context.Context) {
	now := time.Now()
	acquired, err := store.TryAcquire(ctx, m.db, m.holder, now.UnixMilli(), now.Add(leaseTTL).UnixMilli())
	if err != nil {
		m.log.Warn().Err(err).Msg("leader election: acquire failed")
		m.writeEnabled.Store(false)
		return
	}

	if !acquired {
		m.writeEnabled.Store(false)
		return
	}

	m.writeEnabled.Store(true)
	m.isWriter = true
	m.log.Info().Str("role", "writer").Msg("promoted")

	if !m.writerStarted {
		m.writerStarted = true
		if m.onPromote != nil {
			m.onPromote(ctx)
		}
	}
}

func (m *Manager) renew(ctx context.Context) {
	renewed, err := store.Renew(ctx, m.db, m.holder, time.Now().Add(leaseTTL).UnixMilli())
	if err != nil {
		m.log.Warn().Err(err).Msg("leader election: renew failed")
		renewed = false
	}
	if renewed {
		return
	}

	m.log.Info().Str("role", "reader").Msg("demoted")
	m.writeEnabled.Store(false)
	m.ready.Store(false)
	m.isWriter = false

	wasStarted := m.writerStarted
	m.writerStarted = false
	if wasStarted && m.onDemote != nil {
		m.onDemote()
	}
}
