// Package guard is the single write path for the court snapshot.
//
// It protects against one specific lost update: a writer holding a stale,
// empty view wiping out courts that are still in play. The check is a
// heuristic and does not make concurrent writers safe in general; enable
// StrictTick for an optimistic compare-and-swap on the snapshot tick.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/courtboard/internal/court"
	"github.com/example/courtboard/internal/logging"
	"github.com/example/courtboard/internal/persistence"
)

var (
	// ErrWriteRefused is returned when an empty snapshot would replace one
	// with sessions still in play. The current snapshot is returned with it.
	ErrWriteRefused = errors.New("guard: write refused")
	// ErrStaleSnapshot is returned in strict tick mode when the incoming tick
	// does not match the stored one.
	ErrStaleSnapshot = errors.New("guard: stale snapshot")
)

// Options tune a Guard.
type Options struct {
	StrictTick bool
	Now        func() time.Time
	Logger     *slog.Logger
}

// Guard serializes writes through a SnapshotRepository and announces each
// stored document on the bus.
type Guard struct {
	mu         sync.Mutex
	repo       *persistence.SnapshotRepository
	bus        persistence.Bus
	strictTick bool
	now        func() time.Time
	logger     *slog.Logger
}

// New builds a guard. bus may be nil, in which case nothing is announced.
func New(repo *persistence.SnapshotRepository, bus persistence.Bus, opts Options) *Guard {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		repo:       repo,
		bus:        bus,
		strictTick: opts.StrictTick,
		now:        now,
		logger:     logger.With("component", "guard"),
	}
}

// Load returns the stored snapshot.
func (g *Guard) Load(ctx context.Context) (court.Snapshot, error) {
	return g.repo.LoadSnapshot(ctx)
}

// Blocks returns the stored block list.
func (g *Guard) Blocks(ctx context.Context) ([]court.Block, error) {
	return g.repo.LoadBlocks(ctx)
}

// CourtCount returns N.
func (g *Guard) CourtCount() int {
	return g.repo.CourtCount()
}

// Persist writes incoming unless it would erase sessions still in play.
//
// On refusal the stored snapshot is re-announced so subscribers resync, and
// it is returned together with ErrWriteRefused. On success the returned
// snapshot carries the new tick.
func (g *Guard) Persist(ctx context.Context, incoming court.Snapshot) (court.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	logger := g.loggerFor(ctx)
	now := g.now()

	current, err := g.repo.LoadSnapshot(ctx)
	if err != nil {
		return court.Snapshot{}, fmt.Errorf("guard: load current: %w", err)
	}

	future := current.FutureSessions(now)
	if future > 0 && incoming.ActiveSessions() == 0 && !archivesLiveSessions(current, incoming, now) {
		logger.WarnContext(ctx, "refusing snapshot write",
			"current_future_sessions", future,
			"incoming_active_sessions", 0,
		)
		if data, err := json.Marshal(current); err == nil {
			g.announce(ctx, logger, persistence.TopicSnapshot, data)
		}
		return current, ErrWriteRefused
	}

	if g.strictTick && incoming.Tick != current.Tick {
		logger.WarnContext(ctx, "stale snapshot", "incoming_tick", incoming.Tick, "current_tick", current.Tick)
		return current, ErrStaleSnapshot
	}

	stored := incoming.Normalize(g.repo.CourtCount())
	stored.Tick = max(current.Tick+1, now.UnixMilli())

	data, err := g.repo.SaveSnapshot(ctx, stored)
	if err != nil {
		return court.Snapshot{}, err
	}
	g.announce(ctx, logger, persistence.TopicSnapshot, data)
	logger.DebugContext(ctx, "snapshot stored", "tick", stored.Tick, "active_sessions", stored.ActiveSessions())
	return stored, nil
}

// archivesLiveSessions reports whether every still-running session in current
// was moved into the matching court's history in incoming, which is how an
// intentional release of the last live court looks.
func archivesLiveSessions(current, incoming court.Snapshot, now time.Time) bool {
	for i, c := range current.Courts {
		if c.Current == nil || !c.Current.EndsAfter(now) {
			continue
		}
		if i >= len(incoming.Courts) || len(incoming.Courts[i].History) <= len(c.History) {
			return false
		}
	}
	return true
}

// SaveBlocks writes the block list and announces it on the blocks topic.
func (g *Guard) SaveBlocks(ctx context.Context, blocks []court.Block) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := g.repo.SaveBlocks(ctx, blocks)
	if err != nil {
		return err
	}
	g.announce(ctx, g.loggerFor(ctx), persistence.TopicBlocks, data)
	return nil
}

// announce failures are logged only; the write already happened.
func (g *Guard) announce(ctx context.Context, logger *slog.Logger, topic string, data []byte) {
	if g.bus == nil {
		return
	}
	if err := g.bus.Publish(ctx, topic, data); err != nil {
		logger.WarnContext(ctx, "publish failed", "topic", topic, "error", err)
	}
}

func (g *Guard) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger.With("component", "guard")
	}
	return g.logger
}
