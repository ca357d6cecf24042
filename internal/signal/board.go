package signal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type boardKey struct {
	symbol   string
	interval Interval
}

// Board keeps the latest Snapshot per symbol and interval. Snapshots are
// replaced whole, never edited.
type Board struct {
	mu        sync.RWMutex
	snapshots map[boardKey]Snapshot
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{snapshots: make(map[boardKey]Snapshot)}
}

// Publish stores snap unless the board already holds a newer one.
func (b *Board) Publish(snap Snapshot) {
	key := boardKey{snap.Symbol, snap.Interval}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.snapshots[key]; ok && cur.ComputedAt.After(snap.ComputedAt) {
		return
	}
	b.snapshots[key] = snap
}

// Get returns the latest snapshot for symbol at interval and whether one exists.
func (b *Board) Get(symbol string, interval Interval) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snapshots[boardKey{symbol, interval}]
	return snap, ok
}

// Len reports how many (symbol, interval) pairs hold a snapshot.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.snapshots)
}

// CountsSource supplies raw indicator votes, typically from a charting provider.
type CountsSource interface {
	Counts(ctx context.Context, symbol string, interval Interval) (ma, osc Counts, err error)
}

// Target is one symbol/interval pair the Refresher keeps current.
type Target struct {
	Symbol   string
	Interval Interval
}

// Refresher polls a CountsSource for every target and publishes the result.
type Refresher struct {
	Source   CountsSource
	Board    *Board
	Targets  []Target
	Interval time.Duration
	Logger   *zap.Logger
}

// Run refreshes immediately and then every r.Interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	every := r.Interval
	if every <= 0 {
		every = time.Minute
	}

	r.RefreshOnce(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce updates every target once. A failing target keeps its previous snapshot.
func (r *Refresher) RefreshOnce(ctx context.Context) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, t := range r.Targets {
		if ctx.Err() != nil {
			return
		}
		ma, osc, err := r.Source.Counts(ctx, t.Symbol, t.Interval)
		if err != nil {
			logger.Warn("failed to fetch indicator counts",
				zap.String("symbol", t.Symbol), zap.String("interval", string(t.Interval)), zap.Error(err))
			continue
		}
		snap, err := Aggregate(t.Symbol, t.Interval, ma, osc)
		if err != nil {
			logger.Warn("dropping invalid indicator counts",
				zap.String("symbol", t.Symbol), zap.String("interval", string(t.Interval)), zap.Error(err))
			continue
		}
		r.Board.Publish(snap)
		logger.Debug("signal refreshed",
			zap.String("symbol", snap.Symbol),
			zap.String("interval", string(snap.Interval)),
			zap.String("direction", string(snap.Confidence.Direction)),
			zap.Float64("level", snap.Confidence.Level))
	}
}
