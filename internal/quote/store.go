// Package quote keeps the latest bid/ask per symbol and tracks which symbols
// have live subscribers.
package quote

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quotecore/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultGracePeriod = 30 * time.Second

// Store is the quote cache. Reads are lock-free per symbol; writes and
// subscription changes take only the symbol's own lock. The map-level lock
// is held briefly for entry creation, lookup and eviction.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	fallbacks map[string]Quote

	grace   time.Duration
	now     func() time.Time
	logger  *zap.Logger
	changes chan struct{}
	nextID  atomic.Uint64
}

type entry struct {
	quote atomic.Pointer[Quote]

	mu        sync.Mutex
	refs      int
	idleSince time.Time
	evicted   bool
	watchers  map[uint64]chan Quote
}

// Option configures a Store.
type Option func(*Store)

// WithGracePeriod sets how long an unsubscribed symbol lingers before Sweep evicts it.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for activation and eviction events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty quote store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		fallbacks: make(map[string]Quote),
		grace:     defaultGracePeriod,
		now:       time.Now,
		logger:    zap.NewNop(),
		changes:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFallback registers the value served for symbol until a live tick arrives.
// Entries that have not seen a live tick yet pick it up immediately.
func (s *Store) SetFallback(symbol string, bid, ask decimal.Decimal, observedAt time.Time) error {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if !bid.IsPositive() || !ask.IsPositive() {
		return fmt.Errorf("fallback %s: prices must be positive: %w", sym, ErrMalformedTick)
	}
	fb := Quote{Symbol: sym, Bid: bid, Ask: ask, ObservedAt: observedAt, Source: SourceFallback}

	s.mu.Lock()
	s.fallbacks[sym] = fb
	e := s.entries[sym]
	s.mu.Unlock()

	if e != nil {
		e.mu.Lock()
		if cur := e.quote.Load(); cur == nil || cur.Source != SourceLive {
			e.quote.Store(&fb)
		}
		e.mu.Unlock()
	}
	return nil
}

// Get returns the last known quote for symbol, the configured fallback when
// no tick has been seen, or a SourceNone sentinel. It never blocks on I/O.
func (s *Store) Get(symbol string) Quote {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{Symbol: symbol, Source: SourceNone}
	}

	s.mu.RLock()
	e := s.entries[sym]
	fb, hasFallback := s.fallbacks[sym]
	s.mu.RUnlock()

	if e != nil {
		if q := e.quote.Load(); q != nil {
			return *q
		}
	}
	if hasFallback {
		return fb
	}
	return Quote{Symbol: sym, Source: SourceNone}
}

// Put applies a feed tick. Ticks for symbols nobody subscribes to, ticks not
// newer than the stored quote and malformed ticks are rejected whole.
func (s *Store) Put(t Tick) error {
	sym, err := NormalizeSymbol(t.Symbol)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedTick, err)
	}
	if err := t.validate(); err != nil {
		return fmt.Errorf("tick %s bid=%s ask=%s: %w", sym, t.Bid, t.Ask, err)
	}

	s.mu.RLock()
	e := s.entries[sym]
	s.mu.RUnlock()
	if e == nil {
		return fmt.Errorf("tick %s: %w", sym, ErrNotSubscribed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 || e.evicted {
		return fmt.Errorf("tick %s: %w", sym, ErrNotSubscribed)
	}
	if cur := e.quote.Load(); cur != nil && !t.Timestamp.After(cur.ObservedAt) {
		return fmt.Errorf("tick %s at %s, stored %s: %w",
			sym, t.Timestamp.Format(time.RFC3339Nano), cur.ObservedAt.Format(time.RFC3339Nano), ErrOutOfOrder)
	}

	q := &Quote{Symbol: sym, Bid: t.Bid, Ask: t.Ask, ObservedAt: t.Timestamp, Source: SourceLive}
	e.quote.Store(q)
	e.publish(*q)
	return nil
}

// Len returns the number of cached symbols, including ones inside their grace period.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// getOrCreate returns the entry for sym, seeding a new one with its fallback.
func (s *Store) getOrCreate(sym string) *entry {
	s.mu.RLock()
	e, ok := s.entries[sym]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[sym]; ok {
		return e
	}
	e = &entry{watchers: make(map[uint64]chan Quote)}
	if fb, ok := s.fallbacks[sym]; ok {
		e.quote.Store(&fb)
	}
	s.entries[sym] = e
	return e
}

// publish hands q to every watcher, replacing an unread older value.
// Must be called with e.mu held.
func (e *entry) publish(q Quote) {
	for _, ch := range e.watchers {
		select {
		case ch <- q:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- q:
			default:
			}
		}
	}
}

// closeWatcher removes, drains and closes one watcher channel.
// Must be called with e.mu held.
func (e *entry) closeWatcher(id uint64) {
	ch, ok := e.watchers[id]
	if !ok {
		return
	}
	delete(e.watchers, id)
	for {
		select {
		case <-ch:
			continue
		default:
		}
		break
	}
	close(ch)
}

func (s *Store) notifyChanged() {
	metrics.ActiveSymbols.Set(float64(len(s.ActiveSymbols())))
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
