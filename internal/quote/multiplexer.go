package quote

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subscription is one consumer's interest in a symbol. Close releases it
// exactly once; repeated calls are no-ops.
type Subscription struct {
	symbol  string
	id      uint64
	entry   *entry
	store   *Store
	updates chan Quote
	once    sync.Once
}

// Symbol returns the normalized symbol this subscription holds.
func (sub *Subscription) Symbol() string { return sub.symbol }

// Updates delivers accepted live quotes, conflated to the most recent one.
// The channel is closed by Close or when the symbol is evicted.
func (sub *Subscription) Updates() <-chan Quote { return sub.updates }

// Close drops the subscription's reference. No update is delivered after Close returns.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.release(sub.symbol, sub.entry, sub.id)
	})
}

// Subscribe registers interest in symbol, creating its entry (seeded with the
// fallback quote) when it is new.
func (s *Store) Subscribe(symbol string) (*Subscription, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	for {
		e := s.getOrCreate(sym)

		e.mu.Lock()
		if e.evicted {
			// lost a race with Sweep; the map holds a fresh entry now
			e.mu.Unlock()
			continue
		}
		e.refs++
		activated := e.refs == 1
		e.idleSince = time.Time{}
		id := s.nextID.Add(1)
		ch := make(chan Quote, 1)
		e.watchers[id] = ch
		e.mu.Unlock()

		if activated {
			s.logger.Debug("symbol activated", zap.String("symbol", sym))
			s.notifyChanged()
		}
		return &Subscription{symbol: sym, id: id, entry: e, store: s, updates: ch}, nil
	}
}

// Acquire serves a quote request: it subscribes symbol and returns the quote
// current at that moment together with the subscription keeping it live.
// An empty store yields the SourceNone sentinel, not an error. The caller
// owns the subscription and must Close it when it no longer needs the symbol.
func (s *Store) Acquire(symbol string) (Quote, *Subscription, error) {
	sub, err := s.Subscribe(symbol)
	if err != nil {
		return Quote{}, nil, err
	}
	return s.Get(sub.symbol), sub, nil
}

// Unsubscribe drops one reference to symbol. Calls below zero are ignored.
// Prefer Subscription.Close, which also detaches the update channel.
func (s *Store) Unsubscribe(symbol string) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return
	}
	s.mu.RLock()
	e := s.entries[sym]
	s.mu.RUnlock()
	if e == nil {
		return
	}
	s.release(sym, e, 0)
}

func (s *Store) release(sym string, e *entry, watcherID uint64) {
	e.mu.Lock()
	if watcherID != 0 {
		e.closeWatcher(watcherID)
	}
	if e.refs == 0 {
		e.mu.Unlock()
		return
	}
	e.refs--
	idle := e.refs == 0
	if idle {
		e.idleSince = s.now()
	}
	e.mu.Unlock()

	if idle {
		s.logger.Debug("symbol idle", zap.String("symbol", sym), zap.Duration("grace", s.grace))
		s.notifyChanged()
	}
}

// RefCount returns the current subscriber count for symbol.
func (s *Store) RefCount(symbol string) int {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return 0
	}
	s.mu.RLock()
	e := s.entries[sym]
	s.mu.RUnlock()
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// ActiveSymbols returns the sorted set of symbols with at least one subscriber.
// This is the set the feed should keep streaming.
func (s *Store) ActiveSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for sym, e := range s.entries {
		e.mu.Lock()
		if e.refs > 0 {
			out = append(out, sym)
		}
		e.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// Changes signals (coalesced) that the active symbol set changed.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// Sweep evicts symbols whose subscriber count has been zero for at least the
// grace period and returns them.
func (s *Store) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for sym, e := range s.entries {
		e.mu.Lock()
		if e.refs == 0 && !e.idleSince.IsZero() && now.Sub(e.idleSince) >= s.grace {
			e.evicted = true
			for id := range e.watchers {
				e.closeWatcher(id)
			}
			delete(s.entries, sym)
			evicted = append(evicted, sym)
		}
		e.mu.Unlock()
	}
	sort.Strings(evicted)
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if evicted := s.Sweep(s.now()); len(evicted) > 0 {
				s.logger.Info("evicted idle symbols", zap.Strings("symbols", evicted))
			}
		}
	}
}
