package feed

import (
	"context"
	"time"

	"quotecore/internal/quote"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotSource returns previously mirrored quotes.
type SnapshotSource interface {
	LoadAll(ctx context.Context) ([]quote.Quote, error)
}

// FallbackSetter is the part of the quote store a warm start writes to.
type FallbackSetter interface {
	SetFallback(symbol string, bid, ask decimal.Decimal, observedAt time.Time) error
}

// SnapshotLoader seeds the store's fallbacks from a snapshot so symbols have
// a price before the first live tick.
type SnapshotLoader struct {
	Source  SnapshotSource
	Store   FallbackSetter
	Timeout time.Duration
	Logger  *zap.Logger
}

// Load applies every snapshot quote as a fallback and returns how many were
// accepted. Quotes the store refuses are skipped.
func (l *SnapshotLoader) Load(ctx context.Context) (int, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	quotes, err := l.Source.LoadAll(ctx)
	if err != nil {
		logger.Error("failed to load quote snapshot", zap.Error(err))
		return 0, err
	}

	n := 0
	for _, q := range quotes {
		if err := l.Store.SetFallback(q.Symbol, q.Bid, q.Ask, q.ObservedAt); err != nil {
			logger.Warn("skipping snapshot quote", zap.String("symbol", q.Symbol), zap.Error(err))
			continue
		}
		n++
	}
	logger.Info("loaded quote snapshot", zap.Int("count", n))
	return n, nil
}
