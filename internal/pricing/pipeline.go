// Package pricing stamps order requests with an execution price taken from
// one atomic read of the quote store.
package pricing

import (
	"fmt"
	"time"

	"quotecore/internal/metrics"
	"quotecore/internal/quote"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteReader is the read side of the quote store.
type QuoteReader interface {
	Get(symbol string) quote.Quote
}

// Pricer resolves execution prices. It holds no state besides its settings
// and is safe for concurrent use.
type Pricer struct {
	quotes     QuoteReader
	staleAfter time.Duration
	policy     StalePolicy
	now        func() time.Time
	newID      func() string
	logger     *zap.Logger
}

type Option func(*Pricer)

// WithStaleness sets the age limit and what to do when a quote exceeds it.
// A zero limit disables the check.
func WithStaleness(limit time.Duration, policy StalePolicy) Option {
	return func(p *Pricer) {
		p.staleAfter = limit
		p.policy = policy
	}
}

// WithClock overrides time.Now for quote age and ResolvedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pricer) { p.now = now }
}

// WithLogger sets the logger for stale quote warnings. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pricer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid order id source.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pricer) { p.newID = newID }
}

// NewPricer creates a Pricer reading from quotes. The age check stays off
// until WithStaleness sets a limit.
func NewPricer(quotes QuoteReader, opts ...Option) *Pricer {
	p := &Pricer{
		quotes: quotes,
		policy: StaleWarn,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PriceOrder returns the order stamped with the ask for a BUY or the bid for
// a SELL. Both sides come from the same quote snapshot.
func (p *Pricer) PriceOrder(symbol string, direction Direction, volume decimal.Decimal) (PricedOrder, error) {
	order, err := p.price(symbol, direction, volume)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.OrdersPriced.WithLabelValues(direction.Label(), result).Inc()
	return order, err
}

func (p *Pricer) price(symbol string, direction Direction, volume decimal.Decimal) (PricedOrder, error) {
	if direction != Buy && direction != Sell {
		return PricedOrder{}, fmt.Errorf("direction %q: %w", direction, ErrInvalidOrder)
	}
	if !volume.IsPositive() {
		return PricedOrder{}, fmt.Errorf("volume %s must be positive: %w", volume, ErrInvalidOrder)
	}
	sym, err := quote.NormalizeSymbol(symbol)
	if err != nil {
		return PricedOrder{}, fmt.Errorf("symbol %q: %w", symbol, ErrInvalidOrder)
	}

	q := p.quotes.Get(sym)
	if !q.Available() {
		return PricedOrder{}, fmt.Errorf("%s: %w", sym, ErrQuoteUnavailable)
	}

	now := p.now()
	if age := q.Age(now); p.staleAfter > 0 && age > p.staleAfter {
		switch p.policy {
		case StaleRefuse:
			return PricedOrder{}, &StaleQuoteError{Symbol: sym, Age: age, Limit: p.staleAfter}
		case StaleWarn:
			p.logger.Warn("pricing on stale quote",
				zap.String("symbol", sym),
				zap.Duration("age", age),
				zap.String("source", string(q.Source)))
		}
	}

	price := q.Ask
	if direction == Sell {
		price = q.Bid
	}

	return PricedOrder{
		OrderID:         p.newID(),
		Symbol:          sym,
		Direction:       direction,
		RequestedVolume: volume,
		ExecutionPrice:  price,
		QuoteObservedAt: q.ObservedAt,
		ResolvedAt:      now,
	}, nil
}
