package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quotecore/internal/ledger"
	"quotecore/internal/pricing"
	"quotecore/internal/quote"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pricer is the part of pricing.Pricer the service needs.
type Pricer interface {
	PriceOrder(symbol string, direction pricing.Direction, volume decimal.Decimal) (pricing.PricedOrder, error)
}

// Ledger is the part of ledger.Accountant the service needs.
type Ledger interface {
	ApplyOrder(ctx context.Context, userID string, order pricing.PricedOrder, opts ...ledger.ApplyOption) (ledger.Receipt, error)
}

// Quotes is the quote request side of quote.Store.
type Quotes interface {
	Acquire(symbol string) (quote.Quote, *quote.Subscription, error)
}

// Service runs orders from the quote request through to the ledger receipt.
type Service struct {
	pricer    Pricer
	ledger    Ledger
	venue     Venue
	quotes    Quotes
	firstTick time.Duration
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithQuotes makes Execute subscribe the order's symbol for the duration of
// the order, so symbols nobody watches yet get streamed by the feed.
func WithQuotes(q Quotes) Option {
	return func(s *Service) { s.quotes = q }
}

// WithFirstTickWait bounds how long Execute waits for the first quote of a
// symbol it had to subscribe. Zero prices right away.
func WithFirstTickWait(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.firstTick = d
		}
	}
}

// NewService wires the order flow. A nil logger disables logging.
func NewService(pricer Pricer, accounts Ledger, venue Venue, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{pricer: pricer, ledger: accounts, venue: venue, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute holds the symbol subscribed while the order runs, prices it,
// submits it to the venue while the account is locked and commits it to the
// ledger once the venue confirmed. The balance is checked before the venue
// sees the order.
func (s *Service) Execute(ctx context.Context, userID, symbol string, direction pricing.Direction, volume decimal.Decimal) (ledger.Receipt, error) {
	if s.quotes != nil {
		q, sub, err := s.quotes.Acquire(symbol)
		if err != nil {
			return ledger.Receipt{}, fmt.Errorf("symbol %q: %w", symbol, pricing.ErrInvalidOrder)
		}
		defer sub.Close()
		if !q.Available() {
			s.awaitFirstTick(ctx, sub)
		}
	}

	priced, err := s.pricer.PriceOrder(symbol, direction, volume)
	if err != nil {
		return ledger.Receipt{}, err
	}

	gate := func(ctx context.Context) error {
		if err := s.venue.Submit(ctx, priced); err != nil {
			if errors.Is(err, ErrVenueRejected) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrVenueRejected, err)
		}
		return nil
	}

	receipt, err := s.ledger.ApplyOrder(ctx, userID, priced, ledger.WithGate(gate))
	if err != nil {
		s.logger.Warn("order not executed",
			zap.String("user_id", userID),
			zap.String("order_id", priced.OrderID),
			zap.String("symbol", priced.Symbol),
			zap.Error(err))
		return ledger.Receipt{}, err
	}
	return receipt, nil
}

// awaitFirstTick blocks until sub sees a live quote, the wait expires or ctx
// is done. Pricing decides afterwards whether a quote is there.
func (s *Service) awaitFirstTick(ctx context.Context, sub *quote.Subscription) {
	if s.firstTick <= 0 {
		return
	}
	timer := time.NewTimer(s.firstTick)
	defer timer.Stop()

	select {
	case <-sub.Updates():
	case <-timer.C:
		s.logger.Debug("no quote yet", zap.String("symbol", sub.Symbol()), zap.Duration("waited", s.firstTick))
	case <-ctx.Done():
	}
}
