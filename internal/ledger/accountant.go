// Package ledger applies priced orders to user balances. Every account is
// mutated by one order at a time; the check and the write happen in one
// critical section backed by a version compare-and-swap in the store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quotecore/internal/metrics"
	"quotecore/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// Accountant is the only writer of account balances and holdings.
type Accountant struct {
	store           Store
	locks           *keyedMutex
	maxRetries      int
	enforceHoldings bool
	sink            ReceiptSink
	now             func() time.Time
	newID           func() string
	logger          *zap.Logger
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithMaxRetries bounds how often a version conflict is retried before
// ErrConcurrentModification is returned.
func WithMaxRetries(n int) Option {
	return func(a *Accountant) {
		if n >= 0 {
			a.maxRetries = n
		}
	}
}

// WithHoldingsCheck makes SELL orders fail with ErrInsufficientHoldings when
// the account holds less than the order volume.
func WithHoldingsCheck(enforce bool) Option {
	return func(a *Accountant) { a.enforceHoldings = enforce }
}

// WithReceiptSink forwards every committed receipt to sink. Sink errors are
// logged and do not fail the order.
func WithReceiptSink(sink ReceiptSink) Option {
	return func(a *Accountant) { a.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Accountant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAccountant creates an Accountant over store with three conflict retries
// and no holdings check unless configured otherwise.
func NewAccountant(store Store, opts ...Option) *Accountant {
	a := &Accountant{
		store:      store,
		locks:      newKeyedMutex(),
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyOption customizes a single ApplyOrder call.
type ApplyOption func(*applyConfig)

type applyConfig struct {
	gate func(ctx context.Context) error
}

// WithGate runs fn inside the account's critical section, after the balance
// check and before the commit. An error from fn aborts the order with no
// ledger change. fn runs at most once per call.
func WithGate(fn func(ctx context.Context) error) ApplyOption {
	return func(c *applyConfig) { c.gate = fn }
}

// OpenAccount creates an account with a non-negative starting balance.
func (a *Accountant) OpenAccount(ctx context.Context, userID string, initial decimal.Decimal) (Account, error) {
	if userID == "" {
		return Account{}, errors.New("user id is required")
	}
	if initial.IsNegative() {
		return Account{}, fmt.Errorf("initial balance %s must not be negative", initial)
	}
	acct := Account{
		UserID:    userID,
		Balance:   initial,
		Holdings:  map[string]decimal.Decimal{},
		UpdatedAt: a.now(),
	}
	if err := a.store.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Account returns the current state of userID's account.
func (a *Accountant) Account(ctx context.Context, userID string) (Account, error) {
	return a.store.Load(ctx, userID)
}

// ApplyOrder debits the cost of a BUY or credits the proceeds of a SELL.
// A BUY that costs more than the balance fails with ErrInsufficientBalance
// and changes nothing.
func (a *Accountant) ApplyOrder(ctx context.Context, userID string, order pricing.PricedOrder, opts ...ApplyOption) (Receipt, error) {
	var cfg applyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	receipt, err := a.apply(ctx, userID, order, cfg)
	metrics.LedgerApplied.WithLabelValues(order.Direction.Label(), resultLabel(err)).Inc()
	if err != nil {
		return Receipt{}, err
	}

	a.logger.Info("order applied",
		zap.String("user_id", userID),
		zap.String("order_id", order.OrderID),
		zap.String("symbol", order.Symbol),
		zap.String("direction", string(order.Direction)),
		zap.String("delta", receipt.Delta.String()),
		zap.String("balance", receipt.After.String()),
		zap.Int64("version", receipt.Version))

	if a.sink != nil {
		if err := a.sink.Publish(ctx, receipt); err != nil {
			a.logger.Warn("failed to publish receipt", zap.String("receipt_id", receipt.ID), zap.Error(err))
		}
	}
	return receipt, nil
}

func (a *Accountant) apply(ctx context.Context, userID string, order pricing.PricedOrder, cfg applyConfig) (Receipt, error) {
	if err := validateOrder(order); err != nil {
		return Receipt{}, err
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	applied, err := a.store.OrderApplied(ctx, order.OrderID)
	if err != nil {
		return Receipt{}, fmt.Errorf("check order %s: %w", order.OrderID, err)
	}
	if applied {
		return Receipt{}, fmt.Errorf("order %s: %w", order.OrderID, ErrDuplicateOrder)
	}

	gated := false
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil && !gated {
			return Receipt{}, err
		}

		acct, err := a.store.Load(ctx, userID)
		if err != nil {
			return Receipt{}, a.afterGate(gated, order, err)
		}

		mut, err := a.plan(acct, order)
		if err != nil {
			return Receipt{}, a.afterGate(gated, order, err)
		}

		if cfg.gate != nil && !gated {
			if err := cfg.gate(ctx); err != nil {
				return Receipt{}, err
			}
			gated = true
		}

		err = a.store.Commit(ctx, mut)
		if err == nil {
			return mut.Receipt, nil
		}
		if errors.Is(err, ErrConcurrentModification) && attempt < a.maxRetries {
			a.logger.Debug("ledger version conflict, retrying",
				zap.String("user_id", userID),
				zap.String("order_id", order.OrderID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return Receipt{}, a.afterGate(gated, order, err)
	}
}

// plan computes the mutation for order against acct without writing anything.
func (a *Accountant) plan(acct Account, order pricing.PricedOrder) (Mutation, error) {
	notional := order.Notional()
	held := acct.Held(order.Symbol)

	var after, delta, newHeld decimal.Decimal
	switch order.Direction {
	case pricing.Buy:
		if notional.GreaterThan(acct.Balance) {
			return Mutation{}, fmt.Errorf("cost %s exceeds balance %s of %s: %w",
				notional, acct.Balance, acct.UserID, ErrInsufficientBalance)
		}
		delta = notional.Neg()
		after = acct.Balance.Sub(notional)
		newHeld = held.Add(order.RequestedVolume)
	case pricing.Sell:
		if a.enforceHoldings && held.LessThan(order.RequestedVolume) {
			return Mutation{}, fmt.Errorf("selling %s %s but %s holds %s: %w",
				order.RequestedVolume, order.Symbol, acct.UserID, held, ErrInsufficientHoldings)
		}
		delta = notional
		after = acct.Balance.Add(notional)
		newHeld = decimal.Max(held.Sub(order.RequestedVolume), decimal.Zero)
	}

	return Mutation{
		UserID:          acct.UserID,
		ExpectedVersion: acct.Version,
		Balance:         after,
		Holding:         Holding{Symbol: order.Symbol, Quantity: newHeld},
		Receipt: Receipt{
			ID:        a.newID(),
			UserID:    acct.UserID,
			Before:    acct.Balance,
			After:     after,
			Delta:     delta,
			Order:     order,
			Version:   acct.Version + 1,
			AppliedAt: a.now(),
		},
	}, nil
}

// afterGate marks failures that happen once the venue already confirmed.
func (a *Accountant) afterGate(gated bool, order pricing.PricedOrder, err error) error {
	if !gated {
		return err
	}
	a.logger.Error("order confirmed by gate but not committed",
		zap.String("order_id", order.OrderID),
		zap.Error(err))
	return fmt.Errorf("%w: order %s: %w", ErrUnreconciled, order.OrderID, err)
}

func validateOrder(order pricing.PricedOrder) error {
	switch {
	case order.OrderID == "":
		return fmt.Errorf("missing order id: %w", pricing.ErrInvalidOrder)
	case order.Direction != pricing.Buy && order.Direction != pricing.Sell:
		return fmt.Errorf("direction %q: %w", order.Direction, pricing.ErrInvalidOrder)
	case !order.RequestedVolume.IsPositive():
		return fmt.Errorf("volume %s: %w", order.RequestedVolume, pricing.ErrInvalidOrder)
	case !order.ExecutionPrice.IsPositive():
		return fmt.Errorf("price %s: %w", order.ExecutionPrice, pricing.ErrInvalidOrder)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnreconciled):
		return "unreconciled"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, pricing.ErrInvalidOrder):
		return "invalid"
	default:
		return "error"
	}
}
