package order

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"quotecore/internal/ledger"
	"quotecore/internal/pricing"
	"quotecore/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store     *quote.Store
	ledger    *ledger.MemoryStore
	acct      *ledger.Accountant
	pricer    *pricing.Pricer
	submitted []pricing.PricedOrder
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	f := &fixture{store: quote.NewStore(), ledger: ledger.NewMemoryStore()}
	f.acct = ledger.NewAccountant(f.ledger)
	f.pricer = pricing.NewPricer(f.store)

	sub, err := f.store.Subscribe("EURUSD")
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	require.NoError(t, f.store.Put(quote.Tick{Symbol: "EURUSD", Bid: dec("1.0950"), Ask: dec("1.0952"), Timestamp: time.Now()}))

	_, err = f.acct.OpenAccount(context.Background(), "alice", dec(balance))
	require.NoError(t, err)
	return f
}

func (f *fixture) venue(err error) Venue {
	return VenueFunc(func(_ context.Context, o pricing.PricedOrder) error {
		f.submitted = append(f.submitted, o)
		return err
	})
}

// go test -v --run TestExecuteFillsAndCommits
func TestExecuteFillsAndCommits(t *testing.T) {
	f := newFixture(t, "10000")
	svc := NewService(f.pricer, f.acct, f.venue(nil), nil)

	receipt, err := svc.Execute(context.Background(), "alice", "eurusd", pricing.Buy, dec("1000"))
	require.NoError(t, err)
	assert.True(t, receipt.Delta.Equal(dec("-1095.2")))
	assert.True(t, receipt.After.Equal(dec("8904.8")))

	require.Len(t, f.submitted, 1)
	assert.Equal(t, receipt.Order.OrderID, f.submitted[0].OrderID)
	assert.True(t, f.submitted[0].ExecutionPrice.Equal(dec("1.0952")))
}

// go test -v --run TestExecuteVenueRejection
func TestExecuteVenueRejection(t *testing.T) {
	f := newFixture(t, "10000")
	svc := NewService(f.pricer, f.acct, f.venue(errors.New("market closed")), nil)

	_, err := svc.Execute(context.Background(), "alice", "EURUSD", pricing.Sell, dec("10"))
	require.ErrorIs(t, err, ErrVenueRejected)

	acct, err := f.acct.Account(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("10000")))
	assert.Equal(t, int64(0), acct.Version)
	assert.Empty(t, f.ledger.History("alice"))
}

// go test -v --run TestExecuteInsufficientBalanceSkipsVenue
func TestExecuteInsufficientBalanceSkipsVenue(t *testing.T) {
	f := newFixture(t, "100")
	svc := NewService(f.pricer, f.acct, f.venue(nil), nil)

	_, err := svc.Execute(context.Background(), "alice", "EURUSD", pricing.Buy, dec("1000"))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Empty(t, f.submitted)
}

// go test -v --run TestExecutePricingErrors
func TestExecutePricingErrors(t *testing.T) {
	f := newFixture(t, "100")
	svc := NewService(f.pricer, f.acct, f.venue(nil), nil)

	_, err := svc.Execute(context.Background(), "alice", "USDJPY", pricing.Buy, dec("1"))
	require.ErrorIs(t, err, pricing.ErrQuoteUnavailable)

	_, err = svc.Execute(context.Background(), "alice", "EURUSD", pricing.Buy, dec("0"))
	require.ErrorIs(t, err, pricing.ErrInvalidOrder)
	assert.Empty(t, f.submitted)
}

// go test -v --run TestExecuteSubscribesUnwatchedSymbol
func TestExecuteSubscribesUnwatchedSymbol(t *testing.T) {
	f := newFixture(t, "10000")
	svc := NewService(f.pricer, f.acct, f.venue(nil), nil,
		WithQuotes(f.store), WithFirstTickWait(5*time.Second))

	// stands in for the feed: streams GBPUSD once something asks for it
	go func() {
		for !slices.Contains(f.store.ActiveSymbols(), "GBPUSD") {
			time.Sleep(time.Millisecond)
		}
		_ = f.store.Put(quote.Tick{Symbol: "GBPUSD", Bid: dec("1.2700"), Ask: dec("1.2703"), Timestamp: time.Now()})
	}()

	receipt, err := svc.Execute(context.Background(), "alice", "gbpusd", pricing.Buy, dec("100"))
	require.NoError(t, err)
	assert.True(t, receipt.Order.ExecutionPrice.Equal(dec("1.2703")))
	assert.True(t, receipt.Delta.Equal(dec("-127.03")))

	// interest ends with the order
	assert.Equal(t, 0, f.store.RefCount("GBPUSD"))
	assert.NotContains(t, f.store.ActiveSymbols(), "GBPUSD")
}

// go test -v --run TestExecuteFirstTickWaitExpires
func TestExecuteFirstTickWaitExpires(t *testing.T) {
	f := newFixture(t, "10000")
	svc := NewService(f.pricer, f.acct, f.venue(nil), nil,
		WithQuotes(f.store), WithFirstTickWait(20*time.Millisecond))

	_, err := svc.Execute(context.Background(), "alice", "USDJPY", pricing.Buy, dec("1"))
	require.ErrorIs(t, err, pricing.ErrQuoteUnavailable)
	assert.Equal(t, 0, f.store.RefCount("USDJPY"))

	_, err = svc.Execute(context.Background(), "alice", "USD/JPY", pricing.Buy, dec("1"))
	require.ErrorIs(t, err, pricing.ErrInvalidOrder)
	assert.Empty(t, f.submitted)

	// a live symbol is priced without waiting and keeps its other subscribers
	_, err = svc.Execute(context.Background(), "alice", "EURUSD", pricing.Sell, dec("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.RefCount("EURUSD"))
}

// go test -v --run TestPaperVenue
func TestPaperVenue(t *testing.T) {
	f := newFixture(t, "100")
	svc := NewService(f.pricer, f.acct, PaperVenue{}, nil)

	_, err := svc.Execute(context.Background(), "alice", "EURUSD", pricing.Sell, dec("1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, PaperVenue{}.Submit(ctx, pricing.PricedOrder{}), context.Canceled)
}
