package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"quotecore/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSnapshot struct {
	quotes []quote.Quote
	err    error
}

func (s staticSnapshot) LoadAll(context.Context) ([]quote.Quote, error) { return s.quotes, s.err }

// go test -v --run TestSnapshotLoaderSeedsFallbacks
func TestSnapshotLoaderSeedsFallbacks(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := quote.NewStore()
	loader := &SnapshotLoader{
		Source: staticSnapshot{quotes: []quote.Quote{
			{Symbol: "EURUSD", Bid: decimal.RequireFromString("1.0950"), Ask: decimal.RequireFromString("1.0952"), ObservedAt: ts},
			{Symbol: "BROKEN", Bid: decimal.Zero, Ask: decimal.RequireFromString("1")},
		}},
		Store:   store,
		Timeout: time.Second,
	}

	n, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q := store.Get("EURUSD")
	assert.Equal(t, quote.SourceFallback, q.Source)
	assert.Equal(t, ts, q.ObservedAt)
	assert.Equal(t, quote.SourceNone, store.Get("BROKEN").Source)
}

// go test -v --run TestSnapshotLoaderSourceError
func TestSnapshotLoaderSourceError(t *testing.T) {
	loader := &SnapshotLoader{Source: staticSnapshot{err: errors.New("redis down")}, Store: quote.NewStore()}
	_, err := loader.Load(context.Background())
	require.Error(t, err)
}
