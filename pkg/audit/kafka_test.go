package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quotecore/internal/ledger"
	"quotecore/internal/pricing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func receipt() ledger.Receipt {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return ledger.Receipt{
		ID:     "r-1",
		UserID: "alice",
		Before: decimal.RequireFromString("100"),
		After:  decimal.RequireFromString("50"),
		Delta:  decimal.RequireFromString("-50"),
		Order: pricing.PricedOrder{
			OrderID:         "o-1",
			Symbol:          "EURUSD",
			Direction:       pricing.Buy,
			RequestedVolume: decimal.RequireFromString("5"),
			ExecutionPrice:  decimal.RequireFromString("10"),
			ResolvedAt:      now,
		},
		Version:   1,
		AppliedAt: now,
	}
}

// go test -v --run TestPublishReceipt
func TestPublishReceipt(t *testing.T) {
	w := &fakeWriter{}
	p := newReceiptPublisher(w, nil)

	require.NoError(t, p.Publish(context.Background(), receipt()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "alice", string(msg.Key))
	assert.Equal(t, receipt().AppliedAt, msg.Time)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event-type", Value: []byte("ledger.receipt")})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "r-1", decoded["id"])
	assert.Equal(t, "-50", decoded["delta"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

// go test -v --run TestPublishFailureDoesNotUndoLedger
func TestPublishFailureDoesNotUndoLedger(t *testing.T) {
	p := newReceiptPublisher(&fakeWriter{err: errors.New("leader not available")}, nil)

	store := ledger.NewMemoryStore()
	acct := ledger.NewAccountant(store, ledger.WithReceiptSink(p))
	ctx := context.Background()
	_, err := acct.OpenAccount(ctx, "alice", decimal.RequireFromString("100"))
	require.NoError(t, err)

	o := receipt().Order
	_, err = acct.ApplyOrder(ctx, "alice", o)
	require.NoError(t, err)
	assert.Len(t, store.History("alice"), 1)

	require.Error(t, p.Publish(ctx, receipt()))
}
