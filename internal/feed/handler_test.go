package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"quotecore/internal/metrics"
	"quotecore/internal/quote"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingMirror struct {
	saved []quote.Quote
	err   error
}

func (m *recordingMirror) Save(_ context.Context, q quote.Quote) error {
	m.saved = append(m.saved, q)
	return m.err
}

func accepted() float64 { return testutil.ToFloat64(metrics.TicksTotal.WithLabelValues("accepted")) }

// go test -v --run TestHandlerAppliesTicks
func TestHandlerAppliesTicks(t *testing.T) {
	store := quote.NewStore()
	sub, err := store.Subscribe("EURUSD")
	require.NoError(t, err)
	defer sub.Close()

	mirror := &recordingMirror{}
	handle := MakeMessageHandler(zap.NewNop(), "quote", store, mirror)
	before := accepted()

	handle([]byte(`{"topic":"quote.EURUSD","data":{"bid":"1.0950","ask":"1.0952","ts":1700000000000},"type":"delta"}`))

	q := store.Get("EURUSD")
	require.Equal(t, quote.SourceLive, q.Source)
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.0950")))
	assert.True(t, q.Ask.Equal(decimal.RequireFromString("1.0952")))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), q.ObservedAt)
	assert.Equal(t, before+1, accepted())

	require.Len(t, mirror.saved, 1)
	assert.Equal(t, "EURUSD", mirror.saved[0].Symbol)
	assert.Equal(t, q.ObservedAt, mirror.saved[0].ObservedAt)
}

// go test -v --run TestHandlerDropsBadMessages
func TestHandlerDropsBadMessages(t *testing.T) {
	store := quote.NewStore()
	sub, err := store.Subscribe("EURUSD")
	require.NoError(t, err)
	defer sub.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	mirror := &recordingMirror{}
	handle := MakeMessageHandler(zap.New(core), "quote", store, mirror)

	handle([]byte(`{"topic":"quote.EURUSD","data":{"bid":"1.0950","ask":"1.0952","ts":1700000000000}}`))

	msgs := []string{
		`not json`,
		`{"op":"subscribe","success":true}`,
		`{"topic":"kline.1.EURUSD","data":{}}`,
		`{"topic":"quote.EURUSD","data":{"bid":"abc","ask":"1.0952","ts":1700000001000}}`,
		`{"topic":"quote.EURUSD","data":{"bid":"1.0953","ask":"1.0952","ts":1700000001000}}`,
		`{"topic":"quote.EURUSD","data":{"bid":"1.0950","ask":"1.0952"}}`,
		`{"topic":"quote.EURUSD","data":{"bid":"1.0940","ask":"1.0942","ts":1699999999000}}`,
		`{"topic":"quote.GBPUSD","data":{"bid":"1.2700","ask":"1.2703","ts":1700000001000}}`,
	}
	for _, m := range msgs {
		handle([]byte(m))
	}

	q := store.Get("EURUSD")
	assert.True(t, q.Bid.Equal(decimal.RequireFromString("1.0950")), "bad ticks never reach the store")
	assert.Equal(t, quote.SourceNone, store.Get("GBPUSD").Source)
	assert.Len(t, mirror.saved, 1)
	assert.NotZero(t, logs.FilterMessage("tick rejected").Len())
	assert.NotZero(t, logs.FilterMessage("tick dropped").Len())
}

// go test -v --run TestHandlerMirrorFailureIsLogged
func TestHandlerMirrorFailureIsLogged(t *testing.T) {
	store := quote.NewStore()
	sub, err := store.Subscribe("XAUUSD")
	require.NoError(t, err)
	defer sub.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	handle := MakeMessageHandler(zap.New(core), "quote", store, &recordingMirror{err: errors.New("redis down")})
	handle([]byte(`{"topic":"quote.XAUUSD","data":{"bid":2300.1,"ask":2300.5,"ts":1700000000000}}`))

	assert.Equal(t, quote.SourceLive, store.Get("XAUUSD").Source)
	assert.Equal(t, 1, logs.FilterMessage("failed to mirror quote").Len())
}

// go test -v --run TestTopics
func TestTopics(t *testing.T) {
	assert.Equal(t, []string{"quote.EURUSD", "quote.GBPUSD"}, Topics("quote", []string{"EURUSD", "GBPUSD"}))

	sym, ok := symbolFromTopic("quote", "quote.EURUSD")
	assert.True(t, ok)
	assert.Equal(t, "EURUSD", sym)

	_, ok = symbolFromTopic("quote", "quote.")
	assert.False(t, ok)
	_, ok = symbolFromTopic("quote", "quotes.EURUSD")
	assert.False(t, ok)
}
