package metrics

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestServeRegistersMetrics
func TestServeRegistersMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	TicksTotal.WithLabelValues("accepted").Inc()
	LedgerApplied.WithLabelValues("BUY", "ok").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["quotecore_ticks_total"])
	require.True(t, names["quotecore_ledger_applied_total"])
	require.True(t, names["quotecore_active_symbols"])

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

// go test -v --run TestServeReportsListenFailure
func TestServeReportsListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), taken.Addr().String()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metrics server on "+taken.Addr().String())
	case <-time.After(5 * time.Second):
		t.Fatal("listen failure was not reported")
	}
}
