// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotecore_ticks_total", Help: "Feed ticks by ingest result"},
		[]string{"result"},
	)
	ActiveSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "quotecore_active_symbols", Help: "Symbols with at least one subscriber"},
	)
	OrdersPriced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotecore_orders_priced_total", Help: "Pricing attempts by direction and result"},
		[]string{"direction", "result"},
	)
	LedgerApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotecore_ledger_applied_total", Help: "Ledger applications by direction and result"},
		[]string{"direction", "result"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, ActiveSymbols, OrdersPriced, LedgerApplied)
}

// Serve exposes /metrics on addr until ctx is done, then shuts the server
// down and returns ctx.Err(). A listener that fails to start is returned as
// an error right away.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	<-errCh
	return ctx.Err()
}
