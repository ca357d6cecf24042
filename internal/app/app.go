// Package app wires the quote cache, pricing, ledger and feeds into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quotecore/config"
	"quotecore/internal/feed"
	"quotecore/internal/ledger"
	"quotecore/internal/metrics"
	"quotecore/internal/order"
	"quotecore/internal/pricing"
	"quotecore/internal/quote"
	"quotecore/internal/signal"
	"quotecore/pkg/audit"
	"quotecore/pkg/feedws"
	"quotecore/pkg/indicators"
	"quotecore/pkg/storage/postgres"
	qredis "quotecore/pkg/storage/redis"
	"quotecore/pkg/venue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const warmStartTimeout = 5 * time.Second

// App holds the running components. Callers embedding the core use Quotes,
// Pricer, Accountant and Orders directly; quote requests go through
// Quotes.Acquire so the feed streams every symbol somebody holds.
type App struct {
	Quotes     *quote.Store
	Pricer     *pricing.Pricer
	Accountant *ledger.Accountant
	Orders     *order.Service
	Signals    *signal.Board

	cfg       *config.Config
	logger    *zap.Logger
	feed      *feedws.WSClient
	refresher *signal.Refresher
	watched   []*quote.Subscription
	closers   []func() error
}

// New builds every component from cfg. External stores are connected here,
// background loops start in Run.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// Quote store with configured fallbacks
	a.Quotes = quote.NewStore(
		quote.WithGracePeriod(cfg.Quotes.GracePeriod),
		quote.WithLogger(logger.Named("quotes")),
	)
	if err := a.seedFallbacks(); err != nil {
		return nil, err
	}

	// Redis mirror and warm start
	var mirror feed.Mirror
	if cfg.Redis.Enabled {
		client, err := qredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		qm := qredis.NewQuoteMirror(client, cfg.Redis.TTL)
		mirror = qm

		loader := &feed.SnapshotLoader{Source: qm, Store: a.Quotes, Timeout: warmStartTimeout, Logger: logger}
		if _, err := loader.Load(ctx); err != nil {
			logger.Warn("starting without quote snapshot", zap.Error(err))
		}
	}

	// Pricing
	policy, err := pricing.ParseStalePolicy(cfg.Quotes.StalePolicy)
	if err != nil {
		return nil, err
	}
	a.Pricer = pricing.NewPricer(a.Quotes,
		pricing.WithStaleness(cfg.Quotes.StaleAfter, policy),
		pricing.WithLogger(logger.Named("pricing")),
	)

	// Ledger
	store, err := a.ledgerStore()
	if err != nil {
		return nil, err
	}
	opts := []ledger.Option{
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithHoldingsCheck(cfg.Ledger.EnforceHoldings),
		ledger.WithLogger(logger.Named("ledger")),
	}
	if cfg.Kafka.Enabled {
		pub := audit.NewReceiptPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("audit"))
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, ledger.WithReceiptSink(pub))
	}
	a.Accountant = ledger.NewAccountant(store, opts...)

	// Venue and order service
	v, err := a.venue()
	if err != nil {
		return nil, err
	}
	a.Orders = order.NewService(a.Pricer, a.Accountant, v, logger.Named("orders"),
		order.WithQuotes(a.Quotes),
		order.WithFirstTickWait(cfg.Quotes.FirstTickWait),
	)

	// Signals
	a.Signals = signal.NewBoard()
	if cfg.Signals.BaseURL != "" {
		targets, err := signalTargets(cfg.Signals.Targets)
		if err != nil {
			return nil, err
		}
		a.refresher = &signal.Refresher{
			Source:   indicators.NewRESTClient(cfg.Signals.BaseURL, cfg.Signals.Timeout),
			Board:    a.Signals,
			Targets:  targets,
			Interval: cfg.Signals.RefreshInterval,
			Logger:   logger.Named("signals"),
		}
	}

	// Permanent subscriptions keep the watched symbols streaming
	for _, sym := range cfg.Quotes.Watch {
		sub, err := a.Quotes.Subscribe(sym)
		if err != nil {
			return nil, fmt.Errorf("watch %q: %w", sym, err)
		}
		a.watched = append(a.watched, sub)
	}

	// Feed
	if cfg.Feed.URL != "" {
		a.feed = feedws.NewWSClient(cfg.Feed.URL, cfg.Feed.TopicPrefix, a.Quotes, logger.Named("feed"))
		a.feed.SetReconnectDelay(cfg.Feed.ReconnectDelay)
		a.feed.SetMessageHandler(feed.MakeMessageHandler(logger.Named("ingest"), cfg.Feed.TopicPrefix, a.Quotes, mirror))
	} else {
		logger.Warn("feed.url not set, serving fallback quotes only")
	}

	ok = true
	return a, nil
}

// Run starts the background loops and blocks until ctx is done or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return metrics.Serve(ctx, a.cfg.Metrics.Addr) })

	g.Go(func() error { return a.Quotes.RunSweeper(ctx, a.cfg.Quotes.SweepInterval) })
	if a.feed != nil {
		g.Go(func() error { return a.feed.Run(ctx) })
	}
	if a.refresher != nil {
		g.Go(func() error { return a.refresher.Run(ctx) })
	}

	a.logger.Info("quotecore running",
		zap.Strings("watch", a.Quotes.ActiveSymbols()),
		zap.String("ledger", a.cfg.Ledger.Backend),
		zap.String("venue", a.cfg.Venue.Kind),
		zap.String("metrics", a.cfg.Metrics.Addr))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases subscriptions and external connections.
func (a *App) Close() {
	for _, sub := range a.watched {
		sub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) seedFallbacks() error {
	for sym, fb := range a.cfg.Quotes.Fallbacks {
		bid, err := decimal.NewFromString(fb.Bid)
		if err != nil {
			return fmt.Errorf("fallback %s bid: %w", sym, err)
		}
		ask, err := decimal.NewFromString(fb.Ask)
		if err != nil {
			return fmt.Errorf("fallback %s ask: %w", sym, err)
		}
		if err := a.Quotes.SetFallback(sym, bid, ask, time.Time{}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) ledgerStore() (ledger.Store, error) {
	switch strings.ToLower(a.cfg.Ledger.Backend) {
	case "", "memory":
		return ledger.NewMemoryStore(), nil
	case "postgres":
		client, err := postgres.InitializeAndMigrate(a.cfg.Postgres, a.cfg.Log.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client.LedgerStore(), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", a.cfg.Ledger.Backend)
}

func (a *App) venue() (order.Venue, error) {
	switch strings.ToLower(a.cfg.Venue.Kind) {
	case "", "paper":
		return order.PaperVenue{Logger: a.logger.Named("venue")}, nil
	case "rest":
		if a.cfg.Venue.BaseURL == "" {
			return nil, errors.New("venue.base_url is required for the rest venue")
		}
		return venue.NewRESTClient(a.cfg.Venue.BaseURL, a.cfg.Venue.Timeout), nil
	}
	return nil, fmt.Errorf("unknown venue kind %q", a.cfg.Venue.Kind)
}

func signalTargets(cfgs []config.SignalTargetConfig) ([]signal.Target, error) {
	out := make([]signal.Target, 0, len(cfgs))
	for _, c := range cfgs {
		meta, err := signal.ParseInterval(c.Interval)
		if err != nil {
			return nil, fmt.Errorf("signal target %s: %w", c.Symbol, err)
		}
		sym, err := quote.NormalizeSymbol(c.Symbol)
		if err != nil {
			return nil, fmt.Errorf("signal target %q: %w", c.Symbol, err)
		}
		out = append(out, signal.Target{Symbol: sym, Interval: meta.Code})
	}
	return out, nil
}
