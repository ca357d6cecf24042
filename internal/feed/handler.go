// Package feed is the ingest boundary between the upstream quote stream and
// the quote store. Bad messages are logged, counted and dropped here.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quotecore/internal/metrics"
	"quotecore/internal/quote"

	"go.uber.org/zap"
)

// Writer is the write side of the quote store.
type Writer interface {
	Put(t quote.Tick) error
}

// Mirror receives every accepted quote, e.g. to keep a warm-start copy.
type Mirror interface {
	Save(ctx context.Context, q quote.Quote) error
}

const mirrorTimeout = 2 * time.Second

// MakeMessageHandler returns a function that decodes raw websocket messages
// and applies them to store. mirror may be nil.
func MakeMessageHandler(logger *zap.Logger, prefix string, store Writer, mirror Mirror) func(msg []byte) {
	return func(msg []byte) {
		// Step 1: Extract topic for early filtering
		var meta struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(msg, &meta); err != nil {
			metrics.TicksTotal.WithLabelValues("undecodable").Inc()
			logger.Warn("failed to extract topic", zap.Error(err))
			return
		}
		symbol, ok := symbolFromTopic(prefix, meta.Topic)
		if !ok {
			metrics.TicksTotal.WithLabelValues("ignored").Inc()
			return // subscription acks, pongs, other channels
		}

		// Step 2: Fully parse the quote payload
		var parsed QuoteMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			metrics.TicksTotal.WithLabelValues("undecodable").Inc()
			logger.Warn("failed to parse quote payload", zap.String("topic", meta.Topic), zap.Error(err))
			return
		}

		if norm, err := quote.NormalizeSymbol(symbol); err == nil {
			symbol = norm
		}
		tick := quote.Tick{
			Symbol: symbol,
			Bid:    parsed.Data.Bid,
			Ask:    parsed.Data.Ask,
		}
		if parsed.Data.Ts > 0 {
			tick.Timestamp = time.UnixMilli(parsed.Data.Ts).UTC()
		}

		// Step 3: Apply to the store
		err := store.Put(tick)
		metrics.TicksTotal.WithLabelValues(result(err)).Inc()
		switch {
		case err == nil:
		case errors.Is(err, quote.ErrOutOfOrder), errors.Is(err, quote.ErrNotSubscribed):
			logger.Debug("tick dropped", zap.String("symbol", symbol), zap.Error(err))
			return
		default:
			logger.Warn("tick rejected", zap.String("symbol", symbol), zap.Error(err))
			return
		}

		if mirror == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		q := quote.Quote{Symbol: symbol, Bid: tick.Bid, Ask: tick.Ask, ObservedAt: tick.Timestamp, Source: quote.SourceLive}
		if err := mirror.Save(ctx, q); err != nil {
			logger.Warn("failed to mirror quote", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, quote.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, quote.ErrNotSubscribed):
		return "not_subscribed"
	case errors.Is(err, quote.ErrMalformedTick), errors.Is(err, quote.ErrInvalidSymbol):
		return "malformed"
	default:
		return "error"
	}
}
