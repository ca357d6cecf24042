// Package order executes priced orders against a venue and the ledger.
package order

import (
	"context"
	"errors"

	"quotecore/internal/pricing"

	"go.uber.org/zap"
)

// ErrVenueRejected means the execution venue did not fill the order. The
// ledger is untouched; the caller should re-price before retrying.
var ErrVenueRejected = errors.New("venue rejected order")

// Venue fills priced orders. Submit must return only after the venue has
// confirmed or refused the order.
type Venue interface {
	Submit(ctx context.Context, order pricing.PricedOrder) error
}

// PaperVenue fills every order immediately.
type PaperVenue struct {
	Logger *zap.Logger
}

// Submit logs the fill. It fails only when ctx is already done.
func (v PaperVenue) Submit(ctx context.Context, order pricing.PricedOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.Logger != nil {
		v.Logger.Info("paper fill",
			zap.String("order_id", order.OrderID),
			zap.String("symbol", order.Symbol),
			zap.String("direction", string(order.Direction)),
			zap.String("volume", order.RequestedVolume.String()),
			zap.String("price", order.ExecutionPrice.String()))
	}
	return nil
}

// VenueFunc adapts a function to Venue.
type VenueFunc func(ctx context.Context, order pricing.PricedOrder) error

func (f VenueFunc) Submit(ctx context.Context, order pricing.PricedOrder) error { return f(ctx, order) }
