package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of an order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Label is the direction as a metric label value; anything other than BUY or
// SELL collapses to "invalid".
func (d Direction) Label() string {
	if d == Buy || d == Sell {
		return string(d)
	}
	return "invalid"
}

// ParseDirection accepts "buy"/"sell" in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Buy, Sell:
		return d, nil
	}
	return "", fmt.Errorf("direction %q: %w", s, ErrInvalidOrder)
}

var (
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrStaleQuote       = errors.New("stale quote")
	ErrInvalidOrder     = errors.New("invalid order")
)

// StaleQuoteError carries how old the refused quote was.
type StaleQuoteError struct {
	Symbol string
	Age    time.Duration
	Limit  time.Duration
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("quote %s is %s old (limit %s)", e.Symbol, e.Age, e.Limit)
}

func (e *StaleQuoteError) Unwrap() error { return ErrStaleQuote }

// PricedOrder is an order stamped with its execution price. It is never re-priced.
type PricedOrder struct {
	OrderID         string          `json:"orderId"`
	Symbol          string          `json:"symbol"`
	Direction       Direction       `json:"direction"`
	RequestedVolume decimal.Decimal `json:"requestedVolume"`
	ExecutionPrice  decimal.Decimal `json:"executionPrice"`
	QuoteObservedAt time.Time       `json:"quoteObservedAt"`
	ResolvedAt      time.Time       `json:"resolvedAt"`
}

// Notional is price * volume: the cost of a BUY or the proceeds of a SELL.
func (o PricedOrder) Notional() decimal.Decimal {
	return o.ExecutionPrice.Mul(o.RequestedVolume)
}

// StalePolicy decides what happens when a quote is older than the staleness limit.
type StalePolicy string

const (
	StaleAllow  StalePolicy = "allow"
	StaleWarn   StalePolicy = "warn"
	StaleRefuse StalePolicy = "refuse"
)

// ParseStalePolicy defaults to StaleWarn for an empty string.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StaleWarn, nil
	case StaleAllow, StaleWarn, StaleRefuse:
		return p, nil
	}
	return "", fmt.Errorf("unknown stale policy %q", s)
}
