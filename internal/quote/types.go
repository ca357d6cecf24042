package quote

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tells callers where a quote value came from.
type Source string

const (
	// SourceLive is a quote written by an accepted feed tick.
	SourceLive Source = "LIVE"
	// SourceFallback is a configured or warm-started value served until the first tick.
	SourceFallback Source = "FALLBACK"
	// SourceNone is the "no live data yet" sentinel; Bid and Ask are zero.
	SourceNone Source = "NONE"
)

var (
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrMalformedTick = errors.New("malformed tick")
	ErrOutOfOrder    = errors.New("tick older than stored quote")
	ErrNotSubscribed = errors.New("symbol has no subscribers")
)

// Quote is an immutable bid/ask snapshot for one symbol.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	ObservedAt time.Time       `json:"observedAt"`
	Source     Source          `json:"source"`
}

// Available reports whether the quote carries usable prices.
func (q Quote) Available() bool {
	return q.Source == SourceLive || q.Source == SourceFallback
}

// Spread returns ask - bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// Mid returns the midpoint of bid and ask.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Age is how old the quote is at now. Quotes without a timestamp have zero age.
func (q Quote) Age(now time.Time) time.Duration {
	if q.ObservedAt.IsZero() {
		return 0
	}
	return now.Sub(q.ObservedAt)
}

// Tick is one raw (symbol, bid, ask, timestamp) update from the feed.
type Tick struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// NormalizeSymbol upper-cases and trims a symbol and checks it is alphanumeric.
func NormalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", ErrInvalidSymbol
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidSymbol
		}
	}
	return sym, nil
}

func (t Tick) validate() error {
	switch {
	case !t.Bid.IsPositive() || !t.Ask.IsPositive():
		return ErrMalformedTick
	case t.Ask.LessThan(t.Bid):
		return ErrMalformedTick
	case t.Timestamp.IsZero():
		return ErrMalformedTick
	}
	return nil
}
