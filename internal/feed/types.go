package feed

import (
	"strings"

	"github.com/shopspring/decimal"
)

// QuoteMessage is one upstream push, e.g.
// {"topic":"quote.EURUSD","data":{"bid":"1.0950","ask":"1.0952","ts":1700000000000}}
type QuoteMessage struct {
	Topic string    `json:"topic"` // "<prefix>.<SYMBOL>"
	Data  QuoteData `json:"data"`
	Type  string    `json:"type"` // "snapshot" or "delta", informational
}

// QuoteData is the payload of a quote message. Ts is in milliseconds.
type QuoteData struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
	Ts  int64           `json:"ts"` // milliseconds since epoch
}

// Topic returns the upstream topic for symbol, e.g. "quote.EURUSD".
func Topic(prefix, symbol string) string {
	return prefix + "." + symbol
}

// Topics maps symbols to their upstream topics.
func Topics(prefix string, symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = Topic(prefix, s)
	}
	return out
}

// symbolFromTopic parses the symbol from a topic like "quote.EURUSD".
func symbolFromTopic(prefix, topic string) (string, bool) {
	sym, ok := strings.CutPrefix(topic, prefix+".")
	if !ok || sym == "" {
		return "", false
	}
	return sym, true
}
