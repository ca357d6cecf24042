// Package redis mirrors accepted quotes so a restarted process can serve the
// last known prices before the feed catches up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quotecore/internal/quote"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "quotecore:quote:"
	defaultTTL    = 24 * time.Hour
	scanBatch     = 200
)

// QuoteMirror keeps the last accepted quote per symbol in redis.
type QuoteMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewQuoteMirror creates a mirror keyed "quotecore:quote:<SYMBOL>". A zero ttl
// keeps the default of 24 hours.
func NewQuoteMirror(client redis.UniversalClient, ttl time.Duration) *QuoteMirror {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &QuoteMirror{client: client, prefix: defaultPrefix, ttl: ttl}
}

// NewClient opens a redis client and checks it with PING.
func NewClient(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Save stores q under its symbol, replacing any older value and renewing the TTL.
func (m *QuoteMirror) Save(ctx context.Context, q quote.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	return m.client.Set(ctx, m.prefix+q.Symbol, data, m.ttl).Err()
}

// LoadAll returns every mirrored quote. Entries that expire or fail to decode
// mid-scan are skipped.
func (m *QuoteMirror) LoadAll(ctx context.Context) ([]quote.Quote, error) {
	var out []quote.Quote
	iter := m.client.Scan(ctx, 0, m.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		data, err := m.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", iter.Val(), err)
		}
		var q quote.Quote
		if err := json.Unmarshal(data, &q); err != nil {
			continue
		}
		out = append(out, q)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan quotes: %w", err)
	}
	return out, nil
}
