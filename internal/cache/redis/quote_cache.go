package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avask/arbot/internal/domain"
)

// quoteTTL expires display quotes that stop updating.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using one Redis hash per pair:
// key "quotes:{pair}", field per venue, JSON-encoded quote value.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(pair string) string {
	return "quotes:" + pair
}

// SetQuote stores the latest quote for the quote's (venue, pair).
func (qc *QuoteCache) SetQuote(ctx context.Context, quote domain.PriceQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("redis: marshal quote: %w", err)
	}
	key := quoteKey(quote.Pair)

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, quote.Venue, data)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", quote.Venue, quote.Pair, err)
	}
	return nil
}

// Quotes returns every cached quote for a pair.
func (qc *QuoteCache) Quotes(ctx context.Context, pair string) ([]domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(pair)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get quotes %s: %w", pair, err)
	}

	out := make([]domain.PriceQuote, 0, len(vals))
	for venue, raw := range vals {
		var q domain.PriceQuote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("redis: decode quote %s/%s: %w", venue, pair, err)
		}
		out = append(out, q)
	}
	return out, nil
}
