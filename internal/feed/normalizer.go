// Package feed ingests venue-specific price updates, normalizes them into
// canonical quotes, and pushes accepted quotes into the market state store.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/market"
)

// RawQuote is the minimal shape every venue message is reduced to before
// normalization. Venue clients are responsible for getting here from their
// own wire formats.
type RawQuote struct {
	Venue     string
	Pair      string
	Bid       float64
	Ask       float64
	Liquidity float64
	Timestamp time.Time
}

// DetectFunc runs opportunity detection for a pair. It is invoked inside the
// market store's per-pair critical section, immediately after the update is
// applied, so it observes a consistent snapshot.
type DetectFunc func(pair string, active []domain.PriceQuote)

// AcceptedFunc is invoked after an accepted quote has been applied and the
// pair lock released. Used for broadcasting and cache updates; it must not
// block the feed path for long.
type AcceptedFunc func(ctx context.Context, quote domain.PriceQuote)

// Normalizer validates raw venue messages and converts them into
// domain.PriceQuote records. Invalid or stale messages are logged and
// dropped; they never propagate to the caller.
type Normalizer struct {
	store        *market.Store
	detect       DetectFunc
	accepted     AcceptedFunc
	maxSpreadBps float64
	logger       *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time // venue|pair -> last accepted timestamp
}

// NewNormalizer creates a Normalizer. maxSpreadBps is the sanity bound above
// which a quote is treated as bad data rather than an opportunity.
func NewNormalizer(store *market.Store, maxSpreadBps float64, detect DetectFunc, accepted AcceptedFunc, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:        store,
		detect:       detect,
		accepted:     accepted,
		maxSpreadBps: maxSpreadBps,
		logger:       logger.With(slog.String("component", "normalizer")),
		last:         make(map[string]time.Time),
	}
}

// Ingest validates raw, and on success applies the resulting quote to the
// market store and triggers detection for its pair. Rejections are absorbed
// here: the error return exists for tests and is never raised to feed
// clients.
func (n *Normalizer) Ingest(ctx context.Context, raw RawQuote) error {
	if err := n.validate(raw); err != nil {
		n.logger.Debug("quote dropped",
			slog.String("venue", raw.Venue),
			slog.String("pair", raw.Pair),
			slog.String("reason", err.Error()),
		)
		return err
	}

	quote := domain.PriceQuote{
		Venue:         raw.Venue,
		Pair:          raw.Pair,
		Bid:           raw.Bid,
		Ask:           raw.Ask,
		BaseLiquidity: raw.Liquidity,
		ObservedAt:    raw.Timestamp,
	}

	n.store.Update(quote, func(active []domain.PriceQuote) {
		if n.detect != nil {
			n.detect(quote.Pair, active)
		}
	})

	if n.accepted != nil {
		n.accepted(ctx, quote)
	}
	return nil
}

// validate applies the boundary checks: positive prices, bid not above ask,
// spread within the sanity bound, and a strictly advancing timestamp per
// (venue, pair). The timestamp check makes a replayed identical message a
// no-op.
func (n *Normalizer) validate(raw RawQuote) error {
	if raw.Venue == "" || raw.Pair == "" {
		return domain.ErrBadQuote
	}
	if raw.Bid <= 0 || raw.Ask <= 0 || raw.Bid > raw.Ask {
		return domain.ErrBadQuote
	}
	if raw.Timestamp.IsZero() {
		return domain.ErrBadQuote
	}

	mid := (raw.Bid + raw.Ask) / 2
	if n.maxSpreadBps > 0 && (raw.Ask-raw.Bid)/mid*10000 > n.maxSpreadBps {
		return domain.ErrBadQuote
	}

	key := raw.Venue + "|" + raw.Pair
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.last[key]; ok && !raw.Timestamp.After(last) {
		return domain.ErrStaleQuote
	}
	n.last[key] = raw.Timestamp
	return nil
}
