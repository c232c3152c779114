// Package detector scans market state for cross-venue price divergences and
// emits fee- and gas-adjusted arbitrage opportunities.
package detector

import (
	"log/slog"
	"sort"
	"time"

	"github.com/avask/arbot/internal/domain"
)

// Config holds detection thresholds and cost estimates.
type Config struct {
	// MinThresholdBps is the minimum net edge, in basis points of the buy
	// cost, for an opportunity to be emitted.
	MinThresholdBps float64
	// Notional is the base amount priced into every candidate.
	Notional float64
	// GasEstimateUSD is the flat settlement gas cost charged per candidate.
	GasEstimateUSD float64
	// PriceBucket is the spread bucket width used in fingerprints.
	PriceBucket float64
	// DedupWindow is the fingerprint time-bucket width.
	DedupWindow time.Duration
}

// EmitFunc receives the single winning opportunity of a scan. It is called
// inside the market store's per-pair critical section and must not block.
type EmitFunc func(opp domain.Opportunity)

// Detector evaluates every ordered venue pair among a pair's active quotes.
type Detector struct {
	cfg    Config
	feeBps map[string]float64 // venue -> taker fee in bps
	emit   EmitFunc
	logger *slog.Logger
}

// New creates a Detector. feeBps maps venue names to taker fees; venues
// missing from the map are treated as fee-free.
func New(cfg Config, feeBps map[string]float64, emit EmitFunc, logger *slog.Logger) *Detector {
	if cfg.PriceBucket <= 0 {
		cfg.PriceBucket = 0.01
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Second
	}
	fees := make(map[string]float64, len(feeBps))
	for k, v := range feeBps {
		fees[k] = v
	}
	return &Detector{
		cfg:    cfg,
		feeBps: fees,
		emit:   emit,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Scan runs one detection pass over the active quotes of a single pair and
// emits at most one opportunity: the candidate with the highest estimated
// profit, ties broken by lexicographic (buy venue, sell venue) ordering.
func (d *Detector) Scan(pair string, active []domain.PriceQuote) {
	if len(active) < 2 {
		return
	}

	// Deterministic iteration order regardless of map traversal upstream.
	quotes := make([]domain.PriceQuote, len(active))
	copy(quotes, active)
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Venue < quotes[j].Venue })

	var best *domain.Opportunity
	now := time.Now().UTC()

	for _, buy := range quotes {
		for _, sell := range quotes {
			if buy.Venue == sell.Venue {
				continue
			}
			cand, ok := d.evaluate(pair, buy, sell, now)
			if !ok {
				continue
			}
			if best == nil || cand.EstimatedProfit > best.EstimatedProfit {
				c := cand
				best = &c
			}
			// Equal profit keeps the earlier (lexicographically smaller)
			// candidate because of the sorted scan order.
		}
	}

	if best == nil {
		return
	}

	d.logger.Info("opportunity detected",
		slog.String("pair", best.Pair),
		slog.String("buy_venue", best.BuyVenue),
		slog.String("sell_venue", best.SellVenue),
		slog.Float64("est_profit", best.EstimatedProfit),
		slog.Float64("est_profit_bps", best.EstimatedProfitBps),
		slog.String("fingerprint", best.Fingerprint),
	)
	d.emit(*best)
}

// evaluate prices one ordered (buy, sell) venue pair. The buy leg fills at
// the buy venue's ask, the sell leg at the sell venue's bid.
func (d *Detector) evaluate(pair string, buy, sell domain.PriceQuote, now time.Time) (domain.Opportunity, bool) {
	gross := sell.Bid - buy.Ask
	if gross <= 0 {
		return domain.Opportunity{}, false
	}

	notional := d.cfg.Notional
	buyFee := buy.Ask * notional * d.feeBps[buy.Venue] / 10000
	sellFee := sell.Bid * notional * d.feeBps[sell.Venue] / 10000
	net := gross*notional - buyFee - sellFee - d.cfg.GasEstimateUSD
	if net <= 0 {
		return domain.Opportunity{}, false
	}

	cost := buy.Ask * notional
	netBps := net / cost * 10000
	if netBps < d.cfg.MinThresholdBps {
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		Pair:               pair,
		BuyVenue:           buy.Venue,
		SellVenue:          sell.Venue,
		BuyPrice:           buy.Ask,
		SellPrice:          sell.Bid,
		Notional:           notional,
		EstimatedProfit:    net,
		EstimatedProfitBps: netBps,
		DetectedAt:         now,
	}
	opp.Fingerprint = Fingerprint(opp, d.cfg.PriceBucket, d.cfg.DedupWindow)
	return opp, true
}
