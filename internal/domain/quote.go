// Package domain defines the core types shared by every component of the
// arbitrage engine: price quotes, detected opportunities, trade executions,
// broadcast events, and the store/cache interfaces implemented by the
// infrastructure packages.
package domain

import "time"

// PriceQuote is the canonical, venue-agnostic form of a single price
// observation. Quotes are immutable; a newer quote for the same (venue, pair)
// supersedes the previous one, it never mutates it.
type PriceQuote struct {
	Venue         string    `json:"venue"`
	Pair          string    `json:"pair"`
	Bid           float64   `json:"bid_price"`
	Ask           float64   `json:"ask_price"`
	BaseLiquidity float64   `json:"base_liquidity"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Mid returns the quote midpoint.
func (q PriceQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// SpreadBps returns the bid-ask spread in basis points of the midpoint.
// Returns 0 when the midpoint is not positive.
func (q PriceQuote) SpreadBps() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 10000
}

// Age reports how old the quote is relative to now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}
