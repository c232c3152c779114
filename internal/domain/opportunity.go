package domain

import "time"

// Opportunity is one detected cross-venue price divergence: buy on BuyVenue
// at its ask, sell on SellVenue at its bid. Opportunities are read-only once
// created; a fresher detection of the same divergence carries the same
// fingerprint and supersedes it.
type Opportunity struct {
	Pair               string    `json:"pair"`
	BuyVenue           string    `json:"buy_venue"`
	SellVenue          string    `json:"sell_venue"`
	BuyPrice           float64   `json:"buy_price"`
	SellPrice          float64   `json:"sell_price"`
	Notional           float64   `json:"notional"`
	EstimatedProfit    float64   `json:"estimated_profit"`
	EstimatedProfitBps float64   `json:"estimated_profit_bps"`
	DetectedAt         time.Time `json:"detected_at"`
	Fingerprint        string    `json:"fingerprint"`
}

// GrossSpread returns the raw per-unit edge before fees and gas.
func (o Opportunity) GrossSpread() float64 {
	return o.SellPrice - o.BuyPrice
}
