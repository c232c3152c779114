package domain

import "time"

// ExecStatus is the lifecycle state of a trade execution.
type ExecStatus string

const (
	ExecQueued    ExecStatus = "queued"    // accepted, waiting for a submission slot
	ExecSubmitted ExecStatus = "submitted" // settlement call in flight
	ExecConfirmed ExecStatus = "confirmed" // settled, profit realized
	ExecReverted  ExecStatus = "reverted"  // settlement rejected the trade
	ExecFailed    ExecStatus = "failed"    // submission lost or timed out
)

// Terminal reports whether the status ends the fingerprint's lifecycle.
func (s ExecStatus) Terminal() bool {
	switch s {
	case ExecConfirmed, ExecReverted, ExecFailed:
		return true
	}
	return false
}

// TradeExecution records one settlement attempt for a detected opportunity.
// It is owned by the orchestrator; status transitions are the only mutations
// and terminal records are immutable.
type TradeExecution struct {
	ID             string     `json:"id"`
	Fingerprint    string     `json:"opportunity_fingerprint"`
	Pair           string     `json:"pair"`
	BuyVenue       string     `json:"buy_venue"`
	SellVenue      string     `json:"sell_venue"`
	Notional       float64    `json:"notional"`
	Status         ExecStatus `json:"status"`
	TxHash         string     `json:"tx_hash,omitempty"`
	RealizedProfit float64    `json:"realized_profit"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
