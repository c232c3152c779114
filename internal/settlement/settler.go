// Package settlement executes the atomic two-leg arbitrage trade. Two
// implementations exist: Ledger, an in-process engine with transactional
// check-then-commit semantics used for paper trading and tests, and
// EVMSettler, which submits to the deployed settlement contract.
package settlement

import "context"

// amountScale is the fixed-point scale for trade amounts (1e6 units per
// whole token, matching 6-decimal settlement tokens).
const amountScale = 1e6

// Trade is the two-leg payload built by the orchestrator: buy on one
// router, sell on another, same token, single amount.
type Trade struct {
	Token        string
	BuyVenue     string
	SellVenue    string
	BuyRouter    string
	SellRouter   string
	BuyCalldata  []byte
	SellCalldata []byte
	// AmountUnits is the trade amount in 1e6 fixed-point units.
	AmountUnits int64
}

// Amount returns the display amount from fixed-point units.
func (t Trade) Amount() float64 {
	return float64(t.AmountUnits) / amountScale
}

// Receipt is the outcome of a settlement call.
type Receipt struct {
	TxHash         string
	RealizedProfit float64
	// Pending is true when the submission was accepted but the outcome is
	// not yet known; the caller must poll Confirm.
	Pending bool
}

// Settler submits an arbitrage trade for atomic settlement. A revert-class
// error (ErrUnauthorized, ErrRouterNotApproved, ErrLegFailed,
// ErrProfitInvariant) means the trade was definitively rejected with zero
// state change. Any other error leaves the outcome ambiguous; when the
// trade was signed before the failure, the receipt comes back Pending with
// the transaction hash so the caller can poll Confirm.
type Settler interface {
	ExecuteArbitrage(ctx context.Context, trade Trade) (Receipt, error)
}

// Confirmer resolves a pending submission. ok is false while the outcome is
// still unknown.
type Confirmer interface {
	Confirm(ctx context.Context, txHash string) (rcpt Receipt, ok bool, err error)
}

// ArbitrageExecuted is emitted once per successful settlement.
type ArbitrageExecuted struct {
	Token  string
	Profit float64
	TxHash string
}

// FundsWithdrawn is emitted by the asset-management path.
type FundsWithdrawn struct {
	Token  string
	To     string
	Amount float64
}
