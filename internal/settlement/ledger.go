package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/avask/arbot/internal/domain"
)

// Router executes one trade leg against a venue and returns the resulting
// change in the caller's balance of token. A negative delta is a spend, a
// positive delta is proceeds. An error fails the leg.
type Router interface {
	Execute(ctx context.Context, token string, calldata []byte, amount float64) (delta float64, err error)
}

// Ledger is the in-process settlement engine. It mirrors the on-chain
// contract's invariants: a single administrator identity fixed at
// construction, a router allow-list, atomic two-leg execution with a
// mandatory positive-profit check, and owner-only asset management.
//
// Atomicity is implemented as check-then-commit: both legs run against a
// shadow balance and nothing is written back unless both legs succeed and
// the profit invariant holds.
//
// Known limitation, preserved deliberately: the profit check compares only
// the traded token's balance, so gas or fees paid in a different asset are
// not counted against the trade.
type Ledger struct {
	owner string

	mu       sync.Mutex
	routers  map[string]Router
	approved map[string]bool
	balances map[string]float64
	events   []ArbitrageExecuted

	logger *slog.Logger
}

// NewLedger creates a Ledger administered by owner. The owner identity is
// fixed for the lifetime of the engine.
func NewLedger(owner string, logger *slog.Logger) *Ledger {
	return &Ledger{
		owner:    owner,
		routers:  make(map[string]Router),
		approved: make(map[string]bool),
		balances: make(map[string]float64),
		logger:   logger.With(slog.String("component", "ledger")),
	}
}

// RegisterRouter installs the adapter behind a router address. Registration
// alone does not approve the router for settlement.
func (l *Ledger) RegisterRouter(addr string, r Router) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routers[addr] = r
}

// SetRouterApproval flips a router's allow-list entry. Owner-only,
// idempotent.
func (l *Ledger) SetRouterApproval(caller, router string, approvedFlag bool) error {
	if caller != l.owner {
		return domain.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.approved[router] = approvedFlag
	return nil
}

// Deposit credits the engine's balance of token. Used to fund paper trading
// and tests.
func (l *Ledger) Deposit(token string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[token] += amount
}

// Balance returns the engine's current balance of token.
func (l *Ledger) Balance(token string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[token]
}

// Events returns a copy of all ArbitrageExecuted events emitted so far.
func (l *Ledger) Events() []ArbitrageExecuted {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ArbitrageExecuted, len(l.events))
	copy(out, l.events)
	return out
}

// Execute runs the two-leg settlement under the caller identity. Exposed
// separately from the Settler interface so tests and the asset-management
// path can exercise the capability check directly.
func (l *Ledger) Execute(ctx context.Context, caller string, trade Trade) (Receipt, error) {
	if caller != l.owner {
		return Receipt{}, domain.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Both routers must be allow-listed before any external call is made.
	if !l.approved[trade.BuyRouter] {
		return Receipt{}, fmt.Errorf("buy router %s: %w", trade.BuyRouter, domain.ErrRouterNotApproved)
	}
	if !l.approved[trade.SellRouter] {
		return Receipt{}, fmt.Errorf("sell router %s: %w", trade.SellRouter, domain.ErrRouterNotApproved)
	}
	buyRouter, ok := l.routers[trade.BuyRouter]
	if !ok {
		return Receipt{}, fmt.Errorf("buy router %s not registered: %w", trade.BuyRouter, domain.ErrRouterNotApproved)
	}
	sellRouter, ok := l.routers[trade.SellRouter]
	if !ok {
		return Receipt{}, fmt.Errorf("sell router %s not registered: %w", trade.SellRouter, domain.ErrRouterNotApproved)
	}

	initial := l.balances[trade.Token]
	shadow := initial

	// Buy leg, then sell leg, both against the shadow balance.
	delta, err := buyRouter.Execute(ctx, trade.Token, trade.BuyCalldata, trade.Amount())
	if err != nil {
		return Receipt{}, fmt.Errorf("buy leg on %s: %w: %v", trade.BuyVenue, domain.ErrLegFailed, err)
	}
	shadow += delta

	delta, err = sellRouter.Execute(ctx, trade.Token, trade.SellCalldata, trade.Amount())
	if err != nil {
		return Receipt{}, fmt.Errorf("sell leg on %s: %w: %v", trade.SellVenue, domain.ErrLegFailed, err)
	}
	shadow += delta

	// No settlement that does not strictly increase the token inventory is
	// ever finalized.
	if shadow <= initial {
		return Receipt{}, fmt.Errorf("final %.6f <= initial %.6f: %w", shadow, initial, domain.ErrProfitInvariant)
	}

	// Commit.
	l.balances[trade.Token] = shadow
	profit := shadow - initial
	txHash := "sim-" + uuid.New().String()
	l.events = append(l.events, ArbitrageExecuted{Token: trade.Token, Profit: profit, TxHash: txHash})

	l.logger.Info("settlement committed",
		slog.String("token", trade.Token),
		slog.Float64("profit", profit),
		slog.String("tx", txHash),
	)

	return Receipt{TxHash: txHash, RealizedProfit: profit}, nil
}

// WithdrawFunds debits amount of token toward to. Owner-only.
func (l *Ledger) WithdrawFunds(caller, token, to string, amount float64) (FundsWithdrawn, error) {
	if caller != l.owner {
		return FundsWithdrawn{}, domain.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 || l.balances[token] < amount {
		return FundsWithdrawn{}, fmt.Errorf("withdraw %f of %s: insufficient balance", amount, token)
	}
	l.balances[token] -= amount
	ev := FundsWithdrawn{Token: token, To: to, Amount: amount}
	l.logger.Info("funds withdrawn",
		slog.String("token", token),
		slog.String("to", to),
		slog.Float64("amount", amount),
	)
	return ev, nil
}

// ApproveToken records a spender allowance. Owner-only. The ledger engine
// tracks allowances for parity with the contract surface but does not
// enforce them on legs.
func (l *Ledger) ApproveToken(caller, token, spender string, amount float64) error {
	if caller != l.owner {
		return domain.ErrUnauthorized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Allowances keyed alongside balances; stored, not consumed.
	l.balances[allowanceKey(token, spender)] = amount
	return nil
}

func allowanceKey(token, spender string) string {
	return "allowance:" + token + ":" + spender
}

// LedgerSettler binds a caller identity to a Ledger so it satisfies the
// Settler interface used by the orchestrator.
type LedgerSettler struct {
	ledger *Ledger
	caller string
}

// NewLedgerSettler wraps ledger with the given caller identity.
func NewLedgerSettler(ledger *Ledger, caller string) *LedgerSettler {
	return &LedgerSettler{ledger: ledger, caller: caller}
}

// ExecuteArbitrage settles synchronously; the receipt is never pending.
func (s *LedgerSettler) ExecuteArbitrage(ctx context.Context, trade Trade) (Receipt, error) {
	return s.ledger.Execute(ctx, s.caller, trade)
}
