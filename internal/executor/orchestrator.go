// Package executor sequences detected opportunities into settlement
// submissions. It enforces at most one in-flight execution per opportunity
// fingerprint, builds the two-leg trade payload, tracks each execution
// through its state machine, and resolves ambiguous submissions with
// bounded confirmation polling.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/settlement"
)

// RiskChecker validates opportunities against pre-trade risk limits and
// sizes the position. Implemented by the risk package.
type RiskChecker interface {
	PreTradeCheck(opp domain.Opportunity) error
	PositionSize(requested float64) float64
	RecordResult(success bool, profit float64)
}

// EmitFunc receives every execution state transition for persistence and
// broadcast. Must not block for long.
type EmitFunc func(exec domain.TradeExecution)

// Config holds the orchestrator's settlement parameters.
type Config struct {
	// Token is the settlement token identifier (address on chain, symbol
	// for the ledger engine).
	Token string
	// Routers maps venue names to router addresses.
	Routers map[string]string
	// AutoExecute gates submission; when false, opportunities are recorded
	// but never settled.
	AutoExecute bool
	QueueSize   int
	// SubmitTimeout bounds one ExecuteArbitrage call.
	SubmitTimeout time.Duration
	// ConfirmTimeout bounds polling for an ambiguous submission.
	ConfirmTimeout time.Duration
	// PollInterval is the delay between confirmation polls.
	PollInterval time.Duration
}

// record tracks the lifecycle of one fingerprint.
type record struct {
	exec       domain.TradeExecution
	opp        domain.Opportunity
	superseded bool
}

// Orchestrator is the execution engine. Submit is safe to call from the
// detection path: it never blocks and never performs I/O.
type Orchestrator struct {
	cfg     Config
	settler settlement.Settler
	risk    RiskChecker
	emit    EmitFunc
	logger  *slog.Logger

	queue chan string // fingerprints awaiting processing

	mu      sync.Mutex
	records map[string]*record
	auto    bool
}

// New creates an Orchestrator submitting through settler.
func New(cfg Config, settler settlement.Settler, risk RiskChecker, emit EmitFunc, logger *slog.Logger) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		cfg:     cfg,
		settler: settler,
		risk:    risk,
		emit:    emit,
		logger:  logger.With(slog.String("component", "orchestrator")),
		queue:   make(chan string, cfg.QueueSize),
		records: make(map[string]*record),
		auto:    cfg.AutoExecute,
	}
}

// SetAutoExecute toggles automated execution at runtime.
func (o *Orchestrator) SetAutoExecute(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.auto = enabled
}

// AutoExecute reports whether automated execution is enabled.
func (o *Orchestrator) AutoExecute() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.auto
}

// Submit accepts an opportunity for execution. It is a no-op returning
// false when a non-terminal execution already exists for the fingerprint:
// no two concurrent executions ever target the same detected divergence.
// A fresher detection for the same pair and venue direction supersedes any
// still-queued older fingerprint.
func (o *Orchestrator) Submit(opp domain.Opportunity) bool {
	o.mu.Lock()

	if !o.auto {
		o.mu.Unlock()
		return false
	}
	if rec, ok := o.records[opp.Fingerprint]; ok && !rec.exec.Status.Terminal() {
		o.mu.Unlock()
		return false
	}

	// Cancel queued (not yet submitted) work this detection supersedes.
	for fp, rec := range o.records {
		if fp == opp.Fingerprint || rec.exec.Status != domain.ExecQueued {
			continue
		}
		if rec.opp.Pair == opp.Pair && rec.opp.BuyVenue == opp.BuyVenue && rec.opp.SellVenue == opp.SellVenue {
			rec.superseded = true
		}
	}

	rec := &record{
		opp: opp,
		exec: domain.TradeExecution{
			ID:          uuid.New().String(),
			Fingerprint: opp.Fingerprint,
			Pair:        opp.Pair,
			BuyVenue:    opp.BuyVenue,
			SellVenue:   opp.SellVenue,
			Notional:    opp.Notional,
			Status:      domain.ExecQueued,
			StartedAt:   time.Now().UTC(),
		},
	}
	o.records[opp.Fingerprint] = rec

	select {
	case o.queue <- opp.Fingerprint:
	default:
		// Queue full: drop rather than block the detection path.
		delete(o.records, opp.Fingerprint)
		o.mu.Unlock()
		o.logger.Warn("submission queue full, dropping opportunity",
			slog.String("fingerprint", opp.Fingerprint),
		)
		return false
	}
	o.mu.Unlock()

	o.emitTransition(rec.exec)
	return true
}

// Status returns the execution state for a fingerprint.
func (o *Orchestrator) Status(fingerprint string) (domain.TradeExecution, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[fingerprint]
	if !ok {
		return domain.TradeExecution{}, false
	}
	return rec.exec, true
}

// Run processes queued submissions until ctx is cancelled. Distinct
// fingerprints settle concurrently; the per-fingerprint record is the unit
// of exclusion.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started")
	defer o.logger.Info("orchestrator stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fp := <-o.queue:
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.process(ctx, fp)
			}()
		}
	}
}

// process drives one fingerprint from queued to a terminal state.
func (o *Orchestrator) process(ctx context.Context, fingerprint string) {
	o.mu.Lock()
	rec, ok := o.records[fingerprint]
	if !ok || rec.exec.Status != domain.ExecQueued {
		o.mu.Unlock()
		return
	}
	if rec.superseded {
		o.finishLocked(rec, domain.ExecFailed, "", 0, "superseded by fresher detection")
		exec := rec.exec
		o.mu.Unlock()
		o.emitTransition(exec)
		return
	}
	if !o.auto {
		// Toggle flipped between enqueue and processing: drop silently.
		delete(o.records, fingerprint)
		o.mu.Unlock()
		return
	}
	opp := rec.opp
	o.mu.Unlock()

	log := o.logger.With(
		slog.String("fingerprint", fingerprint),
		slog.String("pair", opp.Pair),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
	)

	if o.risk != nil {
		if err := o.risk.PreTradeCheck(opp); err != nil {
			log.Warn("risk check rejected opportunity", slog.String("error", err.Error()))
			o.finish(rec, domain.ExecFailed, "", 0, err.Error())
			return
		}
	}

	trade := o.buildTrade(opp)
	o.transition(rec, domain.ExecSubmitted)
	log.Info("submitting settlement", slog.Float64("amount", trade.Amount()))

	submitCtx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	rcpt, err := o.settler.ExecuteArbitrage(submitCtx, trade)
	cancel()

	switch {
	case err == nil && !rcpt.Pending:
		o.confirmed(rec, rcpt, log)

	case err == nil && rcpt.Pending:
		o.awaitConfirmation(ctx, rec, rcpt.TxHash, log)

	case rcpt.Pending && rcpt.TxHash != "":
		// The send failed after the transaction was signed: it may still
		// have reached the network. Resolve by bounded polling; never
		// re-submit while the outcome is unknown.
		log.Warn("submission outcome ambiguous, polling for confirmation",
			slog.String("tx", rcpt.TxHash),
			slog.String("error", err.Error()),
		)
		o.awaitConfirmation(ctx, rec, rcpt.TxHash, log)

	case isRevert(err):
		log.Warn("settlement reverted", slog.String("reason", err.Error()))
		o.recordResult(false, 0)
		o.finish(rec, domain.ExecReverted, rcpt.TxHash, 0, err.Error())

	default:
		// Submission-layer failure before any transaction was signed:
		// there is no hash to poll, and re-submitting would risk double
		// execution.
		log.Error("settlement submission failed", slog.String("error", err.Error()))
		o.recordResult(false, 0)
		o.finish(rec, domain.ExecFailed, "", 0, err.Error())
	}
}

// awaitConfirmation polls for the outcome of an in-flight transaction. The
// settlement is never cancelled once submitted; polling is bounded and a
// timeout resolves to FAILED without re-submission.
func (o *Orchestrator) awaitConfirmation(ctx context.Context, rec *record, txHash string, log *slog.Logger) {
	confirmer, ok := o.settler.(settlement.Confirmer)
	if !ok {
		o.recordResult(false, 0)
		o.finish(rec, domain.ExecFailed, txHash, 0, "settler cannot confirm pending submissions")
		return
	}

	deadline := time.Now().Add(o.cfg.ConfirmTimeout)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown while in flight: resolve with one final poll using a
			// short grace context, then report what we know.
			graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			rcpt, done, err := confirmer.Confirm(graceCtx, txHash)
			cancel()
			if done && err == nil {
				o.confirmed(rec, rcpt, log)
				return
			}
			o.recordResult(false, 0)
			o.finish(rec, domain.ExecFailed, txHash, 0, domain.ErrSubmissionTimeout.Error())
			return

		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollInterval)
			rcpt, done, err := confirmer.Confirm(pollCtx, txHash)
			cancel()

			if done && err == nil {
				o.confirmed(rec, rcpt, log)
				return
			}
			if done {
				log.Warn("settlement reverted on chain", slog.String("reason", err.Error()))
				o.recordResult(false, 0)
				o.finish(rec, domain.ExecReverted, txHash, 0, err.Error())
				return
			}
			if time.Now().After(deadline) {
				log.Error("confirmation timed out", slog.String("tx", txHash))
				o.recordResult(false, 0)
				o.finish(rec, domain.ExecFailed, txHash, 0, domain.ErrSubmissionTimeout.Error())
				return
			}
		}
	}
}

func (o *Orchestrator) confirmed(rec *record, rcpt settlement.Receipt, log *slog.Logger) {
	log.Info("settlement confirmed",
		slog.String("tx", rcpt.TxHash),
		slog.Float64("realized_profit", rcpt.RealizedProfit),
	)
	o.recordResult(true, rcpt.RealizedProfit)
	o.finish(rec, domain.ExecConfirmed, rcpt.TxHash, rcpt.RealizedProfit, "")
}

// legInstruction is the per-leg payload understood by the venue routers.
type legInstruction struct {
	Pair  string  `json:"pair"`
	Side  string  `json:"side"`
	Price float64 `json:"price"`
}

// buildTrade assembles the two-leg payload for an opportunity, applying the
// risk manager's position sizing.
func (o *Orchestrator) buildTrade(opp domain.Opportunity) settlement.Trade {
	amount := opp.Notional
	if o.risk != nil {
		amount = o.risk.PositionSize(amount)
	}

	buyPayload, _ := json.Marshal(legInstruction{Pair: opp.Pair, Side: "buy", Price: opp.BuyPrice})
	sellPayload, _ := json.Marshal(legInstruction{Pair: opp.Pair, Side: "sell", Price: opp.SellPrice})

	return settlement.Trade{
		Token:        o.cfg.Token,
		BuyVenue:     opp.BuyVenue,
		SellVenue:    opp.SellVenue,
		BuyRouter:    o.cfg.Routers[opp.BuyVenue],
		SellRouter:   o.cfg.Routers[opp.SellVenue],
		BuyCalldata:  buyPayload,
		SellCalldata: sellPayload,
		AmountUnits:  int64(amount * 1e6),
	}
}

// transition applies a non-terminal status change and emits it.
func (o *Orchestrator) transition(rec *record, status domain.ExecStatus) {
	o.mu.Lock()
	rec.exec.Status = status
	exec := rec.exec
	o.mu.Unlock()
	o.emitTransition(exec)
}

// finish applies a terminal status change and emits it.
func (o *Orchestrator) finish(rec *record, status domain.ExecStatus, txHash string, profit float64, reason string) {
	o.mu.Lock()
	o.finishLocked(rec, status, txHash, profit, reason)
	exec := rec.exec
	o.mu.Unlock()
	o.emitTransition(exec)
}

func (o *Orchestrator) finishLocked(rec *record, status domain.ExecStatus, txHash string, profit float64, reason string) {
	now := time.Now().UTC()
	rec.exec.Status = status
	rec.exec.TxHash = txHash
	rec.exec.RealizedProfit = profit
	rec.exec.Error = reason
	rec.exec.CompletedAt = &now
}

func (o *Orchestrator) recordResult(success bool, profit float64) {
	if o.risk != nil {
		o.risk.RecordResult(success, profit)
	}
}

func (o *Orchestrator) emitTransition(exec domain.TradeExecution) {
	if o.emit != nil {
		o.emit(exec)
	}
}

// isRevert reports whether the settlement definitively rejected the trade
// with zero state change, as opposed to an ambiguous transport failure.
func isRevert(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrRouterNotApproved) ||
		errors.Is(err, domain.ErrLegFailed) ||
		errors.Is(err, domain.ErrProfitInvariant)
}
