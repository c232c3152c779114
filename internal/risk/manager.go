// Package risk enforces trading limits: per-trade notional caps, a daily
// loss cap, and a daily trade-count cap, plus a dynamic minimum-edge
// threshold that tightens while the book is in drawdown.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avask/arbot/internal/domain"
)

// baseThresholdBps is the resting minimum edge. The effective threshold
// rises toward 3x base as losses approach the daily cap.
const baseThresholdBps = 50.0

// Limits configures the manager.
type Limits struct {
	MaxTradeAmount float64
	MaxDailyLoss   float64
	MaxTradeCount  int
}

// Manager tracks daily trading activity against the configured limits. It
// is safe for concurrent use.
type Manager struct {
	limits Limits
	logger *slog.Logger

	mu       sync.Mutex
	dailyPnL float64
	tradeN   int
	resetAt  time.Time
}

// NewManager creates a Manager with counters that reset 24h from now.
func NewManager(limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		limits:  limits,
		logger:  logger.With(slog.String("component", "risk")),
		resetAt: time.Now().Add(24 * time.Hour),
	}
}

// PreTradeCheck rejects an opportunity when daily limits are exhausted or
// the opportunity's edge is below the current dynamic threshold.
func (m *Manager) PreTradeCheck(opp domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetLocked()

	if m.limits.MaxTradeCount > 0 && m.tradeN >= m.limits.MaxTradeCount {
		return fmt.Errorf("%w: daily trade count %d reached", domain.ErrRiskRejected, m.limits.MaxTradeCount)
	}
	if m.limits.MaxDailyLoss > 0 && m.dailyPnL <= -m.limits.MaxDailyLoss {
		return fmt.Errorf("%w: daily loss limit %.2f reached", domain.ErrRiskRejected, m.limits.MaxDailyLoss)
	}
	if threshold := m.minThresholdLocked(); opp.EstimatedProfitBps < threshold {
		return fmt.Errorf("%w: edge %.1f bps below dynamic threshold %.1f bps",
			domain.ErrRiskRejected, opp.EstimatedProfitBps, threshold)
	}
	return nil
}

// PositionSize caps the requested amount at the per-trade limit and scales
// it down (never below 10%) while in drawdown.
func (m *Manager) PositionSize(requested float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetLocked()

	amount := requested
	if m.dailyPnL < 0 && m.limits.MaxDailyLoss > 0 {
		lossRatio := -m.dailyPnL / m.limits.MaxDailyLoss
		factor := 1 - lossRatio
		if factor < 0.1 {
			factor = 0.1
		}
		amount = requested * factor
	}
	if m.limits.MaxTradeAmount > 0 && amount > m.limits.MaxTradeAmount {
		amount = m.limits.MaxTradeAmount
	}
	return amount
}

// MinThresholdBps returns the current dynamic minimum edge.
func (m *Manager) MinThresholdBps() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetLocked()
	return m.minThresholdLocked()
}

// RecordResult books a completed trade against the daily counters.
func (m *Manager) RecordResult(success bool, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetLocked()

	m.tradeN++
	m.dailyPnL += profit

	m.logger.Info("trade recorded",
		slog.Bool("success", success),
		slog.Float64("profit", profit),
		slog.Float64("daily_pnl", m.dailyPnL),
		slog.Int("trade_count", m.tradeN),
	)
}

// minThresholdLocked scales the base threshold by up to 3x as losses
// approach the daily cap. Caller holds m.mu.
func (m *Manager) minThresholdLocked() float64 {
	if m.dailyPnL >= 0 || m.limits.MaxDailyLoss <= 0 {
		return baseThresholdBps
	}
	lossRatio := -m.dailyPnL / m.limits.MaxDailyLoss
	if lossRatio > 1 {
		lossRatio = 1
	}
	return baseThresholdBps * (1 + 2*lossRatio)
}

// maybeResetLocked rolls the daily counters over. Caller holds m.mu.
func (m *Manager) maybeResetLocked() {
	now := time.Now()
	if now.Before(m.resetAt) {
		return
	}
	m.logger.Info("resetting daily risk counters")
	m.dailyPnL = 0
	m.tradeN = 0
	m.resetAt = now.Add(24 * time.Hour)
}
