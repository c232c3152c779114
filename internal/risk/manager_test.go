package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avask/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func oppWithEdge(bps float64) domain.Opportunity {
	return domain.Opportunity{
		Pair:               "ETH/USDC",
		BuyVenue:           "v1",
		SellVenue:          "v2",
		EstimatedProfitBps: bps,
	}
}

func TestPreTradeCheckAcceptsSufficientEdge(t *testing.T) {
	m := NewManager(Limits{MaxTradeAmount: 1, MaxDailyLoss: 10, MaxTradeCount: 5}, testLogger())
	assert.NoError(t, m.PreTradeCheck(oppWithEdge(100)))
}

func TestPreTradeCheckRejectsThinEdge(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 10}, testLogger())
	err := m.PreTradeCheck(oppWithEdge(baseThresholdBps - 1))
	assert.ErrorIs(t, err, domain.ErrRiskRejected)
}

func TestPreTradeCheckEnforcesTradeCount(t *testing.T) {
	m := NewManager(Limits{MaxTradeCount: 2}, testLogger())
	m.RecordResult(true, 0.1)
	m.RecordResult(true, 0.1)

	err := m.PreTradeCheck(oppWithEdge(1000))
	assert.ErrorIs(t, err, domain.ErrRiskRejected)
}

func TestPreTradeCheckEnforcesDailyLoss(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 1}, testLogger())
	m.RecordResult(false, -1.5)

	err := m.PreTradeCheck(oppWithEdge(1000))
	assert.ErrorIs(t, err, domain.ErrRiskRejected)
}

func TestThresholdTightensInDrawdown(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 10}, testLogger())
	assert.InDelta(t, baseThresholdBps, m.MinThresholdBps(), 1e-9)

	// Half the daily loss consumed: threshold doubles.
	m.RecordResult(false, -5)
	assert.InDelta(t, baseThresholdBps*2, m.MinThresholdBps(), 1e-9)

	// Full drawdown caps at 3x.
	m.RecordResult(false, -20)
	assert.InDelta(t, baseThresholdBps*3, m.MinThresholdBps(), 1e-9)
}

func TestPositionSizeScalesDownInDrawdown(t *testing.T) {
	m := NewManager(Limits{MaxTradeAmount: 10, MaxDailyLoss: 10}, testLogger())

	require.InDelta(t, 5.0, m.PositionSize(5), 1e-9)

	m.RecordResult(false, -5)
	assert.InDelta(t, 2.5, m.PositionSize(5), 1e-9)

	// Never below the 10% floor.
	m.RecordResult(false, -100)
	assert.InDelta(t, 0.5, m.PositionSize(5), 1e-9)
}

func TestPositionSizeCapsAtMaxTradeAmount(t *testing.T) {
	m := NewManager(Limits{MaxTradeAmount: 2}, testLogger())
	assert.InDelta(t, 2.0, m.PositionSize(50), 1e-9)
}
