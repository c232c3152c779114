package detector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avask/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func q(venue string, bid, ask float64) domain.PriceQuote {
	return domain.PriceQuote{
		Venue:      venue,
		Pair:       "ETH/USDC",
		Bid:        bid,
		Ask:        ask,
		ObservedAt: time.Now(),
	}
}

func collector() (*[]domain.Opportunity, EmitFunc) {
	var got []domain.Opportunity
	return &got, func(opp domain.Opportunity) { got = append(got, opp) }
}

func TestScanEmitsCrossVenueDivergence(t *testing.T) {
	got, emit := collector()
	d := New(Config{
		MinThresholdBps: 10,
		Notional:        1,
		GasEstimateUSD:  0.5,
	}, nil, emit, testLogger())

	d.Scan("ETH/USDC", []domain.PriceQuote{
		q("v1", 100, 101),
		q("v2", 103, 104),
	})

	require.Len(t, *got, 1)
	opp := (*got)[0]
	assert.Equal(t, "v1", opp.BuyVenue)
	assert.Equal(t, "v2", opp.SellVenue)
	assert.Equal(t, 101.0, opp.BuyPrice)
	assert.Equal(t, 103.0, opp.SellPrice)
	// gross 2.0 minus 0.5 gas on 1 notional.
	assert.InDelta(t, 1.5, opp.EstimatedProfit, 1e-9)
	assert.InDelta(t, 1.5/101.0*10000, opp.EstimatedProfitBps, 1e-6)
	assert.NotEmpty(t, opp.Fingerprint)
}

func TestScanChargesFees(t *testing.T) {
	got, emit := collector()
	fees := map[string]float64{"v1": 30, "v2": 30} // 30 bps each side
	d := New(Config{
		MinThresholdBps: 1,
		Notional:        1,
		GasEstimateUSD:  0.5,
	}, fees, emit, testLogger())

	d.Scan("ETH/USDC", []domain.PriceQuote{
		q("v1", 100, 101),
		q("v2", 103, 104),
	})

	require.Len(t, *got, 1)
	buyFee := 101.0 * 30 / 10000
	sellFee := 103.0 * 30 / 10000
	assert.InDelta(t, 2.0-buyFee-sellFee-0.5, (*got)[0].EstimatedProfit, 1e-9)
}

func TestScanHonorsThreshold(t *testing.T) {
	got, emit := collector()
	d := New(Config{
		MinThresholdBps: 500, // 5% edge required
		Notional:        1,
		GasEstimateUSD:  0.5,
	}, nil, emit, testLogger())

	d.Scan("ETH/USDC", []domain.PriceQuote{
		q("v1", 100, 101),
		q("v2", 103, 104),
	})

	assert.Empty(t, *got)
}

func TestScanIgnoresNonCrossedBooks(t *testing.T) {
	got, emit := collector()
	d := New(Config{MinThresholdBps: 1, Notional: 1}, nil, emit, testLogger())

	// Best bid everywhere is below best ask everywhere.
	d.Scan("ETH/USDC", []domain.PriceQuote{
		q("v1", 100, 101),
		q("v2", 100.5, 101.5),
	})

	assert.Empty(t, *got)
}

func TestScanRequiresTwoVenues(t *testing.T) {
	got, emit := collector()
	d := New(Config{MinThresholdBps: 1, Notional: 1}, nil, emit, testLogger())

	d.Scan("ETH/USDC", []domain.PriceQuote{q("v1", 100, 101)})

	assert.Empty(t, *got)
}

func TestScanTieBreaksLexicographically(t *testing.T) {
	got, emit := collector()
	d := New(Config{MinThresholdBps: 1, Notional: 1}, nil, emit, testLogger())

	// Four venues producing four candidates with identical profit.
	d.Scan("ETH/USDC", []domain.PriceQuote{
		q("a", 99, 100),
		q("b", 102, 103),
		q("c", 99, 100),
		q("d", 102, 103),
	})

	require.Len(t, *got, 1)
	assert.Equal(t, "a", (*got)[0].BuyVenue)
	assert.Equal(t, "b", (*got)[0].SellVenue)
}

func TestFingerprintStableWithinWindow(t *testing.T) {
	base := domain.Opportunity{
		Pair:       "ETH/USDC",
		BuyVenue:   "v1",
		SellVenue:  "v2",
		Notional:   1,
		DetectedAt: time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC),
		BuyPrice:   101,
		SellPrice:  103,
	}
	other := base
	other.DetectedAt = base.DetectedAt.Add(3 * time.Second) // same 10s bucket

	fp1 := Fingerprint(base, 0.01, 10*time.Second)
	fp2 := Fingerprint(other, 0.01, 10*time.Second)
	assert.Equal(t, fp1, fp2)

	// A different venue direction always changes the fingerprint.
	flipped := base
	flipped.BuyVenue, flipped.SellVenue = base.SellVenue, base.BuyVenue
	assert.NotEqual(t, fp1, Fingerprint(flipped, 0.01, 10*time.Second))

	// A later time bucket re-opens the lifecycle.
	later := base
	later.DetectedAt = base.DetectedAt.Add(30 * time.Second)
	assert.NotEqual(t, fp1, Fingerprint(later, 0.01, 10*time.Second))
}

func TestRepeatedScansShareFingerprint(t *testing.T) {
	got, emit := collector()
	d := New(Config{
		MinThresholdBps: 1,
		Notional:        1,
		DedupWindow:     time.Hour,
	}, nil, emit, testLogger())

	quotes := []domain.PriceQuote{
		q("v1", 100, 101),
		q("v2", 103, 104),
	}
	d.Scan("ETH/USDC", quotes)
	d.Scan("ETH/USDC", quotes)

	require.Len(t, *got, 2)
	assert.Equal(t, (*got)[0].Fingerprint, (*got)[1].Fingerprint)
}
