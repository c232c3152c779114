package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarkets struct {
	data map[string][]domain.PriceQuote
}

func (f *fakeMarkets) SnapshotAll() map[string][]domain.PriceQuote {
	return f.data
}

func TestListOpportunities(t *testing.T) {
	opps := memory.NewOpportunityStore(10)
	require.NoError(t, opps.Insert(context.Background(), domain.Opportunity{
		Pair:        "ETH/USDC",
		Fingerprint: "fp-1",
		DetectedAt:  time.Now(),
	}))

	h := NewQueryHandler(opps, memory.NewExecutionStore(10), &fakeMarkets{}, testLogger())
	rec := httptest.NewRecorder()
	h.ListOpportunities(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
		Count         int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Opportunities, 1)
	assert.Equal(t, "fp-1", body.Opportunities[0].Fingerprint)
}

func TestListTradesEmpty(t *testing.T) {
	h := NewQueryHandler(memory.NewOpportunityStore(10), memory.NewExecutionStore(10), &fakeMarkets{}, testLogger())
	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	// Empty result renders as an array, not null.
	assert.Contains(t, rec.Body.String(), `"trades":[]`)
}

func TestMarketData(t *testing.T) {
	markets := &fakeMarkets{data: map[string][]domain.PriceQuote{
		"ETH/USDC": {{Venue: "binance", Pair: "ETH/USDC", Bid: 100, Ask: 101}},
	}}
	h := NewQueryHandler(memory.NewOpportunityStore(10), memory.NewExecutionStore(10), markets, testLogger())
	rec := httptest.NewRecorder()
	h.MarketData(rec, httptest.NewRequest(http.MethodGet, "/api/market-data", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"binance"`)
}

type fakeToggler struct {
	auto bool
}

func (f *fakeToggler) AutoExecute() bool      { return f.auto }
func (f *fakeToggler) SetAutoExecute(on bool) { f.auto = on }

func TestUpdateConfigTogglesAutoExecute(t *testing.T) {
	toggler := &fakeToggler{auto: false}
	h := NewConfigHandler(toggler, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{"auto_execute":true}`))
	rec := httptest.NewRecorder()
	h.UpdateConfig(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, toggler.auto)
	assert.Contains(t, rec.Body.String(), `"auto_execute":true`)
}

func TestUpdateConfigRejectsMissingField(t *testing.T) {
	h := NewConfigHandler(&fakeToggler{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.UpdateConfig(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfigRejectsBadJSON(t *testing.T) {
	h := NewConfigHandler(&fakeToggler{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	h.UpdateConfig(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
