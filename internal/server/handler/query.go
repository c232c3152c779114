package handler

import (
	"log/slog"
	"net/http"

	"github.com/avask/arbot/internal/domain"
)

// MarketReader provides a read-only view of the current market state.
type MarketReader interface {
	SnapshotAll() map[string][]domain.PriceQuote
}

// QueryHandler serves the read-only API endpoints over the stores and the
// market state.
type QueryHandler struct {
	opps    domain.OpportunityStore
	execs   domain.ExecutionStore
	markets MarketReader
	logger  *slog.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(opps domain.OpportunityStore, execs domain.ExecutionStore, markets MarketReader, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		opps:    opps,
		execs:   execs,
		markets: markets,
		logger:  logger.With(slog.String("handler", "query")),
	}
}

// ListOpportunities returns recently detected opportunities, newest first.
// GET /api/opportunities?limit=N
func (h *QueryHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := h.opps.Recent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

// ListTrades returns recent trade executions, newest first.
// GET /api/trades?limit=N
func (h *QueryHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	execs, err := h.execs.Recent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if execs == nil {
		execs = []domain.TradeExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": execs,
		"count":  len(execs),
	})
}

// MarketData returns the latest quote per venue for every tracked pair,
// including quotes past the staleness window.
// GET /api/market-data
func (h *QueryHandler) MarketData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": h.markets.SnapshotAll(),
	})
}
