package handler

import (
	"log/slog"
	"net/http"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/revenue"
)

// CycleHandler exposes revenue-cycle control and inspection endpoints.
type CycleHandler struct {
	processor *revenue.Processor
	logger    *slog.Logger
}

// NewCycleHandler creates a CycleHandler driving the given processor.
func NewCycleHandler(processor *revenue.Processor, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{
		processor: processor,
		logger:    logHandler(logger, "cycle"),
	}
}

// RunCycle triggers an immediate revenue cycle. If a cycle is already in
// progress the request reports a conflict and no second cycle starts.
// POST /api/cycle/run
func (h *CycleHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	cycle, started := h.processor.RunCycle(r.Context())
	if !started {
		writeError(w, http.StatusConflict, "a revenue cycle is already in progress")
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

// GetStatus reports whether a cycle is running and when the next scheduled
// one is due.
// GET /api/cycle/status
func (h *CycleHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.processor.Status())
}

// GetHistory returns recent completed cycles, oldest first.
// GET /api/cycle/history?limit=20
func (h *CycleHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, domain.CycleHistoryLimit)
	cycles := h.processor.History(limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": cycles,
		"count":  len(cycles),
	})
}
