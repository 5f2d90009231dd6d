package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/trading"
)

// TradeHandler exposes buy/sell operations on the transaction coordinator.
type TradeHandler struct {
	coordinator *trading.Coordinator
	logger      *slog.Logger
}

// NewTradeHandler creates a TradeHandler backed by the given coordinator.
func NewTradeHandler(coordinator *trading.Coordinator, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		coordinator: coordinator,
		logger:      logHandler(logger, "trade"),
	}
}

// tradeRequest is the JSON body for buy and sell requests.
type tradeRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	ActorID  string `json:"actorId"`
}

type tradeOp func(ctx context.Context, itemID string, qty int, actorID string) (domain.Transaction, error)

// Buy executes a buy trade. The returned transaction is PENDING: the local
// market and treasury have been updated optimistically, and settlement
// completes in the background.
// POST /api/trade/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.coordinator.Buy)
}

// Sell executes a sell trade, mirroring Buy.
// POST /api/trade/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.coordinator.Sell)
}

func (h *TradeHandler) execute(w http.ResponseWriter, r *http.Request, op tradeOp) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req.ItemID = strings.TrimSpace(req.ItemID)
	req.ActorID = strings.TrimSpace(req.ActorID)
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actorId is required")
		return
	}

	tx, err := op(r.Context(), req.ItemID, req.Quantity, req.ActorID)
	if err != nil {
		h.logger.Warn("trade rejected",
			slog.String("item_id", req.ItemID),
			slog.String("actor_id", req.ActorID),
			slog.Int("quantity", req.Quantity),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, tx)
}

// ListTransactions returns the most recent transactions, newest first.
// GET /api/trade/transactions?limit=50
func (h *TradeHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)
	txs := h.coordinator.Transactions(limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
		"pending":      h.coordinator.PendingCount(),
	})
}
