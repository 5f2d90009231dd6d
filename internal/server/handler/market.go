package handler

import (
	"log/slog"
	"net/http"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/market"
)

// MarketHandler exposes the in-memory market ledger over HTTP.
type MarketHandler struct {
	ledger *market.Ledger
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler backed by the given ledger.
func NewMarketHandler(ledger *market.Ledger, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		ledger: ledger,
		logger: logHandler(logger, "market"),
	}
}

// ListItems returns all market items, optionally filtered by category.
// GET /api/market/items?category=luxury
func (h *MarketHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items := h.ledger.Items()

	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := items[:0]
		for _, it := range items {
			if it.Category == domain.ItemCategory(cat) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// GetItem returns a single market item by ID.
// GET /api/market/items/{id}
func (h *MarketHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	item, err := h.ledger.Item(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetHistory returns the recorded price history for an item, most recent
// entries last.
// GET /api/market/items/{id}/history?limit=50
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	history, err := h.ledger.History(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	limit := parseLimit(r, len(history), domain.PriceHistoryLimit)
	if limit < len(history) {
		history = history[len(history)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"itemId":  id,
		"history": history,
		"count":   len(history),
	})
}

// GetCondition returns the aggregate market condition derived from current
// supply and demand across all items.
// GET /api/market/condition
func (h *MarketHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"condition": h.ledger.Condition(),
	})
}
