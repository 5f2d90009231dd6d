package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// RouteHandler manages trade-route CRUD against the persistence gateway.
type RouteHandler struct {
	gateway domain.PersistenceGateway
	logger  *slog.Logger
}

// NewRouteHandler creates a RouteHandler backed by the given gateway.
func NewRouteHandler(gateway domain.PersistenceGateway, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{
		gateway: gateway,
		logger:  logHandler(logger, "routes"),
	}
}

// ListRoutes returns the stored trade routes, optionally filtered by owner.
// GET /api/routes?owner=player-1
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	routes, err := h.gateway.ReadRoutes(r.Context(), owner)
	if err != nil {
		h.logger.Error("read routes failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read routes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

// createRouteRequest is the JSON body for route creation.
type createRouteRequest struct {
	OwnerID          string                `json:"ownerId"`
	Origin           string                `json:"origin"`
	Destination      string                `json:"destination"`
	Waypoints        []string              `json:"waypoints"`
	Segments         []domain.RouteSegment `json:"segments"`
	AssignedAssetIDs []string              `json:"assignedAssetIds"`
	EstimatedHours   float64               `json:"estimatedTimeHours"`
}

// CreateRoute validates and persists a new trade route. New routes start
// active with zeroed performance counters.
// POST /api/routes
func (h *RouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)

	switch {
	case req.OwnerID == "":
		writeError(w, http.StatusBadRequest, "ownerId is required")
		return
	case req.Origin == "" || req.Destination == "":
		writeError(w, http.StatusBadRequest, "origin and destination are required")
		return
	case req.EstimatedHours <= 0:
		writeError(w, http.StatusBadRequest, "estimatedTimeHours must be positive")
		return
	case len(req.Segments) == 0:
		writeError(w, http.StatusBadRequest, "at least one segment is required")
		return
	}
	for i, seg := range req.Segments {
		if seg.From == "" || seg.To == "" || seg.DistanceNM <= 0 {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("segment %d must have from, to, and a positive distance", i))
			return
		}
	}

	route := domain.Route{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		Origin:           req.Origin,
		Destination:      req.Destination,
		Waypoints:        req.Waypoints,
		Segments:         req.Segments,
		AssignedAssetIDs: req.AssignedAssetIDs,
		Active:           true,
		EstimatedHours:   req.EstimatedHours,
		UpdatedAt:        time.Now().UTC(),
	}

	if err := h.gateway.WriteRoute(r.Context(), route); err != nil {
		h.logger.Error("write route failed",
			slog.String("route_id", route.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to store route")
		return
	}

	writeJSON(w, http.StatusCreated, route)
}

// DeleteRoute removes a route by ID. Deleting an unknown route succeeds.
// DELETE /api/routes/{id}
func (h *RouteHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.gateway.DeleteRoute(r.Context(), id); err != nil {
		h.logger.Error("delete route failed",
			slog.String("route_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to delete route")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
