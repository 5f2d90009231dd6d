// Package memory provides an in-process persistence gateway for simulate
// mode and tests. It honors the same contract as the postgres gateway,
// including the settlement price sanity band, but keeps everything in maps.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// Price sanity band, matching the durable gateway.
const (
	priceBandLow  = 0.4
	priceBandHigh = 2.5
)

// Gateway is an in-memory implementation of domain.PersistenceGateway and
// domain.FleetReader. Safe for concurrent use.
type Gateway struct {
	mu           sync.Mutex
	items        map[string]domain.MarketItem
	routes       map[string]domain.Route
	assets       map[string]domain.TransportAsset
	actors       map[string]float64
	transactions []domain.Transaction
}

var (
	_ domain.PersistenceGateway = (*Gateway)(nil)
	_ domain.FleetReader        = (*Gateway)(nil)
)

// NewGateway creates an empty in-memory gateway.
func NewGateway() *Gateway {
	return &Gateway{
		items:  make(map[string]domain.MarketItem),
		routes: make(map[string]domain.Route),
		assets: make(map[string]domain.TransportAsset),
		actors: make(map[string]float64),
	}
}

// SeedFleet loads the given assets, replacing any with the same ID.
func (g *Gateway) SeedFleet(assets []domain.TransportAsset) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range assets {
		g.assets[a.ID] = a
	}
}

// ListItems returns the stored item book, optionally filtered by category.
func (g *Gateway) ListItems(_ context.Context, category domain.ItemCategory) ([]domain.MarketItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var items []domain.MarketItem
	for _, it := range g.items {
		if category != "" && it.Category != category {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// WriteItems stores the full item book.
func (g *Gateway) WriteItems(_ context.Context, items []domain.MarketItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, it := range items {
		g.items[it.ID] = it
	}
	return nil
}

// SettleTrade records a trade, enforcing the same price band as the durable
// gateway so simulate mode exercises the rollback path identically.
func (g *Gateway) SettleTrade(_ context.Context, intent domain.TradeIntent) (domain.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	it, ok := g.items[intent.ItemID]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("memory: settle trade %s: %w", intent.TransactionID, domain.ErrItemNotFound)
	}

	if intent.PricePerUnit < it.BasePrice*priceBandLow || intent.PricePerUnit > it.BasePrice*priceBandHigh {
		return domain.Transaction{}, fmt.Errorf(
			"memory: settle trade %s: price %.2f outside band [%.2f, %.2f]: %w",
			intent.TransactionID, intent.PricePerUnit,
			it.BasePrice*priceBandLow, it.BasePrice*priceBandHigh,
			domain.ErrPriceOutOfBand,
		)
	}

	settled := domain.Transaction{
		ID:           intent.TransactionID,
		ItemID:       intent.ItemID,
		Kind:         intent.Kind,
		Quantity:     intent.Quantity,
		PricePerUnit: intent.PricePerUnit,
		TotalPrice:   intent.PricePerUnit * float64(intent.Quantity),
		ActorID:      intent.ActorID,
		Timestamp:    time.Now().UTC(),
		State:        domain.TxConfirmed,
	}
	g.transactions = append(g.transactions, settled)
	return settled, nil
}

// ReadRoutes returns routes, filtered to one owner when ownerID is non-empty.
func (g *Gateway) ReadRoutes(_ context.Context, ownerID string) ([]domain.Route, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var routes []domain.Route
	for _, r := range g.routes {
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes, nil
}

// WriteRoute stores one route.
func (g *Gateway) WriteRoute(_ context.Context, route domain.Route) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	route.UpdatedAt = time.Now().UTC()
	g.routes[route.ID] = route
	return nil
}

// DeleteRoute removes a route. Deleting an unknown id is not an error.
func (g *Gateway) DeleteRoute(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.routes, id)
	return nil
}

// ListAssets returns transport assets, filtered to one owner when ownerID is
// non-empty.
func (g *Gateway) ListAssets(_ context.Context, ownerID string) ([]domain.TransportAsset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var assets []domain.TransportAsset
	for _, a := range g.assets {
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

// AdjustActorCash applies a signed delta to an actor's balance.
func (g *Gateway) AdjustActorCash(_ context.Context, actorID string, delta float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actors[actorID] += delta
	return nil
}
