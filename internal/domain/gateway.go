package domain

import "context"

// PersistenceGateway is the call contract of the durable storage
// collaborator. The economy core treats it as a remote, partially-unreliable
// service: every call may fail, and failures are handled per-operation
// (rollback for trades, tolerate-and-continue for cycle writes).
type PersistenceGateway interface {
	// ListItems returns the persisted market items, optionally filtered by
	// category (empty string means all).
	ListItems(ctx context.Context, category ItemCategory) ([]MarketItem, error)

	// WriteItems persists the full item book. Used by best-effort cycle
	// updates; a failure does not roll back local price state.
	WriteItems(ctx context.Context, items []MarketItem) error

	// SettleTrade durably records a trade at the intent's price. The gateway
	// may enforce a price sanity band (40%-250% of base price); a band
	// rejection is an ordinary settlement failure.
	SettleTrade(ctx context.Context, intent TradeIntent) (Transaction, error)

	// ReadRoutes returns the routes owned by the given actor (empty owner
	// means all routes).
	ReadRoutes(ctx context.Context, ownerID string) ([]Route, error)
	WriteRoute(ctx context.Context, route Route) error
	DeleteRoute(ctx context.Context, id string) error

	// AdjustActorCash applies a signed cash delta to an actor's balance.
	AdjustActorCash(ctx context.Context, actorID string, delta float64) error
}

// RouteReader is the narrow read-model the revenue processor needs.
type RouteReader interface {
	ReadRoutes(ctx context.Context, ownerID string) ([]Route, error)
}

// FleetReader provides the transport assets assigned to routes. The fleet
// itself is managed outside this core.
type FleetReader interface {
	ListAssets(ctx context.Context, ownerID string) ([]TransportAsset, error)
}
