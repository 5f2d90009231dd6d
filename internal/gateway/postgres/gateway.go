package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// Settlement price sanity band, as a fraction of the item's base price.
const (
	priceBandLow  = 0.4
	priceBandHigh = 2.5
)

// Gateway implements domain.PersistenceGateway on a pgx pool.
type Gateway struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PersistenceGateway = (*Gateway)(nil)
	_ domain.FleetReader        = (*Gateway)(nil)
)

// NewGateway creates a Gateway backed by the given connection pool.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

const itemSelectCols = `id, name, category, base_price, production_modifier,
	current_price, supply, demand, volatility, last_updated`

func scanItemRows(rows pgx.Rows) ([]domain.MarketItem, error) {
	var items []domain.MarketItem
	for rows.Next() {
		var it domain.MarketItem
		if err := rows.Scan(
			&it.ID, &it.Name, &it.Category, &it.BasePrice, &it.ProductionModifier,
			&it.CurrentPrice, &it.Supply, &it.Demand, &it.Volatility, &it.LastUpdated,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListItems returns the persisted item book, optionally filtered by category.
func (g *Gateway) ListItems(ctx context.Context, category domain.ItemCategory) ([]domain.MarketItem, error) {
	query := `SELECT ` + itemSelectCols + ` FROM market_items`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan items: %w", err)
	}
	return items, nil
}

// WriteItems upserts the full item book in one batch.
func (g *Gateway) WriteItems(ctx context.Context, items []domain.MarketItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_items (
			id, name, category, base_price, production_modifier,
			current_price, supply, demand, volatility, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			supply        = EXCLUDED.supply,
			demand        = EXCLUDED.demand,
			volatility    = EXCLUDED.volatility,
			last_updated  = EXCLUDED.last_updated`

	for _, it := range items {
		batch.Queue(query,
			it.ID, it.Name, it.Category, it.BasePrice, it.ProductionModifier,
			it.CurrentPrice, it.Supply, it.Demand, it.Volatility, it.LastUpdated,
		)
	}

	br := g.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: write items batch item %d: %w", i, err)
		}
	}
	return nil
}

// SettleTrade durably records a trade at the intent's price. The price must
// fall within the sanity band relative to the item's base price; a price
// outside the band is rejected with domain.ErrPriceOutOfBand.
func (g *Gateway) SettleTrade(ctx context.Context, intent domain.TradeIntent) (domain.Transaction, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var basePrice float64
	err = tx.QueryRow(ctx,
		`SELECT base_price FROM market_items WHERE id = $1`, intent.ItemID,
	).Scan(&basePrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("postgres: settle trade %s: %w", intent.TransactionID, domain.ErrItemNotFound)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: settle trade %s: read item: %w", intent.TransactionID, err)
	}

	if intent.PricePerUnit < basePrice*priceBandLow || intent.PricePerUnit > basePrice*priceBandHigh {
		return domain.Transaction{}, fmt.Errorf(
			"postgres: settle trade %s: price %.2f outside band [%.2f, %.2f]: %w",
			intent.TransactionID, intent.PricePerUnit,
			basePrice*priceBandLow, basePrice*priceBandHigh,
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

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, item_id, kind, quantity, price_per_unit, total_price, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		settled.ID, settled.ItemID, settled.Kind, settled.Quantity,
		settled.PricePerUnit, settled.TotalPrice, settled.ActorID, settled.Timestamp,
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: settle trade %s: insert: %w", intent.TransactionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: settle trade %s: commit: %w", intent.TransactionID, err)
	}
	return settled, nil
}

// ReadRoutes returns routes, filtered to one owner when ownerID is non-empty.
func (g *Gateway) ReadRoutes(ctx context.Context, ownerID string) ([]domain.Route, error) {
	query := `SELECT id, owner_id, origin, destination, waypoints, segments,
		assigned_assets, is_active, estimated_hours, profitability, performance, updated_at
		FROM routes`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: read routes: %w", err)
	}
	defer rows.Close()

	var routes []domain.Route
	for rows.Next() {
		var (
			r                    domain.Route
			waypoints, segments  []byte
			assets, profit, perf []byte
		)
		if err := rows.Scan(
			&r.ID, &r.OwnerID, &r.Origin, &r.Destination, &waypoints, &segments,
			&assets, &r.Active, &r.EstimatedHours, &profit, &perf, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan route: %w", err)
		}
		if err := json.Unmarshal(waypoints, &r.Waypoints); err != nil {
			return nil, fmt.Errorf("postgres: route %s waypoints: %w", r.ID, err)
		}
		if err := json.Unmarshal(segments, &r.Segments); err != nil {
			return nil, fmt.Errorf("postgres: route %s segments: %w", r.ID, err)
		}
		if err := json.Unmarshal(assets, &r.AssignedAssetIDs); err != nil {
			return nil, fmt.Errorf("postgres: route %s assets: %w", r.ID, err)
		}
		if err := json.Unmarshal(profit, &r.Profitability); err != nil {
			return nil, fmt.Errorf("postgres: route %s profitability: %w", r.ID, err)
		}
		if err := json.Unmarshal(perf, &r.Performance); err != nil {
			return nil, fmt.Errorf("postgres: route %s performance: %w", r.ID, err)
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read routes: %w", err)
	}
	return routes, nil
}

// WriteRoute upserts one route.
func (g *Gateway) WriteRoute(ctx context.Context, route domain.Route) error {
	waypoints, err := json.Marshal(route.Waypoints)
	if err != nil {
		return fmt.Errorf("postgres: marshal route %s waypoints: %w", route.ID, err)
	}
	segments, err := json.Marshal(route.Segments)
	if err != nil {
		return fmt.Errorf("postgres: marshal route %s segments: %w", route.ID, err)
	}
	assets, err := json.Marshal(route.AssignedAssetIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal route %s assets: %w", route.ID, err)
	}
	profit, err := json.Marshal(route.Profitability)
	if err != nil {
		return fmt.Errorf("postgres: marshal route %s profitability: %w", route.ID, err)
	}
	perf, err := json.Marshal(route.Performance)
	if err != nil {
		return fmt.Errorf("postgres: marshal route %s performance: %w", route.ID, err)
	}

	_, err = g.pool.Exec(ctx, `
		INSERT INTO routes (
			id, owner_id, origin, destination, waypoints, segments,
			assigned_assets, is_active, estimated_hours, profitability, performance, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			owner_id        = EXCLUDED.owner_id,
			origin          = EXCLUDED.origin,
			destination     = EXCLUDED.destination,
			waypoints       = EXCLUDED.waypoints,
			segments        = EXCLUDED.segments,
			assigned_assets = EXCLUDED.assigned_assets,
			is_active       = EXCLUDED.is_active,
			estimated_hours = EXCLUDED.estimated_hours,
			profitability   = EXCLUDED.profitability,
			performance     = EXCLUDED.performance,
			updated_at      = NOW()`,
		route.ID, route.OwnerID, route.Origin, route.Destination, waypoints, segments,
		assets, route.Active, route.EstimatedHours, profit, perf,
	)
	if err != nil {
		return fmt.Errorf("postgres: write route %s: %w", route.ID, err)
	}
	return nil
}

// DeleteRoute removes a route. Deleting an unknown id is not an error.
func (g *Gateway) DeleteRoute(ctx context.Context, id string) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete route %s: %w", id, err)
	}
	return nil
}

// ListAssets returns transport assets, filtered to one owner when ownerID is
// non-empty. Assets with no route assignment come back with an empty RouteID.
func (g *Gateway) ListAssets(ctx context.Context, ownerID string) ([]domain.TransportAsset, error) {
	query := `SELECT id, definition_id, name, owner_id, COALESCE(route_id, ''),
		status, efficiency_level
		FROM transport_assets`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.TransportAsset
	for rows.Next() {
		var a domain.TransportAsset
		if err := rows.Scan(
			&a.ID, &a.DefinitionID, &a.Name, &a.OwnerID, &a.RouteID,
			&a.Status, &a.EfficiencyLevel,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	return assets, nil
}

// AdjustActorCash applies a signed delta to an actor's balance, creating the
// actor row on first touch.
func (g *Gateway) AdjustActorCash(ctx context.Context, actorID string, delta float64) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO actors (id, cash, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			cash       = actors.cash + EXCLUDED.cash,
			updated_at = NOW()`,
		actorID, delta,
	)
	if err != nil {
		return fmt.Errorf("postgres: adjust actor %s cash: %w", actorID, err)
	}
	return nil
}
