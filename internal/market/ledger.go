// Package market owns the book of tradable items and their supply, demand,
// and price state. The ledger is the single writer for item state; trades
// go through ApplyTrade and periodic cycle updates recompute prices.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/pricing"
)

// Config holds the tunables for cycle updates and trade application.
type Config struct {
	// SupplyGrowthRate is the fractional supply growth per cycle.
	SupplyGrowthRate float64

	// DemandVolatility bounds the random demand perturbation per cycle.
	DemandVolatility float64

	// DemandShift couples trade quantity to demand movement: a buy of qty
	// raises demand by qty x DemandShift, a sell lowers it.
	DemandShift float64
}

// Ledger is the in-memory market book. Items are held in insertion order so
// listings and persisted writes are stable across runs.
type Ledger struct {
	mu      sync.Mutex
	items   map[string]*domain.MarketItem
	order   []string
	rng     pricing.Source
	gateway domain.PersistenceGateway
	bus     domain.EventBus
	logger  *slog.Logger
	cfg     Config
}

// NewLedger builds a ledger from the initial item definitions. The gateway
// is used for best-effort durability of cycle updates; it may be nil in
// simulate mode. Item order follows the order of defs.
func NewLedger(
	cfg Config,
	defs []domain.MarketItem,
	rng pricing.Source,
	gateway domain.PersistenceGateway,
	bus domain.EventBus,
	logger *slog.Logger,
) *Ledger {
	l := &Ledger{
		items:   make(map[string]*domain.MarketItem, len(defs)),
		order:   make([]string, 0, len(defs)),
		rng:     rng,
		gateway: gateway,
		bus:     bus,
		logger:  logger.With(slog.String("component", "market")),
		cfg:     cfg,
	}
	for _, def := range defs {
		item := def
		if item.CurrentPrice == 0 {
			item.CurrentPrice = item.CostBasis()
		}
		l.items[item.ID] = &item
		l.order = append(l.order, item.ID)
	}
	return l
}

// UpdateCycle advances the whole book by one market tick: supply grows,
// demand drifts, prices are recomputed, and a price point is appended per
// item. The refreshed book is then written to the gateway; a write failure
// is logged and tolerated, keeping the locally computed values: price
// continuity for readers outranks durability of a single tick.
func (l *Ledger) UpdateCycle(ctx context.Context) {
	now := time.Now().UTC()

	l.mu.Lock()
	var changes []domain.Event
	snapshot := make([]domain.MarketItem, 0, len(l.order))

	for _, id := range l.order {
		item := l.items[id]

		item.Supply *= 1 + l.cfg.SupplyGrowthRate
		item.Demand *= 1 + (l.rng.Float64()-0.5)*2*l.cfg.DemandVolatility
		if item.Demand < 0 {
			item.Demand = 0
		}

		oldPrice := item.CurrentPrice
		item.CurrentPrice = pricing.Price(
			item.BasePrice, item.ProductionModifier,
			item.Supply, item.Demand, item.Volatility,
			l.rng,
		)
		item.LastUpdated = now

		item.History = append(item.History, domain.PricePoint{
			Timestamp: now,
			Price:     item.CurrentPrice,
			Volume:    item.Demand,
		})
		if len(item.History) > domain.PriceHistoryLimit {
			item.History = item.History[len(item.History)-domain.PriceHistoryLimit:]
		}

		if item.CurrentPrice != oldPrice {
			changes = append(changes, &domain.PriceChanged{
				ItemID:   item.ID,
				OldPrice: oldPrice,
				NewPrice: item.CurrentPrice,
			})
		}
		snapshot = append(snapshot, l.copyItem(item))
	}
	l.mu.Unlock()

	if l.gateway != nil {
		if err := l.gateway.WriteItems(ctx, snapshot); err != nil {
			l.logger.WarnContext(ctx, "cycle write failed, keeping local state",
				slog.String("error", err.Error()),
			)
		}
	}

	for _, evt := range changes {
		if err := l.bus.Publish(ctx, evt); err != nil {
			l.logger.WarnContext(ctx, "publish price change failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// PriceOf returns the current price of an item.
func (l *Ledger) PriceOf(id string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return 0, fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}
	return item.CurrentPrice, nil
}

// Item returns a copy of an item without its price history.
func (l *Ledger) Item(id string) (domain.MarketItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return domain.MarketItem{}, fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}
	cp := *item
	cp.History = nil
	return cp, nil
}

// Items returns copies of all items in insertion order, without histories.
func (l *Ledger) Items() []domain.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.MarketItem, 0, len(l.order))
	for _, id := range l.order {
		cp := *l.items[id]
		cp.History = nil
		out = append(out, cp)
	}
	return out
}

// History returns a copy of an item's bounded price history.
func (l *Ledger) History(id string) ([]domain.PricePoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return nil, fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}
	out := make([]domain.PricePoint, len(item.History))
	copy(out, item.History)
	return out, nil
}

// ApplyTrade adjusts supply and demand for a trade. A buy consumes supply
// and signals demand; a sell is the inverse. Price is deliberately not
// recomputed here; it moves at the next cycle, so a burst of trades does
// not thrash the price.
func (l *Ledger) ApplyTrade(id string, qty int, kind domain.TradeKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}
	l.applyTrade(item, qty, kind)
	return nil
}

// applyTrade mutates one item for a trade. Callers must hold l.mu.
func (l *Ledger) applyTrade(item *domain.MarketItem, qty int, kind domain.TradeKind) {
	q := float64(qty)
	switch kind {
	case domain.TradeBuy:
		item.Supply -= q
		item.Demand += q * l.cfg.DemandShift
	case domain.TradeSell:
		item.Supply += q
		item.Demand -= q * l.cfg.DemandShift
	}
	if item.Supply < 0 {
		item.Supply = 0
	}
	if item.Demand < 0 {
		item.Demand = 0
	}
}

// Reserve runs check against the item's current state and, if it passes,
// snapshots and applies the trade without releasing the ledger mutex in
// between. Two concurrent trades on one item therefore validate against
// each other's applied state, never against a shared stale read. The
// returned item is the pre-mutation copy the trade prices against.
func (l *Ledger) Reserve(id string, qty int, kind domain.TradeKind, check func(item domain.MarketItem) error) (Snapshot, domain.MarketItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return Snapshot{}, domain.MarketItem{}, fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}

	seen := l.copyItem(item)
	if check != nil {
		if err := check(seen); err != nil {
			return Snapshot{}, domain.MarketItem{}, err
		}
	}

	l.applyTrade(item, qty, kind)
	return Snapshot{item: seen}, seen, nil
}

// Condition derives the overall market condition from the mean
// demand/supply ratio across the book.
func (l *Ledger) Condition() domain.MarketCondition {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.order) == 0 {
		return domain.ConditionNormal
	}

	var sum float64
	for _, id := range l.order {
		item := l.items[id]
		if item.Supply > 0 {
			sum += item.Demand / item.Supply
		} else {
			sum += 2.0
		}
	}
	mean := sum / float64(len(l.order))

	switch {
	case mean >= 1.5:
		return domain.ConditionBoom
	case mean >= 0.7:
		return domain.ConditionNormal
	case mean >= 0.4:
		return domain.ConditionRecession
	default:
		return domain.ConditionCrisis
	}
}

// Snapshot captures the full pre-mutation state of one item, including its
// history, so a failed settlement can restore it byte for byte.
type Snapshot struct {
	item domain.MarketItem
}

// Snapshot returns a deep copy of the item's current state.
func (l *Ledger) Snapshot(id string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("market: %s: %w", id, domain.ErrItemNotFound)
	}
	return Snapshot{item: l.copyItem(item)}, nil
}

// Restore puts the snapshotted item state back exactly as captured.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[snap.item.ID]
	if !ok {
		return
	}
	*item = snap.item
}

// copyItem deep-copies an item including its history slice. Callers must
// hold l.mu.
func (l *Ledger) copyItem(item *domain.MarketItem) domain.MarketItem {
	cp := *item
	cp.History = make([]domain.PricePoint, len(item.History))
	copy(cp.History, item.History)
	return cp
}
