// Package revenue reconciles route and fleet activity over elapsed time
// into revenue and expense records, nets them into a cycle summary, and
// posts the aggregates to the financial ledger.
package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// ConditionSource supplies the current market condition. Implemented by the
// market ledger.
type ConditionSource interface {
	Condition() domain.MarketCondition
}

// FinanceSink receives the cycle's aggregate income and expense postings.
// Implemented by the financial ledger.
type FinanceSink interface {
	Record(t domain.RecordType, category string, amount float64)
}

// RouteWriter persists updated route performance counters, best effort.
type RouteWriter interface {
	WriteRoute(ctx context.Context, route domain.Route) error
}

// Config holds the processor tunables.
type Config struct {
	// Interval between automatic cycles.
	Interval time.Duration

	// CompetitionPressure is the fraction of revenue lost to competing
	// shippers, applied as the final modifier (1 - pressure).
	CompetitionPressure float64

	// OwnerID restricts processing to one player's routes; empty means all.
	OwnerID string
}

// Status is a read-model of the processor state.
type Status struct {
	Processing        bool      `json:"processing"`
	LastProcessedTime time.Time `json:"lastProcessedTime"`
	NextCycleTime     time.Time `json:"nextCycleTime"`
	CyclesCompleted   int       `json:"cyclesCompleted"`
}

// Processor runs revenue cycles. At most one cycle is PROCESSING at a time;
// a start request while one is running is a silent no-op. Cycles always run
// to completion once started.
type Processor struct {
	cfg       Config
	routes    domain.RouteReader
	routeSink RouteWriter
	fleet     domain.FleetReader
	costs     map[string]domain.OperatingCost
	condition ConditionSource
	finance   FinanceSink
	bus       domain.EventBus
	archiver  domain.CycleArchiver
	logger    *slog.Logger

	now func() time.Time

	mu            sync.Mutex
	processing    bool
	lastProcessed time.Time
	nextCycle     time.Time
	history       []domain.RevenueCycle
}

// NewProcessor creates a Processor. archiver may be nil; routeSink may be
// nil when route persistence is unavailable.
func NewProcessor(
	cfg Config,
	routes domain.RouteReader,
	routeSink RouteWriter,
	fleet domain.FleetReader,
	costs []domain.OperatingCost,
	condition ConditionSource,
	finance FinanceSink,
	bus domain.EventBus,
	archiver domain.CycleArchiver,
	logger *slog.Logger,
) *Processor {
	costIndex := make(map[string]domain.OperatingCost, len(costs))
	for _, c := range costs {
		costIndex[c.DefinitionID] = c
	}
	return &Processor{
		cfg:           cfg,
		routes:        routes,
		routeSink:     routeSink,
		fleet:         fleet,
		costs:         costIndex,
		condition:     condition,
		finance:       finance,
		bus:           bus,
		archiver:      archiver,
		logger:        logger.With(slog.String("component", "revenue")),
		now:           func() time.Time { return time.Now().UTC() },
		lastProcessed: time.Now().UTC(),
	}
}

// Run drives periodic cycles until the context is cancelled. Ticks are best
// effort: a suspended process skips ticks rather than catching up, and the
// next completed cycle naturally covers the whole gap since lastProcessed.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "revenue processor started",
		slog.Duration("interval", p.cfg.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle runs one cycle over [lastProcessedTime, now]. It returns the
// completed cycle and true, or a zero cycle and false when a cycle was
// already processing or the route read-model was unavailable.
func (p *Processor) RunCycle(ctx context.Context) (domain.RevenueCycle, bool) {
	p.mu.Lock()
	if p.processing {
		// Reentrant trigger; not an error.
		p.mu.Unlock()
		return domain.RevenueCycle{}, false
	}
	p.processing = true
	start := p.lastProcessed
	p.mu.Unlock()

	end := p.now()
	cycle := domain.RevenueCycle{
		ID:        uuid.New().String(),
		StartTime: start,
		EndTime:   end,
		Status:    domain.CycleStatusProcessing,
	}

	routes, err := p.routes.ReadRoutes(ctx, p.cfg.OwnerID)
	if err != nil {
		p.logger.ErrorContext(ctx, "route read failed, cycle aborted",
			slog.String("error", err.Error()),
		)
		p.mu.Lock()
		p.processing = false
		p.mu.Unlock()
		return domain.RevenueCycle{}, false
	}

	assets, err := p.fleet.ListAssets(ctx, p.cfg.OwnerID)
	if err != nil {
		p.logger.ErrorContext(ctx, "fleet read failed, cycle aborted",
			slog.String("error", err.Error()),
		)
		p.mu.Lock()
		p.processing = false
		p.mu.Unlock()
		return domain.RevenueCycle{}, false
	}

	elapsedHours := float64(end.Sub(start).Milliseconds()) / 3_600_000
	condition := p.condition.Condition()

	assetIndex := make(map[string]domain.TransportAsset, len(assets))
	for _, a := range assets {
		assetIndex[a.ID] = a
	}

	// Revenue per active route with at least one completed trip, per
	// assigned asset, with modifiers applied multiplicatively in fixed
	// order: efficiency, market condition, competition.
	updatedRoutes := make([]domain.Route, 0, len(routes))
	for _, route := range routes {
		if !route.Active || route.EstimatedHours <= 0 {
			continue
		}
		trips := int64(math.Floor(elapsedHours / route.EstimatedHours))
		if trips <= 0 {
			continue
		}

		var routeRevenue float64
		for _, assetID := range route.AssignedAssetIDs {
			asset, ok := assetIndex[assetID]
			if !ok {
				continue
			}

			base := route.Profitability.Revenue * float64(trips)
			src := domain.RevenueSource{
				ID:         uuid.New().String(),
				RouteID:    route.ID,
				AssetID:    asset.ID,
				Type:       domain.RevenueRouteIncome,
				BaseAmount: base,
			}

			efficiency := 1 + float64(asset.EfficiencyLevel)*0.1
			src.Modifiers = append(src.Modifiers, domain.Modifier{
				Type:        domain.ModifierEfficiency,
				Multiplier:  efficiency,
				Description: fmt.Sprintf("vessel efficiency level %d", asset.EfficiencyLevel),
			})

			src.Modifiers = append(src.Modifiers, domain.Modifier{
				Type:        domain.ModifierMarketCondition,
				Multiplier:  condition.Multiplier(),
				Description: fmt.Sprintf("market condition %s", condition),
			})

			competition := 1 - p.cfg.CompetitionPressure
			src.Modifiers = append(src.Modifiers, domain.Modifier{
				Type:        domain.ModifierCompetition,
				Multiplier:  competition,
				Description: fmt.Sprintf("competition pressure %.2f", p.cfg.CompetitionPressure),
			})

			src.FinalAmount = base
			for _, m := range src.Modifiers {
				src.FinalAmount *= m.Multiplier
			}

			cycle.Revenues = append(cycle.Revenues, src)
			routeRevenue += src.FinalAmount
		}

		// Trip-dependent expenses accrue only for in-transit assets.
		var routeExpense float64
		for _, assetID := range route.AssignedAssetIDs {
			asset, ok := assetIndex[assetID]
			if !ok || asset.Status != domain.AssetInTransit {
				continue
			}
			cost, ok := p.costs[asset.DefinitionID]
			if !ok {
				continue
			}

			fuel := route.TotalDistance() * cost.FuelPerMile * float64(trips)
			crew := cost.CrewPerHour * route.EstimatedHours * float64(trips)
			port := cost.PortFeePerStop * float64(route.StopCount()) * float64(trips)

			cycle.Expenses = append(cycle.Expenses,
				domain.Expense{Type: domain.ExpenseFuel, Amount: fuel, RouteID: route.ID, AssetID: asset.ID},
				domain.Expense{Type: domain.ExpenseCrew, Amount: crew, RouteID: route.ID, AssetID: asset.ID},
				domain.Expense{Type: domain.ExpensePortFees, Amount: port, RouteID: route.ID, AssetID: asset.ID},
			)
			routeExpense += fuel + crew + port
		}

		route.Performance.TripsCompleted += trips
		route.Performance.TotalRevenue += routeRevenue
		route.Performance.TotalExpenses += routeExpense
		updatedRoutes = append(updatedRoutes, route)
	}

	// Standing expenses accrue for every asset regardless of trips.
	elapsedDays := elapsedHours / 24
	var inTransit, total int
	for _, asset := range assets {
		total++
		if asset.Status == domain.AssetInTransit {
			inTransit++
		}
		cost, ok := p.costs[asset.DefinitionID]
		if !ok {
			continue
		}
		cycle.Expenses = append(cycle.Expenses,
			domain.Expense{Type: domain.ExpenseMaintenance, Amount: cost.MaintenancePerHour * elapsedHours, AssetID: asset.ID},
			domain.Expense{Type: domain.ExpenseInsurance, Amount: cost.InsurancePerDay * elapsedDays, AssetID: asset.ID},
		)
	}

	cycle.Summary = summarize(cycle, inTransit, total)
	cycle.NetIncome = cycle.Summary.TotalRevenue - cycle.Summary.TotalExpenses
	cycle.Status = domain.CycleStatusCompleted

	p.mu.Lock()
	p.history = append(p.history, cycle)
	if len(p.history) > domain.CycleHistoryLimit {
		p.history = p.history[len(p.history)-domain.CycleHistoryLimit:]
	}
	p.lastProcessed = end
	p.nextCycle = end.Add(p.cfg.Interval)
	p.processing = false
	p.mu.Unlock()

	// Two aggregate ledger records keep the ledger small; the per-source
	// audit trail lives in the cycle itself.
	if cycle.Summary.TotalRevenue > 0 {
		p.finance.Record(domain.RecordIncome, "route_operations", cycle.Summary.TotalRevenue)
	}
	if cycle.Summary.TotalExpenses > 0 {
		p.finance.Record(domain.RecordExpense, "fleet_operations", cycle.Summary.TotalExpenses)
	}

	if p.routeSink != nil {
		for _, route := range updatedRoutes {
			if err := p.routeSink.WriteRoute(ctx, route); err != nil {
				p.logger.WarnContext(ctx, "route performance write failed",
					slog.String("route_id", route.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := p.bus.Publish(ctx, &domain.CycleCompleted{Cycle: cycle}); err != nil {
		p.logger.WarnContext(ctx, "publish cycle completed failed",
			slog.String("error", err.Error()),
		)
	}

	if p.archiver != nil {
		if err := p.archiver.ArchiveCycle(ctx, cycle); err != nil {
			p.logger.WarnContext(ctx, "cycle archive failed",
				slog.String("cycle_id", cycle.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	p.logger.InfoContext(ctx, "revenue cycle completed",
		slog.String("cycle_id", cycle.ID),
		slog.Float64("revenue", cycle.Summary.TotalRevenue),
		slog.Float64("expenses", cycle.Summary.TotalExpenses),
		slog.Float64("net", cycle.NetIncome),
	)

	return cycle, true
}

// Status reports the processor state.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Processing:        p.processing,
		LastProcessedTime: p.lastProcessed,
		NextCycleTime:     p.nextCycle,
		CyclesCompleted:   len(p.history),
	}
}

// History returns the most recent completed cycles, newest last, up to
// limit (0 means all retained).
func (p *Processor) History(limit int) []domain.RevenueCycle {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.RevenueCycle, n)
	copy(out, p.history[len(p.history)-n:])
	return out
}

// summarize aggregates totals by type, ranks the top routes by profit, and
// computes fleet utilization.
func summarize(cycle domain.RevenueCycle, inTransit, totalAssets int) domain.CycleSummary {
	s := domain.CycleSummary{
		RevenueByType:  make(map[domain.RevenueType]float64),
		ExpensesByType: make(map[domain.ExpenseType]float64),
	}

	perRoute := make(map[string]*domain.RoutePerfEntry)
	routeEntry := func(id string) *domain.RoutePerfEntry {
		e, ok := perRoute[id]
		if !ok {
			e = &domain.RoutePerfEntry{RouteID: id}
			perRoute[id] = e
		}
		return e
	}

	for _, r := range cycle.Revenues {
		s.TotalRevenue += r.FinalAmount
		s.RevenueByType[r.Type] += r.FinalAmount
		routeEntry(r.RouteID).Revenue += r.FinalAmount
	}
	for _, e := range cycle.Expenses {
		s.TotalExpenses += e.Amount
		s.ExpensesByType[e.Type] += e.Amount
		if e.RouteID != "" {
			routeEntry(e.RouteID).Expense += e.Amount
		}
	}

	for _, e := range perRoute {
		e.Profit = e.Revenue - e.Expense
		s.TopRoutes = append(s.TopRoutes, *e)
	}
	sort.Slice(s.TopRoutes, func(i, j int) bool {
		return s.TopRoutes[i].Profit > s.TopRoutes[j].Profit
	})
	if len(s.TopRoutes) > 5 {
		s.TopRoutes = s.TopRoutes[:5]
	}

	if totalAssets > 0 {
		s.AssetUtilization = float64(inTransit) / float64(totalAssets)
	}
	return s
}
