package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/finance"
	"github.com/seafarergames/tradewinds/internal/market"
	"github.com/seafarergames/tradewinds/internal/pricing"
	"github.com/seafarergames/tradewinds/internal/revenue"
	"github.com/seafarergames/tradewinds/internal/server"
	"github.com/seafarergames/tradewinds/internal/server/handler"
	"github.com/seafarergames/tradewinds/internal/server/ws"
	"github.com/seafarergames/tradewinds/internal/trading"
)

// revenueCycleLockKey guards cycle processing across instances sharing one
// Redis, so two replicas never double-pay the same elapsed span.
const revenueCycleLockKey = "lock:revenue:cycle"

// economy bundles the core economic components shared by all modes.
type economy struct {
	market      *market.Ledger
	finance     *finance.Ledger
	coordinator *trading.Coordinator
	processor   *revenue.Processor
}

// buildEconomy constructs the market ledger, financial ledger, transaction
// coordinator, and revenue processor from config and the wired dependencies.
// Persisted items take precedence over the static definitions so prices
// survive restarts.
func (a *App) buildEconomy(ctx context.Context, deps *Dependencies) *economy {
	items := a.itemDefs()
	if persisted, err := deps.Gateway.ListItems(ctx, ""); err != nil {
		a.logger.WarnContext(ctx, "loading persisted items failed, using static definitions",
			slog.String("error", err.Error()),
		)
	} else if len(persisted) > 0 {
		items = persisted
		a.logger.InfoContext(ctx, "loaded persisted item book",
			slog.Int("items", len(items)),
		)
	}

	ledger := market.NewLedger(
		market.Config{
			SupplyGrowthRate: a.cfg.Market.SupplyGrowthRate,
			DemandVolatility: a.cfg.Market.DemandVolatility,
			DemandShift:      a.cfg.Market.DemandShift,
		},
		items,
		pricing.NewSource(a.cfg.Market.Seed),
		deps.Gateway,
		deps.Bus,
		a.logger,
	)

	finLedger := finance.NewLedger(finance.Config{
		StartingCash:   a.cfg.Finance.StartingCash,
		FleetValuation: a.cfg.Finance.FleetValuation,
	}, a.logger)

	coordinator := trading.NewCoordinator(ledger, deps.Gateway, finLedger, deps.Bus, a.logger)

	processor := revenue.NewProcessor(
		revenue.Config{
			Interval:            a.cfg.Revenue.Interval.Duration,
			CompetitionPressure: a.cfg.Revenue.CompetitionPressure,
			OwnerID:             a.cfg.Revenue.OwnerID,
		},
		deps.Gateway,
		deps.Gateway,
		deps.Fleet,
		a.costDefs(),
		ledger,
		finLedger,
		deps.Bus,
		deps.Archiver,
		a.logger,
	)

	return &economy{
		market:      ledger,
		finance:     finLedger,
		coordinator: coordinator,
		processor:   processor,
	}
}

// ServerMode serves the HTTP API with automatic market ticks. Revenue cycles
// run only when requested through the API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	eco := a.buildEconomy(ctx, deps)

	a.startMarketTicker(ctx, g, eco)
	a.startPriceMirror(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, eco)

	return g.Wait()
}

// SimulateMode runs the whole economy in memory with demo data: market
// ticks, automatic revenue cycles, and a log consumer in place of the API.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode")

	a.seedSimulation(ctx, deps)

	g, ctx := errgroup.WithContext(ctx)
	eco := a.buildEconomy(ctx, deps)

	a.startMarketTicker(ctx, g, eco)

	g.Go(func() error {
		return eco.processor.Run(ctx)
	})

	// Event log consumer: in simulate mode the bus has no other subscriber,
	// so surface the event stream in the log.
	g.Go(func() error {
		ch, err := deps.Bus.Subscribe(ctx)
		if err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-ch:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "economy event",
					slog.String("kind", string(evt.Kind())),
				)
			}
		}
	})

	// Periodic financial summary.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Revenue.Interval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				snap := eco.finance.Snapshot()
				a.logger.InfoContext(ctx, "financial summary",
					slog.Float64("cash", snap.Cash),
					slog.Float64("net_worth", snap.NetWorth),
					slog.Float64("profit_margin", snap.ProfitMargin),
					slog.String("credit_rating", string(snap.CreditRating)),
				)
			}
		}
	})

	return g.Wait()
}

// FullMode starts every subsystem: market ticks, automatic revenue cycles
// behind a distributed lock, the price cache mirror, and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	eco := a.buildEconomy(ctx, deps)

	a.startMarketTicker(ctx, g, eco)
	a.startPriceMirror(ctx, g, deps)
	a.startRevenueLoop(ctx, g, deps, eco)
	a.startHTTPServer(ctx, g, deps, eco)

	return g.Wait()
}

// startMarketTicker advances the market book on the configured interval.
func (a *App) startMarketTicker(ctx context.Context, g *errgroup.Group, eco *economy) {
	interval := a.cfg.Market.UpdateInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				eco.market.UpdateCycle(ctx)
			}
		}
	})
}

// startRevenueLoop ticks revenue cycles, taking the shared cycle lock first.
// A replica that loses the race skips the tick; whichever instance runs next
// covers the whole elapsed span anyway.
func (a *App) startRevenueLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies, eco *economy) {
	interval := a.cfg.Revenue.Interval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				unlock, err := deps.LockManager.Acquire(ctx, revenueCycleLockKey, interval)
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.DebugContext(ctx, "revenue cycle lock held elsewhere, skipping tick")
					continue
				}
				if err != nil {
					a.logger.WarnContext(ctx, "revenue cycle lock acquire failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				eco.processor.RunCycle(ctx)
				unlock()
			}
		}
	})
}

// startPriceMirror copies price-change events into the Redis price cache so
// other services read current prices without touching the ledger.
func (a *App) startPriceMirror(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.PriceCache == nil {
		return
	}
	g.Go(func() error {
		ch, err := deps.Bus.Subscribe(ctx)
		if err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-ch:
				if !ok {
					return nil
				}
				pc, ok := evt.(*domain.PriceChanged)
				if !ok {
					continue
				}
				if err := deps.PriceCache.SetPrice(ctx, pc.ItemID, pc.NewPrice, time.Now().UTC()); err != nil {
					a.logger.WarnContext(ctx, "price cache write failed",
						slog.String("item_id", pc.ItemID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eco *economy) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by config")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			RateLimit:       a.cfg.Trading.RateLimit,
			RateLimitWindow: a.cfg.Trading.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Market:  handler.NewMarketHandler(eco.market, a.logger),
			Trade:   handler.NewTradeHandler(eco.coordinator, a.logger),
			Routes:  handler.NewRouteHandler(deps.Gateway, a.logger),
			Cycle:   handler.NewCycleHandler(eco.processor, a.logger),
			Finance: handler.NewFinanceHandler(eco.finance, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// itemDefs converts the static config item definitions into market items.
func (a *App) itemDefs() []domain.MarketItem {
	items := make([]domain.MarketItem, 0, len(a.cfg.Market.Items))
	for _, def := range a.cfg.Market.Items {
		items = append(items, domain.MarketItem{
			ID:                 def.ID,
			Name:               def.Name,
			Category:           domain.ItemCategory(def.Category),
			BasePrice:          def.BasePrice,
			ProductionModifier: def.ProductionModifier,
			Supply:             def.Supply,
			Demand:             def.Demand,
			Volatility:         def.Volatility,
		})
	}
	return items
}

// costDefs converts the static config cost table into operating costs.
func (a *App) costDefs() []domain.OperatingCost {
	costs := make([]domain.OperatingCost, 0, len(a.cfg.Revenue.Costs))
	for _, def := range a.cfg.Revenue.Costs {
		costs = append(costs, domain.OperatingCost{
			DefinitionID:       def.DefinitionID,
			MaintenancePerHour: def.MaintenancePerHour,
			FuelPerMile:        def.FuelPerMile,
			CrewPerHour:        def.CrewPerHour,
			InsurancePerDay:    def.InsurancePerDay,
			PortFeePerStop:     def.PortFeePerStop,
		})
	}
	return costs
}

// seedSimulation loads demo data into the in-memory gateway: the static item
// book, a starter fleet, and one active route, so cycles have work to do.
func (a *App) seedSimulation(ctx context.Context, deps *Dependencies) {
	if deps.MemGateway == nil {
		return
	}

	if err := deps.Gateway.WriteItems(ctx, a.itemDefs()); err != nil {
		a.logger.WarnContext(ctx, "seeding items failed", slog.String("error", err.Error()))
	}

	const owner = "captain-1"

	definition := "sloop"
	if len(a.cfg.Revenue.Costs) > 0 {
		definition = a.cfg.Revenue.Costs[0].DefinitionID
	}

	deps.MemGateway.SeedFleet([]domain.TransportAsset{
		{
			ID: "vessel-1", DefinitionID: definition, Name: "Morning Star",
			OwnerID: owner, RouteID: "route-1", Status: domain.AssetInTransit,
			EfficiencyLevel: 1,
		},
		{
			ID: "vessel-2", DefinitionID: definition, Name: "Gull",
			OwnerID: owner, Status: domain.AssetDocked,
		},
	})

	route := domain.Route{
		ID:          "route-1",
		OwnerID:     owner,
		Origin:      "port-alta",
		Destination: "port-brises",
		Segments: []domain.RouteSegment{
			{From: "port-alta", To: "port-brises", DistanceNM: 180, TravelTime: 18, RiskLevel: 0.1},
			{From: "port-brises", To: "port-alta", DistanceNM: 180, TravelTime: 18, RiskLevel: 0.1},
		},
		AssignedAssetIDs: []string{"vessel-1"},
		Active:           true,
		EstimatedHours:   36,
		Profitability:    domain.RouteProfitability{Revenue: 900},
	}
	if err := deps.Gateway.WriteRoute(ctx, route); err != nil {
		a.logger.WarnContext(ctx, "seeding route failed", slog.String("error", err.Error()))
	}
}
