package revenue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/events"
)

type fakeRoutes struct {
	routes []domain.Route
	err    error
}

func (f *fakeRoutes) ReadRoutes(_ context.Context, _ string) ([]domain.Route, error) {
	return f.routes, f.err
}

type fakeFleet struct {
	assets []domain.TransportAsset
	err    error
}

func (f *fakeFleet) ListAssets(_ context.Context, _ string) ([]domain.TransportAsset, error) {
	return f.assets, f.err
}

type fixedCondition struct {
	c domain.MarketCondition
}

func (f fixedCondition) Condition() domain.MarketCondition { return f.c }

type recordingFinance struct {
	records []domain.FinancialRecord
}

func (r *recordingFinance) Record(t domain.RecordType, category string, amount float64) {
	r.records = append(r.records, domain.FinancialRecord{Type: t, Category: category, Amount: amount})
}

type recordingRouteSink struct {
	routes []domain.Route
}

func (r *recordingRouteSink) WriteRoute(_ context.Context, route domain.Route) error {
	r.routes = append(r.routes, route)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoute() domain.Route {
	return domain.Route{
		ID:          "route-1",
		OwnerID:     "player-1",
		Origin:      "lisbon",
		Destination: "porto",
		Segments: []domain.RouteSegment{
			{From: "lisbon", To: "porto", DistanceNM: 180},
		},
		AssignedAssetIDs: []string{"sloop-1"},
		Active:           true,
		EstimatedHours:   24,
		Profitability:    domain.RouteProfitability{Revenue: 1000},
	}
}

func testAsset(status domain.AssetStatus) domain.TransportAsset {
	return domain.TransportAsset{
		ID:              "sloop-1",
		DefinitionID:    "sloop",
		OwnerID:         "player-1",
		RouteID:         "route-1",
		Status:          status,
		EfficiencyLevel: 2,
	}
}

func testCosts() []domain.OperatingCost {
	return []domain.OperatingCost{{
		DefinitionID:       "sloop",
		MaintenancePerHour: 2,
		FuelPerMile:        0.5,
		CrewPerHour:        4,
		InsurancePerDay:    12,
		PortFeePerStop:     25,
	}}
}

func newTestProcessor(t *testing.T, routes *fakeRoutes, fleet *fakeFleet, cond domain.MarketCondition, span time.Duration) (*Processor, *recordingFinance, *recordingRouteSink) {
	t.Helper()

	finance := &recordingFinance{}
	sink := &recordingRouteSink{}
	p := NewProcessor(
		Config{Interval: time.Hour, CompetitionPressure: 0.1},
		routes, sink, fleet, testCosts(),
		fixedCondition{cond}, finance, events.NewBus(), nil,
		testLogger(),
	)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.lastProcessed = start
	p.now = func() time.Time { return start.Add(span) }
	return p, finance, sink
}

func TestRunCycleTwoTripsOverFiftyHours(t *testing.T) {
	routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
	fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetInTransit)}}
	p, finance, sink := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 50*time.Hour)

	cycle, ok := p.RunCycle(context.Background())
	if !ok {
		t.Fatal("RunCycle returned ok=false")
	}
	if cycle.Status != domain.CycleStatusCompleted {
		t.Fatalf("cycle status = %s, want %s", cycle.Status, domain.CycleStatusCompleted)
	}
	if len(cycle.Revenues) != 1 {
		t.Fatalf("got %d revenue sources, want 1", len(cycle.Revenues))
	}

	// 50h on a 24h round trip is exactly 2 completed trips; the partial
	// third trip pays nothing.
	src := cycle.Revenues[0]
	if src.BaseAmount != 2000 {
		t.Fatalf("base amount = %v, want 2000 (2 trips)", src.BaseAmount)
	}

	// Modifiers in order: efficiency 1.2, normal market 1.0, competition 0.9.
	wantTypes := []domain.ModifierType{
		domain.ModifierEfficiency,
		domain.ModifierMarketCondition,
		domain.ModifierCompetition,
	}
	if len(src.Modifiers) != len(wantTypes) {
		t.Fatalf("got %d modifiers, want %d", len(src.Modifiers), len(wantTypes))
	}
	for i, want := range wantTypes {
		if src.Modifiers[i].Type != want {
			t.Fatalf("modifier[%d] = %s, want %s", i, src.Modifiers[i].Type, want)
		}
	}
	wantFinal := 2000 * 1.2 * 1.0 * 0.9
	if math.Abs(src.FinalAmount-wantFinal) > 1e-9 {
		t.Fatalf("final amount = %v, want %v", src.FinalAmount, wantFinal)
	}

	// Standing costs cover the full 50 hours; trip costs cover 2 trips.
	wantExpenses := map[domain.ExpenseType]float64{
		domain.ExpenseMaintenance: 2 * 50,
		domain.ExpenseInsurance:   12 * (50.0 / 24),
		domain.ExpenseFuel:        180 * 0.5 * 2,
		domain.ExpenseCrew:        4 * 24 * 2,
		domain.ExpensePortFees:    25 * 2 * 2,
	}
	for typ, want := range wantExpenses {
		got := cycle.Summary.ExpensesByType[typ]
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("expense %s = %v, want %v", typ, got, want)
		}
	}

	if len(finance.records) != 2 {
		t.Fatalf("got %d ledger records, want 2", len(finance.records))
	}
	if finance.records[0].Type != domain.RecordIncome || finance.records[0].Amount != cycle.Summary.TotalRevenue {
		t.Fatalf("income record = %+v", finance.records[0])
	}
	if finance.records[1].Type != domain.RecordExpense || finance.records[1].Amount != cycle.Summary.TotalExpenses {
		t.Fatalf("expense record = %+v", finance.records[1])
	}

	if len(sink.routes) != 1 || sink.routes[0].Performance.TripsCompleted != 2 {
		t.Fatalf("route performance not persisted: %+v", sink.routes)
	}
}

func TestRunCycleShortSpanEarnsNothing(t *testing.T) {
	routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
	fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetInTransit)}}
	p, finance, _ := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 20*time.Hour)

	cycle, ok := p.RunCycle(context.Background())
	if !ok {
		t.Fatal("RunCycle returned ok=false")
	}
	if len(cycle.Revenues) != 0 {
		t.Fatalf("got %d revenue sources, want 0 before first trip completes", len(cycle.Revenues))
	}
	// Standing expenses still accrue.
	if cycle.Summary.ExpensesByType[domain.ExpenseMaintenance] != 2*20 {
		t.Fatalf("maintenance = %v, want 40", cycle.Summary.ExpensesByType[domain.ExpenseMaintenance])
	}
	if cycle.Summary.ExpensesByType[domain.ExpenseFuel] != 0 {
		t.Fatalf("fuel charged with zero trips: %v", cycle.Summary.ExpensesByType[domain.ExpenseFuel])
	}
	// No income record for a zero-revenue cycle.
	for _, r := range finance.records {
		if r.Type == domain.RecordIncome {
			t.Fatalf("unexpected income record %+v", r)
		}
	}
}

func TestRunCycleDockedAssetSkipsTripExpenses(t *testing.T) {
	routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
	fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetDocked)}}
	p, _, _ := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 50*time.Hour)

	cycle, ok := p.RunCycle(context.Background())
	if !ok {
		t.Fatal("RunCycle returned ok=false")
	}
	for _, typ := range []domain.ExpenseType{domain.ExpenseFuel, domain.ExpenseCrew, domain.ExpensePortFees} {
		if got := cycle.Summary.ExpensesByType[typ]; got != 0 {
			t.Errorf("docked asset charged %s = %v, want 0", typ, got)
		}
	}
	if cycle.Summary.ExpensesByType[domain.ExpenseMaintenance] != 2*50 {
		t.Fatalf("maintenance = %v, want 100", cycle.Summary.ExpensesByType[domain.ExpenseMaintenance])
	}
}

func TestRunCycleMarketConditionScalesRevenue(t *testing.T) {
	cases := []struct {
		condition domain.MarketCondition
		want      float64
	}{
		{domain.ConditionBoom, 2000 * 1.2 * 1.3 * 0.9},
		{domain.ConditionRecession, 2000 * 1.2 * 0.7 * 0.9},
		{domain.ConditionCrisis, 2000 * 1.2 * 0.5 * 0.9},
	}
	for _, tc := range cases {
		routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
		fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetInTransit)}}
		p, _, _ := newTestProcessor(t, routes, fleet, tc.condition, 50*time.Hour)

		cycle, ok := p.RunCycle(context.Background())
		if !ok {
			t.Fatalf("%s: RunCycle returned ok=false", tc.condition)
		}
		if got := cycle.Summary.TotalRevenue; math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: revenue = %v, want %v", tc.condition, got, tc.want)
		}
	}
}

func TestRunCycleReentrantTriggerIsNoOp(t *testing.T) {
	routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
	fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetInTransit)}}
	p, finance, _ := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 50*time.Hour)

	p.mu.Lock()
	p.processing = true
	p.mu.Unlock()

	if _, ok := p.RunCycle(context.Background()); ok {
		t.Fatal("RunCycle ran while another cycle was processing")
	}
	if len(finance.records) != 0 {
		t.Fatalf("ledger touched during no-op trigger: %+v", finance.records)
	}
}

func TestRunCycleRouteReadFailureAborts(t *testing.T) {
	routes := &fakeRoutes{err: errors.New("gateway down")}
	fleet := &fakeFleet{}
	p, finance, _ := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 50*time.Hour)
	before := p.lastProcessed

	if _, ok := p.RunCycle(context.Background()); ok {
		t.Fatal("RunCycle succeeded despite route read failure")
	}
	if !p.lastProcessed.Equal(before) {
		t.Fatal("lastProcessed advanced on aborted cycle")
	}
	if st := p.Status(); st.Processing {
		t.Fatal("processor stuck in processing state after abort")
	}
	if len(finance.records) != 0 {
		t.Fatalf("ledger touched by aborted cycle: %+v", finance.records)
	}

	// The next trigger must succeed once the gateway recovers, covering
	// the whole gap since the last completed cycle.
	routes.err = nil
	routes.routes = []domain.Route{testRoute()}
	fleet.assets = []domain.TransportAsset{testAsset(domain.AssetInTransit)}
	if _, ok := p.RunCycle(context.Background()); !ok {
		t.Fatal("RunCycle failed after gateway recovery")
	}
}

func TestRunCycleTripCountMonotonic(t *testing.T) {
	routes := &fakeRoutes{routes: []domain.Route{testRoute()}}
	fleet := &fakeFleet{assets: []domain.TransportAsset{testAsset(domain.AssetInTransit)}}
	p, _, sink := newTestProcessor(t, routes, fleet, domain.ConditionNormal, 50*time.Hour)

	if _, ok := p.RunCycle(context.Background()); !ok {
		t.Fatal("first cycle failed")
	}
	// Feed the persisted route back in, as the gateway would.
	routes.routes = []domain.Route{sink.routes[0]}
	start := p.lastProcessed
	p.now = func() time.Time { return start.Add(30 * time.Hour) }

	if _, ok := p.RunCycle(context.Background()); !ok {
		t.Fatal("second cycle failed")
	}

	got := sink.routes[len(sink.routes)-1].Performance.TripsCompleted
	if got != 3 {
		t.Fatalf("trips completed = %d, want 3 (2 + 1, never reduced)", got)
	}
}

func TestHistoryBounded(t *testing.T) {
	routes := &fakeRoutes{}
	fleet := &fakeFleet{}
	p, _, _ := newTestProcessor(t, routes, fleet, domain.ConditionNormal, time.Hour)

	base := p.lastProcessed
	for i := 0; i < domain.CycleHistoryLimit+20; i++ {
		span := time.Duration(i+1) * time.Hour
		p.now = func() time.Time { return base.Add(span) }
		if _, ok := p.RunCycle(context.Background()); !ok {
			t.Fatalf("cycle %d failed", i)
		}
	}

	if got := len(p.History(0)); got != domain.CycleHistoryLimit {
		t.Fatalf("history length = %d, want %d", got, domain.CycleHistoryLimit)
	}
	if st := p.Status(); st.CyclesCompleted != domain.CycleHistoryLimit {
		t.Fatalf("status cycles = %d, want %d", st.CyclesCompleted, domain.CycleHistoryLimit)
	}
}

func TestSummaryRanksTopRoutesByProfit(t *testing.T) {
	cycle := domain.RevenueCycle{}
	for i, revenue := range []float64{100, 900, 500, 300, 700, 200, 800} {
		cycle.Revenues = append(cycle.Revenues, domain.RevenueSource{
			RouteID:     string(rune('a' + i)),
			FinalAmount: revenue,
		})
	}

	s := summarize(cycle, 1, 2)
	if len(s.TopRoutes) != 5 {
		t.Fatalf("got %d top routes, want 5", len(s.TopRoutes))
	}
	for i := 1; i < len(s.TopRoutes); i++ {
		if s.TopRoutes[i].Profit > s.TopRoutes[i-1].Profit {
			t.Fatalf("top routes not sorted by profit: %+v", s.TopRoutes)
		}
	}
	if s.TopRoutes[0].Profit != 900 {
		t.Fatalf("best route profit = %v, want 900", s.TopRoutes[0].Profit)
	}
	if s.AssetUtilization != 0.5 {
		t.Fatalf("utilization = %v, want 0.5", s.AssetUtilization)
	}
}
