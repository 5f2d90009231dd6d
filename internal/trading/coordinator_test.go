package trading

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/events"
	"github.com/seafarergames/tradewinds/internal/market"
)

type midpoint struct{}

func (midpoint) Float64() float64 { return 0.5 }

// fakeGateway settles trades in memory and can be told to fail.
type fakeGateway struct {
	mu          sync.Mutex
	settleErr   error
	settled     []domain.TradeIntent
	cashDeltas  map[string]float64
	settleCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{cashDeltas: make(map[string]float64)}
}

func (g *fakeGateway) ListItems(context.Context, domain.ItemCategory) ([]domain.MarketItem, error) {
	return nil, nil
}

func (g *fakeGateway) WriteItems(context.Context, []domain.MarketItem) error { return nil }

func (g *fakeGateway) SettleTrade(_ context.Context, intent domain.TradeIntent) (domain.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settleCalls++
	if g.settleErr != nil {
		return domain.Transaction{}, g.settleErr
	}
	g.settled = append(g.settled, intent)
	return domain.Transaction{
		ID:           intent.TransactionID,
		ItemID:       intent.ItemID,
		Kind:         intent.Kind,
		Quantity:     intent.Quantity,
		PricePerUnit: intent.PricePerUnit,
		TotalPrice:   intent.PricePerUnit * float64(intent.Quantity),
		ActorID:      intent.ActorID,
		Timestamp:    time.Now().UTC(),
		State:        domain.TxConfirmed,
	}, nil
}

func (g *fakeGateway) ReadRoutes(context.Context, string) ([]domain.Route, error) { return nil, nil }
func (g *fakeGateway) WriteRoute(context.Context, domain.Route) error             { return nil }
func (g *fakeGateway) DeleteRoute(context.Context, string) error                  { return nil }

func (g *fakeGateway) AdjustActorCash(_ context.Context, actorID string, delta float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cashDeltas[actorID] += delta
	return nil
}

// fakeTreasury holds a fixed balance and records confirmed trades.
type fakeTreasury struct {
	mu       sync.Mutex
	balance  float64
	recorded []domain.Transaction
}

func (t *fakeTreasury) Funds(string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

func (t *fakeTreasury) RecordTrade(tx domain.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorded = append(t.recorded, tx)
}

func newTestCoordinator(t *testing.T, gw *fakeGateway, balance float64) (*Coordinator, *market.Ledger, *fakeTreasury, *events.Bus) {
	t.Helper()
	defs := []domain.MarketItem{{
		ID: "tea", Name: "Tea", BasePrice: 50, ProductionModifier: 1,
		CurrentPrice: 50, Supply: 100, Demand: 100,
	}}
	bus := events.NewBus()
	ledger := market.NewLedger(market.Config{DemandShift: 0.5}, defs, midpoint{}, nil, bus, slog.Default())
	treasury := &fakeTreasury{balance: balance}
	return NewCoordinator(ledger, gw, treasury, bus, slog.Default()), ledger, treasury, bus
}

func TestBuyConfirmed(t *testing.T) {
	gw := newFakeGateway()
	c, ledger, treasury, _ := newTestCoordinator(t, gw, 10_000)

	tx, err := c.Buy(context.Background(), "tea", 10, "player-1")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if tx.State != domain.TxOptimistic {
		t.Fatalf("expected OPTIMISTIC before settlement, got %s", tx.State)
	}
	if tx.TotalPrice != 500 {
		t.Fatalf("expected total 500, got %v", tx.TotalPrice)
	}

	c.Wait()

	item, _ := ledger.Item("tea")
	if item.Supply != 90 {
		t.Fatalf("expected supply 90 after buy, got %v", item.Supply)
	}

	txs := c.Transactions(0)
	if len(txs) != 1 || txs[0].State != domain.TxConfirmed {
		t.Fatalf("expected one CONFIRMED transaction, got %+v", txs)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expected empty pending registry, got %d", c.PendingCount())
	}
	if gw.cashDeltas["player-1"] != -500 {
		t.Fatalf("expected cash delta -500, got %v", gw.cashDeltas["player-1"])
	}
	if len(treasury.recorded) != 1 {
		t.Fatalf("expected one recorded trade, got %d", len(treasury.recorded))
	}
}

func TestSellConfirmed(t *testing.T) {
	gw := newFakeGateway()
	c, ledger, _, _ := newTestCoordinator(t, gw, 0)

	// Sells need no funds and have no upper quantity bound.
	if _, err := c.Sell(context.Background(), "tea", 500, "player-1"); err != nil {
		t.Fatalf("sell: %v", err)
	}
	c.Wait()

	item, _ := ledger.Item("tea")
	if item.Supply != 600 {
		t.Fatalf("expected supply 600 after sell, got %v", item.Supply)
	}
	if gw.cashDeltas["player-1"] != 500*50 {
		t.Fatalf("expected cash credit %v, got %v", 500*50.0, gw.cashDeltas["player-1"])
	}
}

func TestValidationFailuresLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		itemID  string
		qty     int
		balance float64
		wantErr error
	}{
		{name: "unknown item", itemID: "opium", qty: 1, balance: 1000, wantErr: domain.ErrItemNotFound},
		{name: "zero quantity", itemID: "tea", qty: 0, balance: 1000, wantErr: domain.ErrInvalidQuantity},
		{name: "negative quantity", itemID: "tea", qty: -3, balance: 1000, wantErr: domain.ErrInvalidQuantity},
		{name: "insufficient supply", itemID: "tea", qty: 101, balance: 1e9, wantErr: domain.ErrInsufficientSupply},
		// Scenario: buy 10 at price 50 with funds 400.
		{name: "insufficient funds", itemID: "tea", qty: 10, balance: 400, wantErr: domain.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			c, ledger, _, _ := newTestCoordinator(t, gw, tt.balance)

			_, err := c.Buy(context.Background(), tt.itemID, tt.qty, "player-1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			item, _ := ledger.Item("tea")
			if item.Supply != 100 || item.Demand != 100 {
				t.Fatalf("state mutated on validation failure: %+v", item)
			}
			if len(c.Transactions(0)) != 0 {
				t.Fatal("transaction appended on validation failure")
			}
			if gw.settleCalls != 0 {
				t.Fatal("gateway called on validation failure")
			}
		})
	}
}

func TestSettlementFailureRollsBackExactly(t *testing.T) {
	gw := newFakeGateway()
	gw.settleErr = errors.New("gateway unreachable")
	c, ledger, treasury, bus := newTestCoordinator(t, gw, 10_000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	before, _ := ledger.Item("tea")

	if _, err := c.Buy(ctx, "tea", 5, "player-1"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	c.Wait()

	after, _ := ledger.Item("tea")
	if after.Supply != before.Supply || after.Demand != before.Demand || after.CurrentPrice != before.CurrentPrice {
		t.Fatalf("rollback not exact: before=%+v after=%+v", before, after)
	}
	if len(c.Transactions(0)) != 0 {
		t.Fatalf("optimistic transaction not discarded: %+v", c.Transactions(0))
	}
	if len(treasury.recorded) != 0 {
		t.Fatal("failed trade recorded in treasury")
	}

	// Pending event first, then exactly one failure event.
	var failures int
	timeout := time.After(time.Second)
	for failures == 0 {
		select {
		case evt := <-sub:
			if _, ok := evt.(*domain.TransactionFailed); ok {
				failures++
			}
		case <-timeout:
			t.Fatal("no TransactionFailed event observed")
		}
	}
}

func TestPendingEventEmittedBeforeSettlement(t *testing.T) {
	gw := newFakeGateway()
	c, _, _, bus := newTestCoordinator(t, gw, 10_000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tx, err := c.Buy(ctx, "tea", 1, "player-1")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	evt := <-sub
	pending, ok := evt.(*domain.TransactionPending)
	if !ok {
		t.Fatalf("expected TransactionPending first, got %T", evt)
	}
	if pending.Transaction.ID != tx.ID || pending.Transaction.State != domain.TxOptimistic {
		t.Fatalf("unexpected pending payload: %+v", pending.Transaction)
	}
	c.Wait()
}

func TestResolutionIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.settleErr = errors.New("gateway unreachable")
	c, ledger, _, _ := newTestCoordinator(t, gw, 10_000)

	if _, err := c.Buy(context.Background(), "tea", 5, "player-1"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	c.Wait()

	// A duplicate resolution notification must be a no-op.
	before, _ := ledger.Item("tea")
	c.rollback(context.Background(), domain.TradeIntent{TransactionID: "already-resolved"}, errors.New("dup"))
	after, _ := ledger.Item("tea")
	if after.Supply != before.Supply || after.Demand != before.Demand {
		t.Fatalf("duplicate resolution mutated state: before=%+v after=%+v", before, after)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("pending registry not cleared: %d", c.PendingCount())
	}
}

func TestConcurrentBuysCannotOversell(t *testing.T) {
	gw := newFakeGateway()
	c, ledger, _, _ := newTestCoordinator(t, gw, 1_000_000)

	// Supply is 100; eight racing buys of 25 can only clear four times.
	const (
		buyers = 8
		qty    = 25
	)
	start := make(chan struct{})
	errs := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.Buy(context.Background(), "tea", qty, "player-1")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var accepted, rejected int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrInsufficientSupply):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 4 || rejected != 4 {
		t.Fatalf("accepted=%d rejected=%d, want 4 and 4", accepted, rejected)
	}

	item, err := ledger.Item("tea")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if item.Supply != 0 {
		t.Fatalf("supply = %v, want exactly 0 after four buys of 25", item.Supply)
	}
	c.Wait()
}

func TestSameItemTradesSettleInOrder(t *testing.T) {
	gw := newFakeGateway()
	c, _, _, _ := newTestCoordinator(t, gw, 1_000_000)

	for i := 0; i < 5; i++ {
		if _, err := c.Buy(context.Background(), "tea", 1, "player-1"); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
	}
	c.Wait()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.settled) != 5 {
		t.Fatalf("expected 5 settlements, got %d", len(gw.settled))
	}
	txs := c.Transactions(0)
	for i, intent := range gw.settled {
		if intent.TransactionID != txs[i].ID {
			t.Fatalf("settlement %d out of order: got %s want %s", i, intent.TransactionID, txs[i].ID)
		}
	}
}
