package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/seafarergames/tradewinds/internal/domain"
)

func seededGateway(t *testing.T) *Gateway {
	t.Helper()
	g := NewGateway()
	err := g.WriteItems(context.Background(), []domain.MarketItem{
		{ID: "grain", Name: "Grain", Category: domain.CategoryFoodstuff, BasePrice: 20, CurrentPrice: 20},
		{ID: "silk", Name: "Silk", Category: domain.CategoryLuxury, BasePrice: 200, CurrentPrice: 210},
	})
	if err != nil {
		t.Fatalf("seed items: %v", err)
	}
	return g
}

func TestListItemsFiltersByCategory(t *testing.T) {
	g := seededGateway(t)

	all, err := g.ListItems(context.Background(), "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d items, want 2", len(all))
	}

	luxury, err := g.ListItems(context.Background(), domain.CategoryLuxury)
	if err != nil {
		t.Fatalf("list luxury: %v", err)
	}
	if len(luxury) != 1 || luxury[0].ID != "silk" {
		t.Fatalf("got %+v, want only silk", luxury)
	}
}

func TestSettleTradeEnforcesPriceBand(t *testing.T) {
	g := seededGateway(t)

	tests := []struct {
		name    string
		price   float64
		wantErr error
	}{
		{"within band", 25, nil},
		{"at low edge", 8, nil},
		{"below band", 7.99, domain.ErrPriceOutOfBand},
		{"at high edge", 50, nil},
		{"above band", 50.01, domain.ErrPriceOutOfBand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := g.SettleTrade(context.Background(), domain.TradeIntent{
				TransactionID: "tx-" + tt.name,
				ItemID:        "grain",
				Quantity:      5,
				Kind:          domain.TradeBuy,
				ActorID:       "captain-1",
				PricePerUnit:  tt.price,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if tx.State != domain.TxConfirmed {
				t.Fatalf("state = %s, want CONFIRMED", tx.State)
			}
			if tx.TotalPrice != tt.price*5 {
				t.Fatalf("total = %v, want %v", tx.TotalPrice, tt.price*5)
			}
		})
	}
}

func TestSettleTradeUnknownItem(t *testing.T) {
	g := seededGateway(t)

	_, err := g.SettleTrade(context.Background(), domain.TradeIntent{
		TransactionID: "tx-1", ItemID: "pepper", Quantity: 1,
		Kind: domain.TradeBuy, ActorID: "captain-1", PricePerUnit: 10,
	})
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("got %v, want ErrItemNotFound", err)
	}
}

func TestRouteLifecycle(t *testing.T) {
	g := NewGateway()
	ctx := context.Background()

	route := domain.Route{ID: "r1", OwnerID: "captain-1", Origin: "a", Destination: "b", Active: true}
	if err := g.WriteRoute(ctx, route); err != nil {
		t.Fatalf("write: %v", err)
	}

	mine, err := g.ReadRoutes(ctx, "captain-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "r1" {
		t.Fatalf("got %+v", mine)
	}
	if mine[0].UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not stamped on write")
	}

	other, err := g.ReadRoutes(ctx, "captain-2")
	if err != nil {
		t.Fatalf("read other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("owner filter leaked routes: %+v", other)
	}

	if err := g.DeleteRoute(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again is a no-op.
	if err := g.DeleteRoute(ctx, "r1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	mine, err = g.ReadRoutes(ctx, "captain-1")
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("route survived delete: %+v", mine)
	}
}

func TestListAssetsFiltersByOwner(t *testing.T) {
	g := NewGateway()
	g.SeedFleet([]domain.TransportAsset{
		{ID: "v1", DefinitionID: "sloop", OwnerID: "captain-1", Status: domain.AssetInTransit},
		{ID: "v2", DefinitionID: "brig", OwnerID: "captain-2", Status: domain.AssetDocked},
	})

	mine, err := g.ListAssets(context.Background(), "captain-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "v1" {
		t.Fatalf("got %+v, want only v1", mine)
	}

	all, err := g.ListAssets(context.Background(), "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d assets, want 2", len(all))
	}
}

func TestAdjustActorCashAccumulates(t *testing.T) {
	g := NewGateway()
	ctx := context.Background()

	if err := g.AdjustActorCash(ctx, "captain-1", 100); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := g.AdjustActorCash(ctx, "captain-1", -30); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	g.mu.Lock()
	got := g.actors["captain-1"]
	g.mu.Unlock()
	if got != 70 {
		t.Fatalf("balance = %v, want 70", got)
	}
}
