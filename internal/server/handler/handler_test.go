package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/events"
	"github.com/seafarergames/tradewinds/internal/finance"
	"github.com/seafarergames/tradewinds/internal/gateway/memory"
	"github.com/seafarergames/tradewinds/internal/market"
	"github.com/seafarergames/tradewinds/internal/pricing"
	"github.com/seafarergames/tradewinds/internal/trading"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItems() []domain.MarketItem {
	return []domain.MarketItem{
		{ID: "grain", Name: "Grain", Category: domain.CategoryFoodstuff, BasePrice: 20, ProductionModifier: 1.0, CurrentPrice: 20, Supply: 5000, Demand: 4500, Volatility: 0.1},
		{ID: "silk", Name: "Silk", Category: domain.CategoryLuxury, BasePrice: 200, ProductionModifier: 1.5, CurrentPrice: 300, Supply: 400, Demand: 550, Volatility: 0.4},
	}
}

func newTestLedger(t *testing.T) *market.Ledger {
	t.Helper()
	return market.NewLedger(
		market.Config{SupplyGrowthRate: 0.01, DemandVolatility: 0.1, DemandShift: 0.5},
		testItems(),
		pricing.NewSource(7),
		memory.NewGateway(),
		events.NewBus(),
		testLogger(),
	)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
}

func TestMarketListItems(t *testing.T) {
	h := NewMarketHandler(newTestLedger(t), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/items", h.ListItems)

	req := httptest.NewRequest(http.MethodGet, "/api/market/items", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Items []domain.MarketItem `json:"items"`
		Count int                 `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("count = %d items = %d, want 2", body.Count, len(body.Items))
	}
}

func TestMarketListItemsCategoryFilter(t *testing.T) {
	h := NewMarketHandler(newTestLedger(t), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/items", h.ListItems)

	req := httptest.NewRequest(http.MethodGet, "/api/market/items?category=luxury", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body struct {
		Items []domain.MarketItem `json:"items"`
	}
	decodeBody(t, rec, &body)
	if len(body.Items) != 1 || body.Items[0].ID != "silk" {
		t.Fatalf("got %+v, want only silk", body.Items)
	}
}

func TestMarketGetItemNotFound(t *testing.T) {
	h := NewMarketHandler(newTestLedger(t), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/items/{id}", h.GetItem)

	req := httptest.NewRequest(http.MethodGet, "/api/market/items/pepper", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func newTradeStack(t *testing.T) (*TradeHandler, *finance.Ledger) {
	t.Helper()

	mem := memory.NewGateway()
	if err := mem.WriteItems(context.Background(), testItems()); err != nil {
		t.Fatalf("seed gateway: %v", err)
	}

	bus := events.NewBus()
	ledger := market.NewLedger(
		market.Config{SupplyGrowthRate: 0.01, DemandVolatility: 0.1, DemandShift: 0.5},
		testItems(),
		pricing.NewSource(7),
		mem,
		bus,
		testLogger(),
	)
	finLedger := finance.NewLedger(finance.Config{StartingCash: 10000, FleetValuation: 25000}, testLogger())
	coord := trading.NewCoordinator(ledger, mem, finLedger, bus, testLogger())

	return NewTradeHandler(coord, testLogger()), finLedger
}

func tradeRoutes(h *TradeHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/trade/buy", h.Buy)
	mux.HandleFunc("POST /api/trade/sell", h.Sell)
	mux.HandleFunc("GET /api/trade/transactions", h.ListTransactions)
	return mux
}

func TestTradeBuyAccepted(t *testing.T) {
	h, _ := newTradeStack(t)
	mux := tradeRoutes(h)

	req := httptest.NewRequest(http.MethodPost, "/api/trade/buy",
		strings.NewReader(`{"itemId":"grain","quantity":5,"actorId":"captain-1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202\nbody: %s", rec.Code, rec.Body.String())
	}
	var tx domain.Transaction
	decodeBody(t, rec, &tx)
	if tx.State != domain.TxOptimistic {
		t.Fatalf("state = %s, want OPTIMISTIC", tx.State)
	}
	if tx.TotalPrice != 100 {
		t.Fatalf("total = %v, want 100", tx.TotalPrice)
	}
}

func TestTradeBuyValidationErrors(t *testing.T) {
	h, _ := newTradeStack(t)
	mux := tradeRoutes(h)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero quantity", `{"itemId":"grain","quantity":0,"actorId":"captain-1"}`, http.StatusBadRequest},
		{"unknown item", `{"itemId":"pepper","quantity":1,"actorId":"captain-1"}`, http.StatusNotFound},
		{"missing item id", `{"quantity":1,"actorId":"captain-1"}`, http.StatusBadRequest},
		{"missing actor", `{"itemId":"grain","quantity":1}`, http.StatusBadRequest},
		{"insufficient funds", `{"itemId":"silk","quantity":100,"actorId":"captain-1"}`, http.StatusConflict},
		{"malformed json", `{"itemId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/trade/buy", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestFinanceSummaryAndLoanFlow(t *testing.T) {
	finLedger := finance.NewLedger(finance.Config{StartingCash: 10000, FleetValuation: 25000}, testLogger())
	h := NewFinanceHandler(finLedger, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/finance/summary", h.GetSummary)
	mux.HandleFunc("POST /api/finance/loans", h.ApplyForLoan)
	mux.HandleFunc("POST /api/finance/loans/{id}/payments", h.MakeLoanPayment)

	// Summary before any activity.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/finance/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var snap domain.FinanceSnapshot
	decodeBody(t, rec, &snap)
	if snap.Cash != 10000 {
		t.Fatalf("cash = %v, want 10000", snap.Cash)
	}

	// Apply for a loan.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/finance/loans",
		strings.NewReader(`{"principal":3000,"termDays":90}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("loan status = %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var loan domain.Loan
	decodeBody(t, rec, &loan)
	if loan.ID == "" || loan.Principal != 3000 {
		t.Fatalf("loan = %+v", loan)
	}

	// Pay one installment.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/finance/loans/"+loan.ID+"/payments", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("payment status = %d\nbody: %s", rec.Code, rec.Body.String())
	}
	var paid domain.Loan
	decodeBody(t, rec, &paid)
	if paid.PaymentsMade != 1 {
		t.Fatalf("payments made = %d, want 1", paid.PaymentsMade)
	}

	// Paying an unknown loan is a 404.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/finance/loans/nope/payments", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown loan status = %d, want 404", rec.Code)
	}
}

func TestFinanceLoanValidation(t *testing.T) {
	finLedger := finance.NewLedger(finance.Config{StartingCash: 10000, FleetValuation: 25000}, testLogger())
	h := NewFinanceHandler(finLedger, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/finance/loans", h.ApplyForLoan)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero principal", `{"principal":0,"termDays":90}`, http.StatusBadRequest},
		{"short term", `{"principal":1000,"termDays":7}`, http.StatusBadRequest},
		{"overleveraged", `{"principal":200000,"termDays":90}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/finance/loans", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRouteCreateAndValidation(t *testing.T) {
	mem := memory.NewGateway()
	h := NewRouteHandler(mem, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/routes", h.CreateRoute)
	mux.HandleFunc("GET /api/routes", h.ListRoutes)
	mux.HandleFunc("DELETE /api/routes/{id}", h.DeleteRoute)

	valid := `{
		"ownerId": "captain-1",
		"origin": "port-alta",
		"destination": "port-brises",
		"segments": [{"from":"port-alta","to":"port-brises","distanceNm":180,"travelTimeHours":18}],
		"estimatedTimeHours": 36
	}`

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(valid)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var created domain.Route
	decodeBody(t, rec, &created)
	if created.ID == "" || !created.Active {
		t.Fatalf("created = %+v, want generated id and active", created)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/routes?owner=captain-1", nil))
	var listed struct {
		Routes []domain.Route `json:"routes"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Routes) != 1 {
		t.Fatalf("listed %d routes, want 1", len(listed.Routes))
	}

	bad := []struct {
		name string
		body string
	}{
		{"missing owner", `{"origin":"a","destination":"b","segments":[{"from":"a","to":"b","distanceNm":1}],"estimatedTimeHours":1}`},
		{"no segments", `{"ownerId":"c","origin":"a","destination":"b","estimatedTimeHours":1}`},
		{"bad segment", `{"ownerId":"c","origin":"a","destination":"b","segments":[{"from":"a","to":"b","distanceNm":0}],"estimatedTimeHours":1}`},
		{"zero hours", `{"ownerId":"c","origin":"a","destination":"b","segments":[{"from":"a","to":"b","distanceNm":1}]}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400\nbody: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/routes/"+created.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
	if body["service"] != "tradewinds" {
		t.Fatalf("service field = %v, want tradewinds", body["service"])
	}
	if _, ok := body["uptimeSeconds"].(float64); !ok {
		t.Fatalf("uptimeSeconds = %v, want a number", body["uptimeSeconds"])
	}
}
