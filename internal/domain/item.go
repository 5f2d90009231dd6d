package domain

import "time"

// ItemCategory groups tradable goods for listing and gateway queries.
type ItemCategory string

const (
	CategoryRawMaterial  ItemCategory = "raw_material"
	CategoryFoodstuff    ItemCategory = "foodstuff"
	CategoryManufactured ItemCategory = "manufactured"
	CategoryLuxury       ItemCategory = "luxury"
)

// PriceHistoryLimit bounds the per-item price history.
const PriceHistoryLimit = 100

// MarketItem is a tradable good. Items are created once at startup from the
// static item definitions and never destroyed; supply, demand, and price are
// mutated only by ledger cycle updates and confirmed/optimistic trades.
type MarketItem struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Category           ItemCategory `json:"category"`
	BasePrice          float64      `json:"basePrice"`
	ProductionModifier float64      `json:"productionCostModifier"`
	CurrentPrice       float64      `json:"currentPrice"`
	Supply             float64      `json:"supply"`
	Demand             float64      `json:"demand"`
	Volatility         float64      `json:"volatility"` // 0..1
	LastUpdated        time.Time    `json:"lastUpdated"`
	History            []PricePoint `json:"-"`
}

// CostBasis is the effective production cost: base price scaled by the
// production-cost modifier. The price floor is half of this value.
func (m *MarketItem) CostBasis() float64 {
	return m.BasePrice * m.ProductionModifier
}

// PricePoint is one entry in an item's append-only, bounded price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// MarketCondition classifies the overall state of the market, derived from
// the ledger-wide mean demand/supply ratio. It scales route revenue during
// cycle processing.
type MarketCondition string

const (
	ConditionBoom      MarketCondition = "boom"
	ConditionNormal    MarketCondition = "normal"
	ConditionRecession MarketCondition = "recession"
	ConditionCrisis    MarketCondition = "crisis"
)

// Multiplier returns the revenue multiplier for the condition.
func (c MarketCondition) Multiplier() float64 {
	switch c {
	case ConditionBoom:
		return 1.3
	case ConditionRecession:
		return 0.7
	case ConditionCrisis:
		return 0.5
	default:
		return 1.0
	}
}
