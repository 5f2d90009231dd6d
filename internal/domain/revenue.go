package domain

import "time"

// RevenueType classifies a revenue source.
type RevenueType string

const (
	RevenueRouteIncome RevenueType = "route_income"
	RevenueCharter     RevenueType = "charter"
)

// ModifierType identifies one multiplicative revenue adjustment. Modifiers
// are applied in a fixed order: efficiency, market condition, competition.
type ModifierType string

const (
	ModifierEfficiency      ModifierType = "efficiency"
	ModifierMarketCondition ModifierType = "market_condition"
	ModifierCompetition     ModifierType = "competition"
)

// Modifier is a single multiplicative adjustment, recorded individually so
// the final amount of every revenue source can be audited.
type Modifier struct {
	Type        ModifierType `json:"type"`
	Multiplier  float64      `json:"multiplier"`
	Description string       `json:"description"`
}

// RevenueSource is an immutable audit record of income attributed to one
// route/asset pair during a cycle. FinalAmount is BaseAmount times the
// product of all modifier multipliers.
type RevenueSource struct {
	ID          string      `json:"id"`
	RouteID     string      `json:"routeId"`
	AssetID     string      `json:"assetId"`
	Type        RevenueType `json:"type"`
	BaseAmount  float64     `json:"baseAmount"`
	Modifiers   []Modifier  `json:"modifiers"`
	FinalAmount float64     `json:"finalAmount"`
}

// ExpenseType classifies an expense.
type ExpenseType string

const (
	ExpenseMaintenance ExpenseType = "maintenance"
	ExpenseFuel        ExpenseType = "fuel"
	ExpenseCrew        ExpenseType = "crew"
	ExpenseInsurance   ExpenseType = "insurance"
	ExpensePortFees    ExpenseType = "port_fees"
	ExpenseLoanPayment ExpenseType = "loan_payment"
)

// Expense is an immutable audit record of one expense incurred during a
// cycle. RouteID and AssetID are empty for expenses not tied to a route.
type Expense struct {
	Type    ExpenseType `json:"type"`
	Amount  float64     `json:"amount"`
	RouteID string      `json:"routeId,omitempty"`
	AssetID string      `json:"assetId,omitempty"`
}

// CycleStatus is the processing state of a revenue cycle. At most one cycle
// is PROCESSING at any time.
type CycleStatus string

const (
	CycleStatusPending    CycleStatus = "PENDING"
	CycleStatusProcessing CycleStatus = "PROCESSING"
	CycleStatusCompleted  CycleStatus = "COMPLETED"
)

// RoutePerfEntry ranks one route in a cycle summary.
type RoutePerfEntry struct {
	RouteID string  `json:"routeId"`
	Revenue float64 `json:"revenue"`
	Expense float64 `json:"expense"`
	Profit  float64 `json:"profit"`
}

// CycleSummary aggregates a completed cycle for display and ledger posting.
type CycleSummary struct {
	TotalRevenue     float64                 `json:"totalRevenue"`
	TotalExpenses    float64                 `json:"totalExpenses"`
	RevenueByType    map[RevenueType]float64 `json:"revenueByType"`
	ExpensesByType   map[ExpenseType]float64 `json:"expensesByType"`
	TopRoutes        []RoutePerfEntry        `json:"topRoutes"` // top 5 by profit
	AssetUtilization float64                 `json:"assetUtilization"`
}

// RevenueCycle is one settlement pass over elapsed time. Completed cycles
// are appended to a bounded history and never mutated afterwards.
type RevenueCycle struct {
	ID        string          `json:"id"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Status    CycleStatus     `json:"status"`
	Revenues  []RevenueSource `json:"revenues"`
	Expenses  []Expense       `json:"expenses"`
	NetIncome float64         `json:"netIncome"`
	Summary   CycleSummary    `json:"summary"`
}

// CycleHistoryLimit bounds the retained completed-cycle history.
const CycleHistoryLimit = 100
