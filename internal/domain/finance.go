package domain

import "time"

// RecordType is the direction of a financial ledger record.
type RecordType string

const (
	RecordIncome  RecordType = "income"
	RecordExpense RecordType = "expense"
)

// FinancialRecord is one entry in the player's financial ledger. Cycle
// results are posted as two aggregate records (income and expense) rather
// than one per source; the per-source audit trail lives in the cycle itself.
type FinancialRecord struct {
	ID          string     `json:"id"`
	Type        RecordType `json:"type"`
	Category    string     `json:"category"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// CreditRating is a discrete grade derived from debt ratio and payment
// history. It governs the interest rate offered on new loans.
type CreditRating string

const (
	RatingAAA CreditRating = "AAA"
	RatingAA  CreditRating = "AA"
	RatingA   CreditRating = "A"
	RatingBBB CreditRating = "BBB"
	RatingBB  CreditRating = "BB"
	RatingB   CreditRating = "B"
	RatingCCC CreditRating = "CCC"
	RatingD   CreditRating = "D"
)

// LoanStatus is the lifecycle state of a debt instrument.
type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanPaidOff   LoanStatus = "paid_off"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan is a fixed-term debt instrument with equal monthly payments.
type Loan struct {
	ID             string     `json:"id"`
	Principal      float64    `json:"principal"`
	Balance        float64    `json:"balance"`
	InterestRate   float64    `json:"interestRate"`
	TermDays       int        `json:"termDays"`
	MonthlyPayment float64    `json:"monthlyPayment"`
	PaymentsMade   int        `json:"paymentsMade"`
	Status         LoanStatus `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
}

// FinanceSnapshot is a read-model of the player's financial position.
type FinanceSnapshot struct {
	Cash          float64      `json:"cash"`
	TotalRevenue  float64      `json:"totalRevenue"`
	TotalExpenses float64      `json:"totalExpenses"`
	ProfitMargin  float64      `json:"profitMargin"`
	NetWorth      float64      `json:"netWorth"`
	ActiveDebt    float64      `json:"activeDebt"`
	CreditRating  CreditRating `json:"creditRating"`
	Loans         []Loan       `json:"loans"`
}
