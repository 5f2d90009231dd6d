// Package finance tracks the player's cash position, running revenue and
// expense totals, credit rating and loans.
package finance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/trading"
)

var _ trading.Treasury = (*Ledger)(nil)

// recordHistoryLimit bounds the retained ledger entries. Older entries are
// dropped; the running totals keep the full picture.
const recordHistoryLimit = 1000

// maxDebtToNetWorth is the loan underwriting cap: a new loan is rejected
// when (active debt + principal) / net worth would exceed it.
const maxDebtToNetWorth = 0.8

// ratingBand maps a credit rating to its underwriting thresholds and the
// interest rate offered at that grade.
type ratingBand struct {
	rating          domain.CreditRating
	maxDebtRatio    float64
	minPaymentScore float64
	interestRate    float64
}

// ratingTable is evaluated most-restrictive-first: the first band whose
// thresholds both hold wins. The last band is the unconditional floor.
var ratingTable = []ratingBand{
	{domain.RatingAAA, 0.10, 0.95, 0.05},
	{domain.RatingAA, 0.20, 0.90, 0.06},
	{domain.RatingA, 0.30, 0.85, 0.08},
	{domain.RatingBBB, 0.40, 0.75, 0.10},
	{domain.RatingBB, 0.50, 0.65, 0.13},
	{domain.RatingB, 0.60, 0.50, 0.16},
	{domain.RatingCCC, 0.80, 0.30, 0.22},
	{domain.RatingD, 0, 0, 0.35},
}

// Config holds the ledger's starting position.
type Config struct {
	// StartingCash is the player's opening balance.
	StartingCash float64

	// FleetValuation is the appraised value of non-cash assets, used for
	// net worth and the debt-to-asset ratio. Static for now; fleet upgrades
	// are managed outside this core.
	FleetValuation float64
}

// Ledger is the player's financial ledger. All mutating operations hold the
// ledger lock for their full duration, so each posting is atomic.
type Ledger struct {
	logger *slog.Logger

	mu             sync.Mutex
	cash           float64
	fleetValuation float64
	totalRevenue   float64
	totalExpenses  float64
	rating         domain.CreditRating
	loans          []domain.Loan
	records        []domain.FinancialRecord
	paidOffLoans   int
	defaultedLoans int

	now func() time.Time
}

// NewLedger creates a ledger with the configured opening position and a
// fresh AAA rating (no debt, no payment history).
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	l := &Ledger{
		logger:         logger.With(slog.String("component", "finance")),
		cash:           cfg.StartingCash,
		fleetValuation: cfg.FleetValuation,
		now:            func() time.Time { return time.Now().UTC() },
	}
	l.rating = l.computeRating()
	return l
}

// Record posts one entry: income adds to cash and the revenue total, expense
// subtracts from cash and adds to the expense total. The credit rating is
// recomputed because the cash movement shifts the debt-to-asset ratio.
func (l *Ledger) Record(t domain.RecordType, category string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.post(t, category, amount, "")
}

// post appends a ledger entry. Callers hold l.mu.
func (l *Ledger) post(t domain.RecordType, category string, amount float64, description string) {
	switch t {
	case domain.RecordIncome:
		l.cash += amount
		l.totalRevenue += amount
	case domain.RecordExpense:
		l.cash -= amount
		l.totalExpenses += amount
	}

	l.records = append(l.records, domain.FinancialRecord{
		ID:          uuid.New().String(),
		Type:        t,
		Category:    category,
		Amount:      amount,
		Description: description,
		Timestamp:   l.now(),
	})
	if len(l.records) > recordHistoryLimit {
		l.records = l.records[len(l.records)-recordHistoryLimit:]
	}

	l.rating = l.computeRating()
}

// Funds returns the player's cash balance. The ledger is single-player; the
// actor id is accepted for interface compatibility with the trade
// coordinator and ignored.
func (l *Ledger) Funds(_ string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// RecordTrade posts a confirmed trade: buys are goods purchases, sells are
// goods sales.
func (l *Ledger) RecordTrade(tx domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch tx.Kind {
	case domain.TradeBuy:
		l.post(domain.RecordExpense, "goods_purchase", tx.TotalPrice, tx.ItemID)
	case domain.TradeSell:
		l.post(domain.RecordIncome, "goods_sale", tx.TotalPrice, tx.ItemID)
	}
}

// ApplyForLoan underwrites and books a new loan. The principal is credited
// to cash immediately. Returns ErrLoanLimitExceeded when the resulting debt
// would exceed the underwriting cap relative to net worth.
func (l *Ledger) ApplyForLoan(principal float64, termDays int) (domain.Loan, error) {
	if principal <= 0 {
		return domain.Loan{}, &domain.ValidationError{
			Reason: "loan principal must be positive",
			Err:    domain.ErrInvalidQuantity,
		}
	}
	if termDays < 30 {
		return domain.Loan{}, &domain.ValidationError{
			Reason: "loan term must be at least 30 days",
			Err:    domain.ErrInvalidQuantity,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepDefaults()

	netWorth := l.netWorth()
	debt := l.activeDebt()
	if netWorth <= 0 || (debt+principal)/netWorth > maxDebtToNetWorth {
		return domain.Loan{}, domain.ErrLoanLimitExceeded
	}

	rate := interestRateFor(l.rating)
	loan := domain.Loan{
		ID:             uuid.New().String(),
		Principal:      principal,
		Balance:        principal * (1 + rate),
		InterestRate:   rate,
		TermDays:       termDays,
		MonthlyPayment: principal * (1 + rate) / (float64(termDays) / 30),
		Status:         domain.LoanActive,
		StartedAt:      l.now(),
	}
	l.loans = append(l.loans, loan)
	l.cash += principal
	l.rating = l.computeRating()

	l.logger.Info("loan issued",
		slog.String("loan_id", loan.ID),
		slog.Float64("principal", principal),
		slog.Float64("rate", rate),
		slog.String("rating", string(l.rating)),
	)
	return loan, nil
}

// MakeLoanPayment pays one installment (or the remaining balance if
// smaller) against an active loan. A loan whose balance reaches zero is
// marked paid off, which improves the payment history score.
func (l *Ledger) MakeLoanPayment(loanID string) (domain.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepDefaults()

	idx := -1
	for i := range l.loans {
		if l.loans[i].ID == loanID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Loan{}, domain.ErrLoanNotFound
	}
	loan := &l.loans[idx]
	if loan.Status != domain.LoanActive {
		return domain.Loan{}, domain.ErrLoanNotActive
	}

	payment := loan.MonthlyPayment
	if loan.Balance < payment {
		payment = loan.Balance
	}
	if l.cash < payment {
		return domain.Loan{}, domain.ErrInsufficientFunds
	}

	loan.Balance -= payment
	loan.PaymentsMade++
	if loan.Balance <= 1e-9 {
		loan.Balance = 0
		loan.Status = domain.LoanPaidOff
		l.paidOffLoans++
	}

	l.post(domain.RecordExpense, string(domain.ExpenseLoanPayment), payment, loan.ID)
	return *loan, nil
}

// Snapshot returns a read-model of the current position.
func (l *Ledger) Snapshot() domain.FinanceSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepDefaults()

	loans := make([]domain.Loan, len(l.loans))
	copy(loans, l.loans)

	return domain.FinanceSnapshot{
		Cash:          l.cash,
		TotalRevenue:  l.totalRevenue,
		TotalExpenses: l.totalExpenses,
		ProfitMargin:  l.profitMargin(),
		NetWorth:      l.netWorth(),
		ActiveDebt:    l.activeDebt(),
		CreditRating:  l.rating,
		Loans:         loans,
	}
}

// Records returns the most recent ledger entries, newest last, up to limit
// (0 means all retained).
func (l *Ledger) Records(limit int) []domain.FinancialRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.FinancialRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// profitMargin is (revenue - expenses) / revenue, zero before any revenue.
// Callers hold l.mu.
func (l *Ledger) profitMargin() float64 {
	if l.totalRevenue == 0 {
		return 0
	}
	return (l.totalRevenue - l.totalExpenses) / l.totalRevenue
}

// netWorth values the player at cash plus fleet, net of outstanding debt.
// Callers hold l.mu.
func (l *Ledger) netWorth() float64 {
	return l.cash + l.fleetValuation - l.activeDebt()
}

// activeDebt sums outstanding balances of active loans. Callers hold l.mu.
func (l *Ledger) activeDebt() float64 {
	var debt float64
	for _, loan := range l.loans {
		if loan.Status == domain.LoanActive {
			debt += loan.Balance
		}
	}
	return debt
}

// sweepDefaults marks active loans past their term with a remaining balance
// as defaulted. Callers must hold l.mu. A default counts against the payment
// history score and downgrades the rating immediately.
func (l *Ledger) sweepDefaults() {
	now := l.now()
	changed := false
	for i := range l.loans {
		loan := &l.loans[i]
		if loan.Status != domain.LoanActive {
			continue
		}
		if now.Before(loan.StartedAt.AddDate(0, 0, loan.TermDays)) {
			continue
		}
		loan.Status = domain.LoanDefaulted
		l.defaultedLoans++
		changed = true
		l.logger.Warn("loan defaulted",
			slog.String("loan_id", loan.ID),
			slog.Float64("balance", loan.Balance),
		)
	}
	if changed {
		l.rating = l.computeRating()
	}
}

// paymentHistoryScore is successful payoffs over resolved loans, 1.0 when
// no loan has resolved yet. Callers hold l.mu.
func (l *Ledger) paymentHistoryScore() float64 {
	resolved := l.paidOffLoans + l.defaultedLoans
	if resolved == 0 {
		return 1.0
	}
	return float64(l.paidOffLoans) / float64(resolved)
}

// computeRating walks the rating table most-restrictive-first and returns
// the first grade whose debt-ratio and payment-score thresholds both hold.
// Callers hold l.mu.
func (l *Ledger) computeRating() domain.CreditRating {
	assets := l.cash + l.fleetValuation
	var ratio float64
	if assets > 0 {
		ratio = l.activeDebt() / assets
	} else if l.activeDebt() > 0 {
		ratio = 1
	}
	score := l.paymentHistoryScore()

	for _, band := range ratingTable[:len(ratingTable)-1] {
		if ratio <= band.maxDebtRatio && score >= band.minPaymentScore {
			return band.rating
		}
	}
	return domain.RatingD
}

func interestRateFor(rating domain.CreditRating) float64 {
	for _, band := range ratingTable {
		if band.rating == rating {
			return band.interestRate
		}
	}
	return ratingTable[len(ratingTable)-1].interestRate
}
