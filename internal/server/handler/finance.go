package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/seafarergames/tradewinds/internal/finance"
)

// FinanceHandler exposes the financial ledger: summary, loans, and the
// transaction record history.
type FinanceHandler struct {
	ledger *finance.Ledger
	logger *slog.Logger
}

// NewFinanceHandler creates a FinanceHandler backed by the given ledger.
func NewFinanceHandler(ledger *finance.Ledger, logger *slog.Logger) *FinanceHandler {
	return &FinanceHandler{
		ledger: ledger,
		logger: logHandler(logger, "finance"),
	}
}

// GetSummary returns the current financial position: cash, totals, margin,
// net worth, credit rating, and loans.
// GET /api/finance/summary
func (h *FinanceHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

// loanRequest is the JSON body for loan applications.
type loanRequest struct {
	Principal float64 `json:"principal"`
	TermDays  int     `json:"termDays"`
}

// ApplyForLoan underwrites and grants a loan at the rate implied by the
// current credit rating. Overleveraged applicants are rejected.
// POST /api/finance/loans
func (h *FinanceHandler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	loan, err := h.ledger.ApplyForLoan(req.Principal, req.TermDays)
	if err != nil {
		h.logger.Warn("loan application rejected",
			slog.Float64("principal", req.Principal),
			slog.Int("term_days", req.TermDays),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

// MakeLoanPayment applies one monthly installment to a loan. The final
// installment may be smaller than the regular payment.
// POST /api/finance/loans/{id}/payments
func (h *FinanceHandler) MakeLoanPayment(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	loan, err := h.ledger.MakeLoanPayment(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// ListRecords returns the most recent financial records, newest first.
// GET /api/finance/records?limit=100
func (h *FinanceHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)
	records := h.ledger.Records(limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
