/*
handlers.go - HTTP API handlers for the loan ledger engine

PURPOSE:
  Exposes the loan engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. Handlers stay thin:
  every invariant lives in the loan package.

ENDPOINTS:
  Loans:
    GET    /api/loans                   List loan ids
    POST   /api/loans                   Create loan from product terms JSON
    GET    /api/loans/{id}              Get loan record
    POST   /api/loans/{id}/approve      Approve a created loan
    GET    /api/loans/{id}/summary      Derived balances and schedule
    GET    /api/loans/{id}/schedule     Derived installment list
    GET    /api/loans/{id}/transactions Full transaction log

  Postings:
    POST   /api/loans/{id}/disbursements
    POST   /api/loans/{id}/repayments
    POST   /api/loans/{id}/charges
    POST   /api/loans/{id}/charges/{chargeID}/adjust
    POST   /api/loans/{id}/chargebacks
    POST   /api/loans/{id}/transactions/{txID}/reverse
    GET    /api/loans/{id}/transactions/{txID}/journal

  Pauses:
    GET    /api/loans/{id}/pauses
    POST   /api/loans/{id}/pauses
    PUT    /api/loans/{id}/pauses/{pauseID}
    DELETE /api/loans/{id}/pauses/{pauseID}

  Admin:
    POST   /api/admin/close-of-business

ERROR HANDLING:
  Domain error categories map to HTTP status:
  - loan.IsValidation    -> 400
  - loan.IsNotFound      -> 404
  - loan.IsStateConflict -> 409
  - anything else        -> 500

BUSINESS DATES:
  Every posting carries an explicit date. The server clock never decides
  which day a monetary event belongs to.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - loan/engine.go: The operation surface these handlers call
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairlend/loan-engine/factory"
	"github.com/fairlend/loan-engine/loan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *loan.Engine
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *loan.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loan ids.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Engine.ListLoans(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list loans", err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateLoan creates a loan from product terms JSON.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	terms, err := factory.FromJSON(req.Terms)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product terms", err)
		return
	}

	var firstRepayment loan.Date
	if req.FirstRepaymentDate != "" {
		firstRepayment, err = loan.ParseDate(req.FirstRepaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid first_repayment_date (use YYYY-MM-DD)", err)
			return
		}
	}

	created, err := h.Engine.CreateLoan(r.Context(), loan.LoanID(req.ID), terms, firstRepayment)
	if err != nil {
		writeDomainError(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(created))
}

// GetLoan returns the stored loan record.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	l, err := h.Engine.GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// ApproveLoan moves a created loan to approved.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	l, err := h.Engine.ApproveLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to approve loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// GetSummary returns the derived read model of a loan.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	summary, err := h.Engine.GetSummary(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetSchedule returns the derived installment list.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	installments, err := h.Engine.GetSchedule(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(installments))
}

// GetTransactions returns the full transaction log, reversed rows included.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	txs, err := h.Engine.ListTransactions(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// POSTING HANDLERS
// =============================================================================

// PostDisbursement applies a disbursement (first or later tranche).
func (h *Handler) PostDisbursement(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))

	var req DisbursementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, amount, ok := parseDateAmount(w, req.Date, req.Amount)
	if !ok {
		return
	}

	tx, err := h.Engine.ApplyDisbursement(r.Context(), id, date, amount)
	if err != nil {
		writeDomainError(w, "Failed to apply disbursement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// PostRepayment applies a repayment-class transaction.
func (h *Handler) PostRepayment(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))

	var req RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, amount, ok := parseDateAmount(w, req.Date, req.Amount)
	if !ok {
		return
	}

	subtype := loan.TxRepayment
	if req.Subtype != "" {
		subtype = loan.TransactionType(req.Subtype)
	}

	tx, err := h.Engine.ApplyRepayment(r.Context(), id, date, amount, subtype)
	if err != nil {
		writeDomainError(w, "Failed to apply repayment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// PostCharge applies a fee or penalty charge.
func (h *Handler) PostCharge(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))

	var req ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, amount, ok := parseDateAmount(w, req.Date, req.Amount)
	if !ok {
		return
	}

	var chargeType loan.ChargeType
	switch req.Type {
	case string(loan.ChargeFee):
		chargeType = loan.ChargeFee
	case string(loan.ChargePenalty):
		chargeType = loan.ChargePenalty
	default:
		writeError(w, http.StatusBadRequest, "Charge type must be fee or penalty", nil)
		return
	}

	charge, err := h.Engine.ApplyCharge(r.Context(), id, date, chargeType, amount)
	if err != nil {
		writeDomainError(w, "Failed to apply charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChargeDTO(charge))
}

// AdjustCharge lowers a charge to a new amount.
func (h *Handler) AdjustCharge(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	chargeID := loan.ChargeID(chi.URLParam(r, "chargeID"))

	var req AdjustChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, newAmount, ok := parseDateAmountAllowZero(w, req.Date, req.NewAmount)
	if !ok {
		return
	}

	tx, err := h.Engine.AdjustCharge(r.Context(), id, chargeID, date, newAmount)
	if err != nil {
		writeDomainError(w, "Failed to adjust charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// PostChargeback applies a chargeback against a cleared payment.
func (h *Handler) PostChargeback(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))

	var req ChargebackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, amount, ok := parseDateAmount(w, req.Date, req.Amount)
	if !ok {
		return
	}

	var creditOrder []loan.Component
	for _, name := range req.CreditOrder {
		switch c := loan.Component(name); c {
		case loan.ComponentPrincipal, loan.ComponentInterest, loan.ComponentFee, loan.ComponentPenalty:
			creditOrder = append(creditOrder, c)
		default:
			writeError(w, http.StatusBadRequest, "Unknown credit order component: "+name, nil)
			return
		}
	}

	tx, err := h.Engine.ApplyChargeback(r.Context(), id, loan.TransactionID(req.TransactionID), date, amount, creditOrder)
	if err != nil {
		writeDomainError(w, "Failed to apply chargeback", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ReverseTransaction reverses a transaction and replays dependents.
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	txID := loan.TransactionID(chi.URLParam(r, "txID"))

	var req ReversalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := loan.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Engine.ReverseTransaction(r.Context(), id, txID, date); err != nil {
		writeDomainError(w, "Failed to reverse transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetJournal returns the derived journal entries of a transaction.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	txID := loan.TransactionID(chi.URLParam(r, "txID"))

	entries, err := h.Engine.JournalFor(r.Context(), id, txID)
	if err != nil {
		writeDomainError(w, "Failed to derive journal", err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalDTOs(entries))
}

// =============================================================================
// PAUSE HANDLERS
// =============================================================================

// ListPauses returns the loan's interest pauses.
func (h *Handler) ListPauses(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	pauses, err := h.Engine.ListInterestPauses(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list pauses", err)
		return
	}
	dtos := make([]PauseDTO, len(pauses))
	for i, p := range pauses {
		dtos[i] = PauseDTO{ID: string(p.ID), Start: p.Start.String(), End: p.End.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePause adds an interest pause.
func (h *Handler) CreatePause(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))

	start, end, ok := decodePauseRange(w, r)
	if !ok {
		return
	}

	pauseID, err := h.Engine.AddInterestPause(r.Context(), id, start, end)
	if err != nil {
		writeDomainError(w, "Failed to add pause", err)
		return
	}
	writeJSON(w, http.StatusCreated, PauseDTO{ID: string(pauseID), Start: start.String(), End: end.String()})
}

// UpdatePause moves an existing pause to a new range.
func (h *Handler) UpdatePause(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	pauseID := loan.PauseID(chi.URLParam(r, "pauseID"))

	start, end, ok := decodePauseRange(w, r)
	if !ok {
		return
	}

	if err := h.Engine.UpdateInterestPause(r.Context(), id, pauseID, start, end); err != nil {
		writeDomainError(w, "Failed to update pause", err)
		return
	}
	writeJSON(w, http.StatusOK, PauseDTO{ID: string(pauseID), Start: start.String(), End: end.String()})
}

// DeletePause removes a pause.
func (h *Handler) DeletePause(w http.ResponseWriter, r *http.Request) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	pauseID := loan.PauseID(chi.URLParam(r, "pauseID"))

	if err := h.Engine.DeleteInterestPause(r.Context(), id, pauseID); err != nil {
		writeDomainError(w, "Failed to delete pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePauseRange(w http.ResponseWriter, r *http.Request) (loan.Date, loan.Date, bool) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return loan.Date{}, loan.Date{}, false
	}
	start, err := loan.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return loan.Date{}, loan.Date{}, false
	}
	end, err := loan.ParseDate(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return loan.Date{}, loan.Date{}, false
	}
	return start, end, true
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunCloseOfBusiness sweeps all loans for the given business date.
func (h *Handler) RunCloseOfBusiness(w http.ResponseWriter, r *http.Request) {
	var req CloseOfBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := loan.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Engine.RunCloseOfBusiness(r.Context(), date); err != nil {
		writeDomainError(w, "Close of business failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "date": date.String()})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDateAmount(w http.ResponseWriter, dateStr, amountStr string) (loan.Date, loan.Money, bool) {
	date, err := loan.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return loan.Date{}, loan.Money{}, false
	}
	amount, err := loan.ParseMoney(amountStr)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be a positive decimal", err)
		return loan.Date{}, loan.Money{}, false
	}
	return date, amount, true
}

func parseDateAmountAllowZero(w http.ResponseWriter, dateStr, amountStr string) (loan.Date, loan.Money, bool) {
	date, err := loan.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return loan.Date{}, loan.Money{}, false
	}
	amount, err := loan.ParseMoney(amountStr)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must be a non-negative decimal", err)
		return loan.Date{}, loan.Money{}, false
	}
	return date, amount, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the loan error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case loan.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case loan.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case loan.IsStateConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
