/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Monetary amounts travel as fixed two-decimal strings ("1000.00") and
  dates as ISO day strings ("2021-01-01"). Both parse through the loan
  package so the API cannot drift from the engine's precision rules.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/product.go: TermsJSON type
*/
package api

import (
	"time"

	"github.com/fairlend/loan-engine/factory"
	"github.com/fairlend/loan-engine/loan"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateLoanRequest is the request to create a loan.
type CreateLoanRequest struct {
	ID                 string            `json:"id,omitempty"`
	Terms              factory.TermsJSON `json:"terms"`
	FirstRepaymentDate string            `json:"first_repayment_date,omitempty"`
}

// LoanDTO represents a loan record in API responses.
type LoanDTO struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	StartDate          string `json:"start_date,omitempty"`
	FirstRepaymentDate string `json:"first_repayment_date,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// DisbursementRequest posts a disbursement (tranche) to a loan.
type DisbursementRequest struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// RepaymentRequest posts a repayment-class transaction.
type RepaymentRequest struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
	// Subtype selects the transaction type; defaults to "repayment".
	Subtype string `json:"subtype,omitempty"`
}

// ChargeRequest posts a fee or penalty charge.
type ChargeRequest struct {
	Date   string `json:"date"`
	Type   string `json:"type"` // "fee" or "penalty"
	Amount string `json:"amount"`
}

// AdjustChargeRequest lowers a charge to a new amount.
type AdjustChargeRequest struct {
	Date      string `json:"date"`
	NewAmount string `json:"new_amount"`
}

// ChargebackRequest reverses a cleared payment via the card network.
type ChargebackRequest struct {
	TransactionID string   `json:"transaction_id"`
	Date          string   `json:"date"`
	Amount        string   `json:"amount"`
	CreditOrder   []string `json:"credit_order,omitempty"`
}

// ReversalRequest reverses a transaction and replays dependents.
type ReversalRequest struct {
	Date string `json:"date"`
}

// PauseRequest creates or updates an interest pause.
type PauseRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PauseDTO represents an interest pause.
type PauseDTO struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// CloseOfBusinessRequest triggers the daily sweep for all loans.
type CloseOfBusinessRequest struct {
	Date string `json:"date"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID               string        `json:"id"`
	LoanID           string        `json:"loan_id"`
	Type             string        `json:"type"`
	Date             string        `json:"date"`
	Sequence         int           `json:"sequence"`
	Amount           string        `json:"amount"`
	Portions         loan.Portions `json:"portions"`
	Overpayment      string        `json:"overpayment"`
	ChargeID         string        `json:"charge_id,omitempty"`
	Reversed         bool          `json:"reversed"`
	ManuallyReversed bool          `json:"manually_reversed,omitempty"`
	CreatedAt        string        `json:"created_at,omitempty"`
}

// InstallmentDTO represents one repayment period of the derived schedule.
type InstallmentDTO struct {
	Number      int           `json:"number"`
	DueDate     string        `json:"due_date"`
	Due         loan.Portions `json:"due"`
	Paid        loan.Portions `json:"paid"`
	Outstanding loan.Portions `json:"outstanding"`
	FullyRepaid bool          `json:"fully_repaid"`
	Additional  bool          `json:"additional,omitempty"`
}

// ChargeDTO represents a charge record.
type ChargeDTO struct {
	ID             string `json:"id"`
	LoanID         string `json:"loan_id"`
	Type           string `json:"type"`
	Date           string `json:"date"`
	Amount         string `json:"amount"`
	OriginalAmount string `json:"original_amount"`
}

// JournalEntryDTO is one side of a derived double-entry posting.
type JournalEntryDTO struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLoanDTO(l loan.Loan) LoanDTO {
	dto := LoanDTO{
		ID:        string(l.ID),
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
	if !l.StartDate.IsZero() {
		dto.StartDate = l.StartDate.String()
	}
	if !l.FirstRepaymentDate.IsZero() {
		dto.FirstRepaymentDate = l.FirstRepaymentDate.String()
	}
	return dto
}

func toTransactionDTO(tx loan.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:               string(tx.ID),
		LoanID:           string(tx.LoanID),
		Type:             string(tx.Type),
		Date:             tx.Date.String(),
		Sequence:         tx.Sequence,
		Amount:           tx.Amount.String(),
		Portions:         tx.Portions,
		Overpayment:      tx.Overpayment.String(),
		ChargeID:         string(tx.ChargeID),
		Reversed:         tx.Reversed,
		ManuallyReversed: tx.ManuallyReversed,
		CreatedAt:        tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []loan.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toInstallmentDTOs(installments []loan.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(installments))
	for i, inst := range installments {
		dtos[i] = InstallmentDTO{
			Number:      inst.Number,
			DueDate:     inst.DueDate.String(),
			Due:         inst.Due,
			Paid:        inst.Paid,
			Outstanding: inst.Outstanding(),
			FullyRepaid: inst.FullyRepaid(),
			Additional:  inst.Additional,
		}
	}
	return dtos
}

func toChargeDTO(c loan.Charge) ChargeDTO {
	return ChargeDTO{
		ID:             string(c.ID),
		LoanID:         string(c.LoanID),
		Type:           string(c.Type),
		Date:           c.Date.String(),
		Amount:         c.Amount.String(),
		OriginalAmount: c.OriginalAmount.String(),
	}
}

func toJournalDTOs(entries []loan.JournalEntry) []JournalEntryDTO {
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = JournalEntryDTO{
			Account: string(e.Account),
			Side:    string(e.Side),
			Amount:  e.Amount.String(),
		}
	}
	return dtos
}
