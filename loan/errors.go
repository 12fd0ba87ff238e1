/*
errors.go - Centralized error types for the loan engine

PURPOSE:
  All engine errors in one place. Three categories mirror the operation
  contract: validation (rejected before any mutation), state conflict
  (rejected with existing state intact), not found (no mutation). Every
  rejected operation is a fully atomic no-op.

USAGE:
  Callers branch with errors.Is or the category helpers:

    if loan.IsStateConflict(err) {
        // map to HTTP 409
    }

SEE ALSO:
  - engine.go: raises these from the operation surface
  - api/handlers.go: maps categories to HTTP statuses
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for zero or negative monetary inputs.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrPauseOverlap is returned when an interest pause overlaps an
	// existing one on the same loan.
	ErrPauseOverlap = errors.New("interest pause overlaps an existing pause")

	// ErrPauseOutOfRange is returned when a pause does not fit inside the
	// loan's [start, maturity] range, or end precedes start.
	ErrPauseOutOfRange = errors.New("interest pause outside loan date range")

	// ErrTransactionUpdateNotAllowed is returned when reversing or adjusting
	// a transaction with protected downstream relations, or reversing a
	// chargeback directly. Mirrors the platform message
	// error.msg.loan.transaction.update.not.allowed.
	ErrTransactionUpdateNotAllowed = errors.New("loan transaction update not allowed")

	// ErrChargeFullyAdjusted is returned when adjusting a charge that has
	// already been adjusted down to zero.
	ErrChargeFullyAdjusted = errors.New("charge already fully adjusted")

	// ErrNotChargebackEligible is returned when the source transaction type
	// cannot be charged back.
	ErrNotChargebackEligible = errors.New("transaction type not eligible for chargeback")

	// ErrAlreadyReversed is returned when reversing a transaction twice.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrInsufficientAllocationTarget is returned when a payment remainder
	// survives after exhausting every installment under the reamortization
	// future-installment rule.
	ErrInsufficientAllocationTarget = errors.New("no allocation target for remaining amount")

	// ErrLoanNotFound / ErrTransactionNotFound / ErrPauseNotFound /
	// ErrChargeNotFound indicate an unknown identifier. No mutation occurs.
	ErrLoanNotFound        = errors.New("loan not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPauseNotFound       = errors.New("interest pause not found")
	ErrChargeNotFound      = errors.New("charge not found")

	// ErrLoanNotActive is returned when posting against a loan that has not
	// been disbursed yet.
	ErrLoanNotActive = errors.New("loan not active")

	// ErrUnbalancedJournal is returned when a derived journal entry set does
	// not balance. This is an internal invariant failure, never expected.
	ErrUnbalancedJournal = errors.New("journal entries do not balance")

	// ErrLoanExists is returned when creating a loan with a taken id.
	ErrLoanExists = errors.New("loan already exists")

	// ErrInvalidLifecycle is returned when an operation does not fit the
	// loan's current status (e.g. disbursing a closed loan).
	ErrInvalidLifecycle = errors.New("operation not allowed in current loan status")

	// ErrUnsupportedTransactionType is returned when a repayment subtype is
	// not one of the repayment-class types.
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PauseOverlapError reports which existing pause conflicts.
type PauseOverlapError struct {
	Existing InterestPause
	Start    Date
	End      Date
}

func (e *PauseOverlapError) Error() string {
	return fmt.Sprintf("pause [%s, %s] overlaps existing pause %s [%s, %s]",
		e.Start, e.End, e.Existing.ID, e.Existing.Start, e.Existing.End)
}

func (e *PauseOverlapError) Unwrap() error { return ErrPauseOverlap }

// ProtectedRelationError reports the relation that blocks a reversal.
type ProtectedRelationError struct {
	Transaction TransactionID
	Relation    RelationType
	Related     TransactionID
}

func (e *ProtectedRelationError) Error() string {
	return fmt.Sprintf("transaction %s has protected downstream relation %s to %s",
		e.Transaction, e.Relation, e.Related)
}

func (e *ProtectedRelationError) Unwrap() error { return ErrTransactionUpdateNotAllowed }

// =============================================================================
// CATEGORY HELPERS
// =============================================================================

// IsValidation reports whether the error is due to invalid input. The loan
// state is untouched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrPauseOverlap) ||
		errors.Is(err, ErrPauseOutOfRange) ||
		errors.Is(err, ErrInsufficientAllocationTarget) ||
		errors.Is(err, ErrUnsupportedTransactionType)
}

// IsStateConflict reports whether the operation was rejected because it
// would contradict existing ledger state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrTransactionUpdateNotAllowed) ||
		errors.Is(err, ErrChargeFullyAdjusted) ||
		errors.Is(err, ErrNotChargebackEligible) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrLoanNotActive) ||
		errors.Is(err, ErrLoanExists) ||
		errors.Is(err, ErrInvalidLifecycle)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrPauseNotFound) ||
		errors.Is(err, ErrChargeNotFound)
}
