/*
loan.go - Loan product terms and lifecycle

PURPOSE:
  The Loan carries the immutable product terms (how the schedule is shaped,
  how payments allocate, how interest is measured) and a derived lifecycle
  status. Monetary state never lives here - it is always a fold over the
  transaction log (see projector.go).

LIFECYCLE:
  created -> approved -> active (first disbursement) -> closed
  An overpaid loan stays active until the overpayment is consumed or
  refunded; writing off also closes the loan.
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT ENUMS
// =============================================================================

type AmortizationType string

const (
	EqualInstallment AmortizationType = "equal_installment"
	EqualPrincipal   AmortizationType = "equal_principal"
)

type InterestType string

const (
	InterestFlat             InterestType = "flat"
	InterestDecliningBalance InterestType = "declining_balance"
)

type RepaymentFrequency string

const (
	Monthly RepaymentFrequency = "monthly"
	Weekly  RepaymentFrequency = "weekly"
)

// PeriodsPerYear returns the nominal period count used by the annuity rate.
func (f RepaymentFrequency) PeriodsPerYear() int {
	if f == Weekly {
		return 52
	}
	return 12
}

// Next returns the due date one repayment period after d.
func (f RepaymentFrequency) Next(d Date) Date {
	if f == Weekly {
		return d.AddDays(7)
	}
	return d.AddMonths(1)
}

type LoanStatus string

const (
	StatusCreated    LoanStatus = "created"
	StatusApproved   LoanStatus = "approved"
	StatusActive     LoanStatus = "active"
	StatusOverpaid   LoanStatus = "overpaid"
	StatusClosed     LoanStatus = "closed"
	StatusWrittenOff LoanStatus = "written_off"
)

// =============================================================================
// PRODUCT TERMS
// =============================================================================

// ProductTerms is the immutable product configuration of a loan.
type ProductTerms struct {
	Principal  Money
	AnnualRate decimal.Decimal // nominal annual rate in percent, e.g. 9.99
	Periods    int
	Frequency  RepaymentFrequency

	Amortization AmortizationType
	Interest     InterestType
	DayCount     DayCountConvention

	MultiTranche          bool
	InterestRecalculation bool

	// InterestRefundTypes lists transaction subtypes that trigger an
	// automatic interest refund when applied (e.g. merchant issued refund).
	InterestRefundTypes []TransactionType

	AllocationRule       AllocationRule
	CreditAllocationRule CreditAllocationRule
}

// RefundsInterestFor reports whether the subtype triggers an interest refund.
func (t ProductTerms) RefundsInterestFor(tt TransactionType) bool {
	for _, rt := range t.InterestRefundTypes {
		if rt == tt {
			return true
		}
	}
	return false
}

// =============================================================================
// LOAN
// =============================================================================

type Loan struct {
	ID    LoanID
	Terms ProductTerms

	// StartDate is the first disbursement date; zero until activation.
	StartDate Date
	// FirstRepaymentDate defaults to one period after StartDate when unset.
	FirstRepaymentDate Date

	Status    LoanStatus
	CreatedAt time.Time
}

// MaturityDate is the last scheduled due date.
func (l *Loan) MaturityDate() Date {
	d := l.firstDueDate()
	for i := 1; i < l.Terms.Periods; i++ {
		d = l.Terms.Frequency.Next(d)
	}
	return d
}

func (l *Loan) firstDueDate() Date {
	if !l.FirstRepaymentDate.IsZero() {
		return l.FirstRepaymentDate
	}
	return l.Terms.Frequency.Next(l.StartDate)
}

// DueDates returns the scheduled due dates in order.
func (l *Loan) DueDates() []Date {
	dates := make([]Date, 0, l.Terms.Periods)
	d := l.firstDueDate()
	for i := 0; i < l.Terms.Periods; i++ {
		dates = append(dates, d)
		d = l.Terms.Frequency.Next(d)
	}
	return dates
}
