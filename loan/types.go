/*
Package loan provides the core loan ledger and amortization engine.

PURPOSE:
  This package contains the types and algorithms that turn a sequence of
  dated monetary events against a loan into a consistent repayment schedule
  and a double-entry accounting trail. The transaction log is the source of
  truth; the schedule is always a derived view rebuilt by replaying the log.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary quantity backed by decimal.Decimal
  - Portions: A per-component {principal, interest, fee, penalty} breakdown
  - Transaction: An immutable ledger entry recording a monetary event
  - Relation: A typed edge between two transactions (chargeback, replay, ...)
  - Loan/Transaction/Pause/Charge IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only flagged reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing loan/transaction IDs
  4. Derivability: Installments are never persisted truth - always a fold

SEE ALSO:
  - ledger.go: Transaction log and relation graph
  - projector.go: Schedule as a fold over the log
  - engine.go: The operation surface collaborators call
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary quantity (single currency, minor-unit rounding)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money       { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money  { return Money{Value: decimal.NewFromInt(value)} }
func ZeroMoney() Money                   { return Money{Value: decimal.Zero} }

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney(), err
	}
	return Money{Value: d}, nil
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money             { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money             { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money   { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) GreaterThan(o Money) bool      { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool         { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool            { return m.Value.Equal(o.Value) }
func (m Money) Min(o Money) Money             { if m.LessThan(o) { return m }; return o }
func (m Money) Max(o Money) Money             { if m.GreaterThan(o) { return m }; return o }
func (m Money) String() string                { return m.Value.StringFixed(2) }

// Round snaps to the smallest currency unit. All monetary rounding in the
// engine funnels through here so the remainder-placement rule stays in one
// place (see schedule.go: the last period absorbs the amortization remainder).
func (m Money) Round() Money { return Money{Value: m.Value.Round(2)} }

// MarshalJSON renders the amount as a fixed two-decimal JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Value.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	m.Value = d
	return nil
}

// =============================================================================
// COMPONENTS - The four repayment components of an installment
// =============================================================================

type Component string

const (
	ComponentPrincipal Component = "principal"
	ComponentInterest  Component = "interest"
	ComponentFee       Component = "fee"
	ComponentPenalty   Component = "penalty"
)

// Portions is a per-component monetary breakdown. Used for installment
// due/paid amounts and for transaction component splits.
type Portions struct {
	Principal Money `json:"principal"`
	Interest  Money `json:"interest"`
	Fee       Money `json:"fee"`
	Penalty   Money `json:"penalty"`
}

func ZeroPortions() Portions {
	return Portions{
		Principal: ZeroMoney(),
		Interest:  ZeroMoney(),
		Fee:       ZeroMoney(),
		Penalty:   ZeroMoney(),
	}
}

func (p Portions) Get(c Component) Money {
	switch c {
	case ComponentPrincipal:
		return p.Principal
	case ComponentInterest:
		return p.Interest
	case ComponentFee:
		return p.Fee
	default:
		return p.Penalty
	}
}

func (p Portions) With(c Component, m Money) Portions {
	switch c {
	case ComponentPrincipal:
		p.Principal = m
	case ComponentInterest:
		p.Interest = m
	case ComponentFee:
		p.Fee = m
	default:
		p.Penalty = m
	}
	return p
}

func (p Portions) Add(o Portions) Portions {
	return Portions{
		Principal: p.Principal.Add(o.Principal),
		Interest:  p.Interest.Add(o.Interest),
		Fee:       p.Fee.Add(o.Fee),
		Penalty:   p.Penalty.Add(o.Penalty),
	}
}

func (p Portions) Sub(o Portions) Portions {
	return Portions{
		Principal: p.Principal.Sub(o.Principal),
		Interest:  p.Interest.Sub(o.Interest),
		Fee:       p.Fee.Sub(o.Fee),
		Penalty:   p.Penalty.Sub(o.Penalty),
	}
}

func (p Portions) Total() Money {
	return p.Principal.Add(p.Interest).Add(p.Fee).Add(p.Penalty)
}

func (p Portions) IsZero() bool {
	return p.Principal.IsZero() && p.Interest.IsZero() && p.Fee.IsZero() && p.Penalty.IsZero()
}

func (p Portions) Equal(o Portions) bool {
	return p.Principal.Equal(o.Principal) && p.Interest.Equal(o.Interest) &&
		p.Fee.Equal(o.Fee) && p.Penalty.Equal(o.Penalty)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type TransactionID string
type PauseID string
type ChargeID string

// =============================================================================
// TRANSACTION - Immutable monetary event against a loan
// =============================================================================

type TransactionType string

const (
	TxDisbursement          TransactionType = "disbursement"
	TxRepayment             TransactionType = "repayment"
	TxWaiver                TransactionType = "waiver"
	TxMerchantIssuedRefund  TransactionType = "merchant_issued_refund"
	TxPayoutRefund          TransactionType = "payout_refund"
	TxInterestPaymentWaiver TransactionType = "interest_payment_waiver"
	TxInterestRefund        TransactionType = "interest_refund"
	TxChargeback            TransactionType = "chargeback"
	TxChargeAdjustment      TransactionType = "charge_adjustment"
	TxAccrual               TransactionType = "accrual"
	TxAccrualAdjustment     TransactionType = "accrual_adjustment"
)

// IsRepaymentLike reports whether the type allocates money against
// outstanding installment components via the payment allocation rule.
func (t TransactionType) IsRepaymentLike() bool {
	switch t {
	case TxRepayment, TxMerchantIssuedRefund, TxPayoutRefund, TxWaiver,
		TxInterestPaymentWaiver, TxInterestRefund:
		return true
	}
	return false
}

// IsChargebackEligible reports whether a transaction of this type may be the
// source of a chargeback.
func (t TransactionType) IsChargebackEligible() bool {
	switch t {
	case TxRepayment, TxMerchantIssuedRefund, TxPayoutRefund:
		return true
	}
	return false
}

// IsAccrualKind reports whether the type is bookkeeping-only: accruals never
// touch installment due or paid amounts.
func (t TransactionType) IsAccrualKind() bool {
	return t == TxAccrual || t == TxAccrualAdjustment
}

// Transaction is an immutable ledger record. Reversal sets the Reversed flag
// and zeroes the transaction's effect on the derived schedule; the record
// itself is never deleted or rewritten.
type Transaction struct {
	ID       TransactionID
	LoanID   LoanID
	Type     TransactionType
	Date     Date
	Sequence int

	Amount   Money
	Portions Portions
	// Overpayment is the part of Amount that exceeded total outstanding and
	// became a loan-level overpayment rather than a component allocation.
	Overpayment Money

	// ChargeID links charge-adjustment transactions to the adjusted charge.
	ChargeID ChargeID

	// CreditOrder is the per-call credit allocation order of a chargeback.
	// Persisted so replaying the log reproduces the same distribution.
	CreditOrder []Component

	Reversed         bool
	ManuallyReversed bool

	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION RELATIONS - Typed edges between transactions
// =============================================================================

// Relations decide propagation during reverse-replay and block disallowed
// operations (e.g. reversing a chargeback directly). They are kept in an
// adjacency structure rather than object references so the log stays
// append-only and ownership stays acyclic.

type RelationType string

const (
	RelationReplayed         RelationType = "REPLAYED"
	RelationChargeback       RelationType = "CHARGEBACK"
	RelationInterestRefundOf RelationType = "INTEREST_REFUND_OF"
	RelationReversalOf       RelationType = "REVERSAL_OF"
)

// Relation is a directed edge From -> To between two transactions of the
// same loan. For CHARGEBACK, From is the chargeback and To the original
// repayment; for REPLAYED, From is the post-replay version and To the
// pre-replay one.
type Relation struct {
	LoanID LoanID
	From   TransactionID
	To     TransactionID
	Type   RelationType
}

// =============================================================================
// INSTALLMENT - One repayment period (derived, never persisted truth)
// =============================================================================

type Installment struct {
	Number  int
	DueDate Date

	Due  Portions
	Paid Portions

	// Additional marks an "N+1" period appended by a chargeback that
	// reinstated balance beyond the original last period.
	Additional bool
}

// Outstanding returns the per-component amount still owed, floored at zero.
func (i Installment) Outstanding() Portions {
	return Portions{
		Principal: i.Due.Principal.Sub(i.Paid.Principal).Max(ZeroMoney()),
		Interest:  i.Due.Interest.Sub(i.Paid.Interest).Max(ZeroMoney()),
		Fee:       i.Due.Fee.Sub(i.Paid.Fee).Max(ZeroMoney()),
		Penalty:   i.Due.Penalty.Sub(i.Paid.Penalty).Max(ZeroMoney()),
	}
}

// FullyRepaid reports whether all four outstanding components are zero.
func (i Installment) FullyRepaid() bool {
	return i.Outstanding().IsZero()
}

// =============================================================================
// INTEREST PAUSE - Date range excluded from interest accrual
// =============================================================================

type InterestPause struct {
	ID    PauseID
	Start Date
	End   Date
}

// Overlaps reports whether two pauses share at least one day.
func (p InterestPause) Overlaps(o InterestPause) bool {
	return !p.End.Before(o.Start) && !o.End.Before(p.Start)
}

// Contains reports whether the pause covers the given day.
func (p InterestPause) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// =============================================================================
// LOAN CHARGE - A fee or penalty charged to the loan
// =============================================================================

type ChargeType string

const (
	ChargeFee     ChargeType = "fee"
	ChargePenalty ChargeType = "penalty"
)

// Charge is a dated fee/penalty record. Its schedule effect is derived by
// the projector fold, interleaved with transactions by (date, sequence).
type Charge struct {
	ID       ChargeID
	LoanID   LoanID
	Type     ChargeType
	Date     Date
	Sequence int

	// Amount is the current charge amount after any adjustments.
	Amount Money
	// OriginalAmount is the amount at creation time.
	OriginalAmount Money

	CreatedAt time.Time
}

func (c Charge) Component() Component {
	if c.Type == ChargeFee {
		return ComponentFee
	}
	return ComponentPenalty
}

// FullyAdjusted reports whether the charge has been adjusted down to zero.
// A fully adjusted charge cannot be adjusted again.
func (c Charge) FullyAdjusted() bool {
	return !c.Amount.IsPositive()
}
