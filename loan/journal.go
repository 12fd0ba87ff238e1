/*
journal.go - Double-entry journal derivation per transaction type

PURPOSE:
  Every ledger transaction maps to a fixed set of debit/credit postings
  against the configured GL accounts. The mapping is a pure function of the
  transaction's type, component portions, and overpayment remainder; the
  balance invariant sum(debits) == sum(credits) is asserted before any
  entry set is returned.

ACCOUNTS:
  fund source           cash in/out
  loans receivable      scheduled principal owed
  *_receivable          interest/fee/penalty owed
  *_income              earned interest/fee/penalty
  overpayment liability amounts held for the borrower
  write-off expense     waived principal
*/
package loan

// =============================================================================
// ACCOUNTS AND ENTRIES
// =============================================================================

type Account string

const (
	AccountFundSource           Account = "fund_source"
	AccountLoansReceivable      Account = "loans_receivable"
	AccountInterestReceivable   Account = "interest_receivable"
	AccountFeeReceivable        Account = "fee_receivable"
	AccountPenaltyReceivable    Account = "penalty_receivable"
	AccountInterestIncome       Account = "interest_income"
	AccountFeeIncome            Account = "fee_income"
	AccountPenaltyIncome        Account = "penalty_income"
	AccountOverpaymentLiability Account = "overpayment_liability"
	AccountWriteOffExpense      Account = "write_off_expense"
)

type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// JournalEntry is one posting of a balanced entry set.
type JournalEntry struct {
	Account       Account
	Side          Side
	Amount        Money
	TransactionID TransactionID
}

func receivableFor(c Component) Account {
	switch c {
	case ComponentPrincipal:
		return AccountLoansReceivable
	case ComponentInterest:
		return AccountInterestReceivable
	case ComponentFee:
		return AccountFeeReceivable
	default:
		return AccountPenaltyReceivable
	}
}

func incomeFor(c Component) Account {
	switch c {
	case ComponentInterest:
		return AccountInterestIncome
	case ComponentFee:
		return AccountFeeIncome
	case ComponentPenalty:
		return AccountPenaltyIncome
	default:
		return AccountWriteOffExpense
	}
}

// =============================================================================
// DERIVATION
// =============================================================================

// EntriesFor derives the balanced journal entry set for one transaction.
// Returns ErrUnbalancedJournal if the derived set does not balance, which
// indicates a bug, never valid input.
func EntriesFor(tx Transaction) ([]JournalEntry, error) {
	b := entryBuilder{txID: tx.ID}

	switch {
	case tx.Type == TxDisbursement:
		b.add(AccountLoansReceivable, Debit, tx.Amount)
		b.add(AccountFundSource, Credit, tx.Amount)

	case tx.Type == TxRepayment || tx.Type == TxMerchantIssuedRefund || tx.Type == TxPayoutRefund:
		// Cash in, allocated across receivables; any excess is held as an
		// overpayment liability.
		b.add(AccountFundSource, Debit, tx.Amount)
		b.creditPortions(tx.Portions)
		b.add(AccountOverpaymentLiability, Credit, tx.Overpayment)

	case tx.Type == TxWaiver || tx.Type == TxInterestPaymentWaiver:
		// Non-cash: earned income (or write-off expense for principal) is
		// given back against the receivables.
		for _, c := range allComponents() {
			b.add(incomeFor(c), Debit, tx.Portions.Get(c))
		}
		b.creditPortions(tx.Portions)
		b.add(AccountOverpaymentLiability, Credit, tx.Overpayment)
		if tx.Overpayment.IsPositive() {
			b.add(AccountWriteOffExpense, Debit, tx.Overpayment)
		}

	case tx.Type == TxInterestRefund:
		b.add(AccountInterestIncome, Debit, tx.Amount)
		b.add(AccountInterestReceivable, Credit, tx.Portions.Interest)
		b.add(AccountOverpaymentLiability, Credit, tx.Overpayment)

	case tx.Type == TxChargeback:
		// Reinstated balance, cash returned to the payer.
		for _, c := range allComponents() {
			b.add(receivableFor(c), Debit, tx.Portions.Get(c))
		}
		b.add(AccountFundSource, Credit, tx.Amount)

	case tx.Type == TxChargeAdjustment:
		b.add(AccountFeeIncome, Debit, tx.Portions.Fee)
		b.add(AccountPenaltyIncome, Debit, tx.Portions.Penalty)
		b.add(AccountFeeReceivable, Credit, tx.Portions.Fee.Sub(feeShare(tx)))
		b.add(AccountPenaltyReceivable, Credit, tx.Portions.Penalty.Sub(penaltyShare(tx)))
		b.add(AccountOverpaymentLiability, Credit, tx.Overpayment)

	case tx.Type.IsAccrualKind():
		if tx.Amount.IsNegative() {
			b.add(AccountInterestIncome, Debit, tx.Amount.Neg())
			b.add(AccountInterestReceivable, Credit, tx.Amount.Neg())
		} else {
			b.add(AccountInterestReceivable, Debit, tx.Amount)
			b.add(AccountInterestIncome, Credit, tx.Amount)
		}
	}

	return b.finish()
}

// feeShare / penaltyShare split a charge adjustment's refunded-to-overpayment
// part proportionally onto the component it came from. A charge adjusts a
// single component, so whichever portion is zero contributes nothing.
func feeShare(tx Transaction) Money {
	if tx.Portions.Fee.IsPositive() {
		return tx.Overpayment
	}
	return ZeroMoney()
}

func penaltyShare(tx Transaction) Money {
	if tx.Portions.Penalty.IsPositive() {
		return tx.Overpayment
	}
	return ZeroMoney()
}

func allComponents() []Component {
	return []Component{ComponentPrincipal, ComponentInterest, ComponentFee, ComponentPenalty}
}

// =============================================================================
// BUILDER
// =============================================================================

type entryBuilder struct {
	txID    TransactionID
	entries []JournalEntry
}

// add appends one posting, dropping zero amounts.
func (b *entryBuilder) add(account Account, side Side, amount Money) {
	if !amount.IsPositive() {
		return
	}
	b.entries = append(b.entries, JournalEntry{
		Account:       account,
		Side:          side,
		Amount:        amount,
		TransactionID: b.txID,
	})
}

func (b *entryBuilder) creditPortions(p Portions) {
	for _, c := range allComponents() {
		b.add(receivableFor(c), Credit, p.Get(c))
	}
}

func (b *entryBuilder) finish() ([]JournalEntry, error) {
	debits, credits := ZeroMoney(), ZeroMoney()
	for _, e := range b.entries {
		if e.Side == Debit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	if !debits.Equal(credits) {
		return nil, ErrUnbalancedJournal
	}
	return b.entries, nil
}
