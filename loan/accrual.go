/*
accrual.go - Interest accrual catch-up

PURPOSE:
  Accruals record interest as it is earned, independent of when it is due or
  paid. The engine posts a catch-up before each ledger-affecting event and on
  every close-of-business sweep: it measures total interest accrued since the
  first disbursement, compares it with the accrual amounts already posted,
  and emits a transaction for the difference.

ADJUSTMENTS:
  A reversal can invalidate part of an already-posted accrual. History is
  never rewritten; the delta is posted as an AccrualAdjustment (its amount
  may be negative). Both kinds count toward the posted total, so the
  catch-up is naturally idempotent: a second run on the same date finds a
  zero delta and posts nothing.
*/
package loan

// postedAccruals sums the non-reversed accrual and accrual-adjustment
// amounts in the log.
func postedAccruals(txs []Transaction) Money {
	sum := ZeroMoney()
	for _, tx := range active(txs) {
		if tx.Type.IsAccrualKind() {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

// accrualDelta measures how far the posted accruals lag the interest
// actually earned up to (excluding) the given date.
func accrualDelta(p *Projection, txs []Transaction, date Date) Money {
	target := p.AccruedInterest(p.startDate(), date)
	return target.Sub(postedAccruals(txs))
}
