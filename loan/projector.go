/*
projector.go - The schedule as a pure fold over the transaction log

PURPOSE:
  Rebuilds the loan's derived state (installments, overpayment, principal
  curve, per-charge paid amounts) by replaying the non-reversed transaction
  log in (date, sequence) order. Nothing in here writes to storage; the
  projection is recomputed from scratch on every read and after every
  mutation, which is what makes reversal and replay safe: un-flagging or
  re-flagging a transaction and re-running the fold IS the replay.

EVENT STREAM:
  Transactions and charges share one per-loan sequence counter, so the fold
  merges them into a single stream and processes them in the exact order
  they entered the ledger. Accrual-kind transactions are bookkeeping only
  and are skipped by the fold.

INVARIANT:
  principal outstanding == disbursed - principal paid + principal reinstated
  and always equals the sum of per-installment outstanding principal. The
  fold maintains both sides from the same events so they cannot diverge.

SEE ALSO:
  - allocation.go: the per-transaction distribution the fold delegates to
  - recalc.go:     day-level interest recomputation after principal changes
  - engine.go:     computes a transaction's portions by folding it in
*/
package loan

// =============================================================================
// PROJECTION - Derived loan state
// =============================================================================

// ChargeState tracks one charge's derived due/paid amounts and which
// installment carries it.
type ChargeState struct {
	ChargeID    ChargeID
	Installment int
	Component   Component
	Due         Money
	Paid        Money
}

// Projection is the derived view of one loan at the end of the fold.
type Projection struct {
	LoanID       LoanID
	Installments []Installment
	Overpayment  Money

	// Disbursed is the total principal paid out across tranches.
	Disbursed Money

	// Charges tracks per-charge due/paid state in creation order.
	Charges []ChargeState

	// Effects records, per transaction id, the component split and
	// overpayment the fold computed for it. The engine persists these on
	// the transaction row and the replay coordinator diffs them against
	// the stored values to detect divergence.
	Effects map[TransactionID]Effect

	terms  ProductTerms
	pauses []InterestPause

	// principalEvents is the day-by-day principal-outstanding curve as
	// (date, delta) pairs in fold order.
	principalEvents []principalEvent
}

type principalEvent struct {
	date  Date
	delta Money
}

// Effect is the fold-computed outcome of one transaction.
type Effect struct {
	Portions    Portions
	Overpayment Money
}

// PrincipalOutstanding is the scheduled principal not yet repaid.
func (p *Projection) PrincipalOutstanding() Money {
	sum := ZeroMoney()
	for _, inst := range p.Installments {
		sum = sum.Add(inst.Outstanding().Principal)
	}
	return sum
}

// TotalOutstanding sums all four components across installments.
func (p *Projection) TotalOutstanding() Portions {
	sum := ZeroPortions()
	for _, inst := range p.Installments {
		sum = sum.Add(inst.Outstanding())
	}
	return sum
}

// IsSettled reports whether every installment is fully repaid.
func (p *Projection) IsSettled() bool {
	for _, inst := range p.Installments {
		if !inst.FullyRepaid() {
			return false
		}
	}
	return len(p.Installments) > 0
}

// Status derives the lifecycle status implied by the monetary state.
func (p *Projection) Status() LoanStatus {
	switch {
	case len(p.Installments) == 0:
		return StatusApproved
	case p.IsSettled() && p.Overpayment.IsPositive():
		return StatusOverpaid
	case p.IsSettled():
		return StatusClosed
	default:
		return StatusActive
	}
}

// PrincipalOn returns actual principal outstanding at end of the given day.
func (p *Projection) PrincipalOn(d Date) Money {
	sum := ZeroMoney()
	for _, ev := range p.principalEvents {
		if ev.date.BeforeOrEqual(d) {
			sum = sum.Add(ev.delta)
		}
	}
	return sum
}

// ChargePaidAmounts returns the paid amount per charge id.
func (p *Projection) ChargePaidAmounts() map[ChargeID]Money {
	out := make(map[ChargeID]Money, len(p.Charges))
	for _, cs := range p.Charges {
		prev, ok := out[cs.ChargeID]
		if !ok {
			prev = ZeroMoney()
		}
		out[cs.ChargeID] = prev.Add(cs.Paid)
	}
	return out
}

// =============================================================================
// FOLD
// =============================================================================

type foldEventKind int

const (
	eventTransaction foldEventKind = iota
	eventCharge
)

type foldEvent struct {
	kind     foldEventKind
	date     Date
	sequence int
	tx       Transaction
	charge   Charge
}

// Project folds the non-reversed transaction log and the charge records into
// the loan's derived state. Inputs must already be ordered by
// (date, sequence) within their own kind; the fold merges the two streams.
func Project(l Loan, txs []Transaction, charges []Charge, pauses []InterestPause) (*Projection, error) {
	p := &Projection{
		LoanID:      l.ID,
		Overpayment: ZeroMoney(),
		Disbursed:   ZeroMoney(),
		Effects:     make(map[TransactionID]Effect),
		terms:       l.Terms,
		pauses:      pauses,
	}

	events := mergeEvents(active(txs), charges)
	for _, ev := range events {
		if err := p.apply(l, ev); err != nil {
			return nil, err
		}
	}
	// Periods still open after the last ledger event pick up pause changes
	// here; recalculation is idempotent so re-running it costs nothing.
	if len(events) > 0 {
		p.recalculate(events[len(events)-1].date)
	}
	return p, nil
}

func mergeEvents(txs []Transaction, charges []Charge) []foldEvent {
	events := make([]foldEvent, 0, len(txs)+len(charges))
	for _, tx := range txs {
		events = append(events, foldEvent{kind: eventTransaction, date: tx.Date, sequence: tx.Sequence, tx: tx})
	}
	for _, c := range charges {
		events = append(events, foldEvent{kind: eventCharge, date: c.Date, sequence: c.Sequence, charge: c})
	}
	// Insertion sort by (date, sequence); streams are already sorted so the
	// merge is near-linear.
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && eventLess(events[j], events[j-1]); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
	return events
}

func eventLess(a, b foldEvent) bool {
	if !a.date.Equal(b.date) {
		return a.date.Before(b.date)
	}
	return a.sequence < b.sequence
}

func (p *Projection) apply(l Loan, ev foldEvent) error {
	if ev.kind == eventCharge {
		p.applyCharge(ev.charge)
		return nil
	}

	tx := ev.tx
	switch {
	case tx.Type == TxDisbursement:
		p.applyDisbursement(l, tx)
	case tx.Type == TxChargeback:
		p.applyChargeback(tx)
	case tx.Type == TxChargeAdjustment:
		p.applyChargeAdjustment(tx)
	case tx.Type.IsAccrualKind():
		// Accruals never touch installment state.
		return nil
	case tx.Type.IsRepaymentLike():
		return p.applyRepaymentLike(tx)
	}
	return nil
}

// =============================================================================
// DISBURSEMENT
// =============================================================================

func (p *Projection) applyDisbursement(l Loan, tx Transaction) {
	p.Disbursed = p.Disbursed.Add(tx.Amount)
	p.principalEvents = append(p.principalEvents, principalEvent{date: tx.Date, delta: tx.Amount})
	p.Effects[tx.ID] = Effect{
		Portions:    ZeroPortions().With(ComponentPrincipal, tx.Amount),
		Overpayment: ZeroMoney(),
	}

	if len(p.Installments) == 0 {
		first := l.FirstRepaymentDate
		if first.IsZero() {
			first = p.terms.Frequency.Next(tx.Date)
		}
		p.Installments = generateSchedule(p.terms, tx.Date, dueDatesFrom(p.terms, first), p.Disbursed)
		return
	}

	// Later tranche: regenerate the not-yet-due tail.
	p.Installments = regenerateFromTranche(p.terms, p.Installments, tx.Date, p.Disbursed)
	p.reindexCharges()
	p.recalculate(tx.Date)
}

// dueDatesFrom lists the scheduled due dates starting at the first one.
func dueDatesFrom(terms ProductTerms, first Date) []Date {
	dates := make([]Date, 0, terms.Periods)
	d := first
	for i := 0; i < terms.Periods; i++ {
		dates = append(dates, d)
		d = terms.Frequency.Next(d)
	}
	return dates
}

// reindexCharges re-attaches charge dues after a schedule regeneration, in
// case the installment count changed.
func (p *Projection) reindexCharges() {
	for i := range p.Charges {
		if p.Charges[i].Installment >= len(p.Installments) {
			p.Charges[i].Installment = len(p.Installments) - 1
		}
	}
}

// =============================================================================
// REPAYMENT-CLASS TRANSACTIONS
// =============================================================================

func (p *Projection) applyRepaymentLike(tx Transaction) error {
	var res AllocationResult
	var err error

	switch tx.Type {
	case TxInterestPaymentWaiver, TxInterestRefund:
		// Interest-only credits.
		res = allocateToComponent(p.Installments, tx.Amount, ComponentInterest)
	case TxMerchantIssuedRefund, TxPayoutRefund:
		// Refunds return principal first; recalculation then shrinks the
		// interest due to what actually accrued on the shortened curve.
		res = allocateAcrossComponents(p.Installments, tx.Amount,
			[]Component{ComponentPrincipal, ComponentInterest, ComponentFee, ComponentPenalty})
	default:
		res, err = allocatePayment(p.Installments, tx.Amount, tx.Date, p.terms.AllocationRule)
		if err != nil {
			return err
		}
	}

	for _, d := range res.Deltas {
		p.payInstallment(d.Index, d.Delta)
	}
	p.Overpayment = p.Overpayment.Add(res.Overpayment)
	p.Effects[tx.ID] = Effect{Portions: res.Portions, Overpayment: res.Overpayment}

	if res.Portions.Principal.IsPositive() {
		p.principalEvents = append(p.principalEvents,
			principalEvent{date: tx.Date, delta: res.Portions.Principal.Neg()})
		p.recalculate(tx.Date)
	}
	return nil
}

// payInstallment applies a component delta to one installment's paid amounts
// and distributes fee/penalty portions across that installment's charges
// oldest-first.
func (p *Projection) payInstallment(idx int, delta Portions) {
	p.Installments[idx].Paid = p.Installments[idx].Paid.Add(delta)
	p.distributeToCharges(idx, ComponentFee, delta.Fee)
	p.distributeToCharges(idx, ComponentPenalty, delta.Penalty)
}

func (p *Projection) distributeToCharges(idx int, c Component, amount Money) {
	remaining := amount
	for i := range p.Charges {
		if !remaining.IsPositive() {
			return
		}
		cs := &p.Charges[i]
		if cs.Installment != idx || cs.Component != c {
			continue
		}
		open := cs.Due.Sub(cs.Paid)
		if !open.IsPositive() {
			continue
		}
		take := remaining.Min(open)
		cs.Paid = cs.Paid.Add(take)
		remaining = remaining.Sub(take)
	}
}

// unpayCharges rolls paid charge amounts back, newest-paid-first, when a
// chargeback reinstates fee or penalty balance.
func (p *Projection) unpayCharges(idx int, c Component, amount Money) {
	remaining := amount
	for i := len(p.Charges) - 1; i >= 0; i-- {
		if !remaining.IsPositive() {
			return
		}
		cs := &p.Charges[i]
		if cs.Installment != idx || cs.Component != c {
			continue
		}
		give := remaining.Min(cs.Paid)
		cs.Paid = cs.Paid.Sub(give)
		remaining = remaining.Sub(give)
	}
}

// =============================================================================
// CHARGES
// =============================================================================

// applyCharge attaches the charge's original amount as due on the covering
// installment, then lets any overpayment absorb it immediately.
func (p *Projection) applyCharge(c Charge) {
	if len(p.Installments) == 0 {
		return
	}
	idx := p.coveringInstallment(c.Date)
	comp := c.Component()

	inst := &p.Installments[idx]
	inst.Due = inst.Due.With(comp, inst.Due.Get(comp).Add(c.OriginalAmount))

	p.Charges = append(p.Charges, ChargeState{
		ChargeID:    c.ID,
		Installment: idx,
		Component:   comp,
		Due:         c.OriginalAmount,
		Paid:        ZeroMoney(),
	})

	p.absorbFromOverpayment(idx, comp)
}

// coveringInstallment returns the open period containing the date, or the
// last installment when the date is past maturity.
func (p *Projection) coveringInstallment(d Date) int {
	for i, inst := range p.Installments {
		if !inst.DueDate.Before(d) {
			return i
		}
	}
	return len(p.Installments) - 1
}

// absorbFromOverpayment pays the given component of one installment out of
// the loan-level overpayment pot.
func (p *Projection) absorbFromOverpayment(idx int, comp Component) {
	if !p.Overpayment.IsPositive() {
		return
	}
	open := p.Installments[idx].Outstanding().Get(comp)
	if !open.IsPositive() {
		return
	}
	take := p.Overpayment.Min(open)
	p.Overpayment = p.Overpayment.Sub(take)
	p.payInstallment(idx, ZeroPortions().With(comp, take))
}

// applyChargeAdjustment lowers a charge's due, unpaid portion first. If the
// reduction exceeds what is still unpaid, the already-paid surplus flows
// back to the borrower as overpayment.
func (p *Projection) applyChargeAdjustment(tx Transaction) {
	remaining := tx.Amount
	adjusted := ZeroPortions()
	refunded := ZeroMoney()
	for i := range p.Charges {
		if !remaining.IsPositive() {
			break
		}
		cs := &p.Charges[i]
		if cs.ChargeID != tx.ChargeID {
			continue
		}

		unpaid := cs.Due.Sub(cs.Paid).Max(ZeroMoney())
		cut := remaining.Min(unpaid)
		if cut.IsPositive() {
			p.reduceDue(cs.Installment, cs.Component, cut)
			cs.Due = cs.Due.Sub(cut)
			adjusted = adjusted.With(cs.Component, adjusted.Get(cs.Component).Add(cut))
			remaining = remaining.Sub(cut)
		}

		refund := remaining.Min(cs.Paid)
		if refund.IsPositive() {
			p.reduceDue(cs.Installment, cs.Component, refund)
			cs.Due = cs.Due.Sub(refund)
			cs.Paid = cs.Paid.Sub(refund)
			inst := &p.Installments[cs.Installment]
			inst.Paid = inst.Paid.With(cs.Component, inst.Paid.Get(cs.Component).Sub(refund))
			p.Overpayment = p.Overpayment.Add(refund)
			adjusted = adjusted.With(cs.Component, adjusted.Get(cs.Component).Add(refund))
			refunded = refunded.Add(refund)
			remaining = remaining.Sub(refund)
		}
	}
	p.Effects[tx.ID] = Effect{Portions: adjusted, Overpayment: refunded}
}

func (p *Projection) reduceDue(idx int, comp Component, amount Money) {
	inst := &p.Installments[idx]
	inst.Due = inst.Due.With(comp, inst.Due.Get(comp).Sub(amount))
}

// =============================================================================
// CHARGEBACK
// =============================================================================

// applyChargeback reinstates previously settled balance: it rolls back paid
// amounts oldest-first in the credit allocation order, and appends an
// additional terminal period for any amount beyond what the existing
// installments had absorbed.
func (p *Projection) applyChargeback(tx Transaction) {
	remaining := tx.Amount
	order := tx.CreditOrder
	if len(order) == 0 {
		order = p.terms.CreditAllocationRule.order()
	}
	reinstated := ZeroPortions()

	for i := range p.Installments {
		if !remaining.IsPositive() {
			break
		}
		for _, c := range order {
			if !remaining.IsPositive() {
				break
			}
			paid := p.Installments[i].Paid.Get(c)
			if !paid.IsPositive() {
				continue
			}
			back := remaining.Min(paid)
			p.Installments[i].Paid = p.Installments[i].Paid.With(c, paid.Sub(back))
			reinstated = reinstated.With(c, reinstated.Get(c).Add(back))
			if c == ComponentFee || c == ComponentPenalty {
				p.unpayCharges(i, c, back)
			}
			remaining = remaining.Sub(back)
		}
	}

	// Overflow beyond everything ever paid becomes a new terminal period
	// rather than overloading the last one.
	if remaining.IsPositive() && len(p.Installments) > 0 {
		last := p.Installments[len(p.Installments)-1]
		extra := Installment{
			Number:     last.Number + 1,
			DueDate:    p.terms.Frequency.Next(last.DueDate),
			Due:        ZeroPortions().With(order[0], remaining),
			Paid:       ZeroPortions(),
			Additional: true,
		}
		p.Installments = append(p.Installments, extra)
		reinstated = reinstated.With(order[0], reinstated.Get(order[0]).Add(remaining))
		remaining = ZeroMoney()
	}

	p.Effects[tx.ID] = Effect{Portions: reinstated, Overpayment: ZeroMoney()}

	if reinstated.Principal.IsPositive() {
		p.principalEvents = append(p.principalEvents,
			principalEvent{date: tx.Date, delta: reinstated.Principal})
		p.recalculate(tx.Date)
	}

	// An overpayment pot, if any, immediately covers the reinstated balance.
	p.consumeOverpayment(tx.Date)
}

// consumeOverpayment applies the overpayment pot against outstanding
// components, oldest installment first, principal-first order.
func (p *Projection) consumeOverpayment(date Date) {
	if !p.Overpayment.IsPositive() {
		return
	}
	res := allocateToComponent(p.Installments, p.Overpayment, ComponentPrincipal)
	for _, c := range []Component{ComponentInterest, ComponentFee, ComponentPenalty} {
		if !res.Overpayment.IsPositive() {
			break
		}
		more := allocateToComponent(p.Installments, res.Overpayment, c)
		res.Deltas = append(res.Deltas, more.Deltas...)
		res.Overpayment = more.Overpayment
	}
	for _, d := range res.Deltas {
		p.payInstallment(d.Index, d.Delta)
	}
	p.Overpayment = res.Overpayment

	if res.Portions.Principal.IsPositive() {
		p.principalEvents = append(p.principalEvents,
			principalEvent{date: date, delta: res.Portions.Principal.Neg()})
		p.recalculate(date)
	}
}
