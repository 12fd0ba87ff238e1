/*
recalc.go - Day-level interest recomputation over the principal curve

PURPOSE:
  Whenever the day-by-day principal-outstanding curve changes (disbursement,
  principal paid, chargeback, pause change), the interest due on the open
  and future periods is re-measured day by day against the new curve. Days
  inside an interest pause are excluded entirely, never deferred. Periods
  whose due date has already passed keep their interest: paid history is
  immutable.

IDEMPOTENCY:
  Recomputing touches only the Due.Interest of open/future periods, which
  does not feed back into the principal curve, so running the recalculation
  twice on the same state produces the same schedule.

EXPECTED CURVE:
  Days before the recalculation date use the actual event curve; later days
  assume the remaining scheduled principal is paid on its due dates. An
  installment's still-unpaid principal is subtracted on its due date, so
  delinquent principal keeps accruing until it is actually paid.
*/
package loan

// recalculate re-measures interest for every period due on or after asOf.
// Only declining-balance loans with recalculation enabled are affected.
func (p *Projection) recalculate(asOf Date) {
	if !p.terms.InterestRecalculation || p.terms.Interest != InterestDecliningBalance {
		return
	}
	if len(p.Installments) == 0 {
		return
	}

	periodStart := p.startDate()
	for i := range p.Installments {
		inst := &p.Installments[i]
		if inst.DueDate.Before(asOf) || inst.Additional {
			periodStart = inst.DueDate
			continue
		}
		interest := interestOver(
			periodStart, inst.DueDate,
			p.terms.DayCount, p.terms.AnnualRate,
			func(d Date) Money { return p.expectedPrincipalOn(d, asOf) },
			p.pauses,
		)
		inst.Due = inst.Due.With(ComponentInterest, Money{Value: interest}.Round())
		periodStart = inst.DueDate
	}
}

// startDate is the first disbursement date, the day interest starts running.
func (p *Projection) startDate() Date {
	if len(p.principalEvents) == 0 {
		return Date{}
	}
	return p.principalEvents[0].date
}

// expectedPrincipalOn projects principal outstanding on day d: the actual
// curve up to now, with future scheduled principal assumed paid on time.
func (p *Projection) expectedPrincipalOn(d, asOf Date) Money {
	actual := p.PrincipalOn(d)
	for _, inst := range p.Installments {
		if inst.DueDate.AfterOrEqual(asOf) && inst.DueDate.BeforeOrEqual(d) {
			actual = actual.Sub(inst.Outstanding().Principal)
		}
	}
	return actual.Max(ZeroMoney())
}

// AccruedInterest measures interest earned over [from, to) on the actual
// principal curve, pause-aware, rounded to the currency unit. Used by the
// accrual generator and by automatic interest refunds, which therefore can
// never disagree with the recalculation engine.
func (p *Projection) AccruedInterest(from, to Date) Money {
	if from.IsZero() || !to.After(from) {
		return ZeroMoney()
	}
	sum := interestOver(from, to, p.terms.DayCount, p.terms.AnnualRate, p.PrincipalOn, p.pauses)
	return Money{Value: sum}.Round()
}
