/*
allocation.go - Payment and credit allocation rules and processors

PURPOSE:
  Distributes an incoming transaction amount across outstanding installment
  components. Rules are closed tagged enumerations with an explicit ordered
  slot list, so allocation order is exhaustively checkable at compile time
  rather than loaded by name at runtime.

BUCKETS:
  past-due:   due date before the transaction date
  due:        the currently open period (due date on/after the transaction
              date, previous period already closed)
  in-advance: everything later

FUTURE INSTALLMENT RULE:
  Governs which in-advance installments receive early payments and what
  happens to a remainder: NextInstallment, NextLastInstallment,
  LastInstallment, or Reamortization (which is the only rule that can fail
  with ErrInsufficientAllocationTarget).

KNOWN EDGE CASE (preserved on purpose):
  A payment dated before any installment's due date, smaller than that
  installment's total due, allocates to the FIRST installment regardless of
  period semantics. This reproduces existing platform behavior.
*/
package loan

// =============================================================================
// ALLOCATION RULES
// =============================================================================

type Bucket string

const (
	BucketPastDue   Bucket = "past_due"
	BucketDue       Bucket = "due"
	BucketInAdvance Bucket = "in_advance"
)

// AllocationSlot is one (bucket, component) pair in a payment rule.
type AllocationSlot struct {
	Bucket    Bucket
	Component Component
}

var (
	PastDuePenalty   = AllocationSlot{BucketPastDue, ComponentPenalty}
	PastDueFee       = AllocationSlot{BucketPastDue, ComponentFee}
	PastDueInterest  = AllocationSlot{BucketPastDue, ComponentInterest}
	PastDuePrincipal = AllocationSlot{BucketPastDue, ComponentPrincipal}

	DuePenalty   = AllocationSlot{BucketDue, ComponentPenalty}
	DueFee       = AllocationSlot{BucketDue, ComponentFee}
	DueInterest  = AllocationSlot{BucketDue, ComponentInterest}
	DuePrincipal = AllocationSlot{BucketDue, ComponentPrincipal}

	InAdvancePenalty   = AllocationSlot{BucketInAdvance, ComponentPenalty}
	InAdvanceFee       = AllocationSlot{BucketInAdvance, ComponentFee}
	InAdvanceInterest  = AllocationSlot{BucketInAdvance, ComponentInterest}
	InAdvancePrincipal = AllocationSlot{BucketInAdvance, ComponentPrincipal}
)

type FutureInstallmentAllocationRule string

const (
	NextInstallment     FutureInstallmentAllocationRule = "NEXT_INSTALLMENT"
	NextLastInstallment FutureInstallmentAllocationRule = "NEXT_LAST_INSTALLMENT"
	LastInstallment     FutureInstallmentAllocationRule = "LAST_INSTALLMENT"
	Reamortization      FutureInstallmentAllocationRule = "REAMORTIZATION"
)

// AllocationRule is the ordered slot list plus the future-installment rule.
// Immutable per product.
type AllocationRule struct {
	Order  []AllocationSlot
	Future FutureInstallmentAllocationRule
}

// DefaultAllocationRule is penalty-fee-interest-principal within each bucket,
// past-due first, then due, then in-advance.
func DefaultAllocationRule() AllocationRule {
	return AllocationRule{
		Order: []AllocationSlot{
			PastDuePenalty, PastDueFee, PastDueInterest, PastDuePrincipal,
			DuePenalty, DueFee, DueInterest, DuePrincipal,
			InAdvancePenalty, InAdvanceFee, InAdvanceInterest, InAdvancePrincipal,
		},
		Future: NextInstallment,
	}
}

// componentOrder returns the distinct components in slot-appearance order,
// used when an allocation targets a single installment.
func (r AllocationRule) componentOrder() []Component {
	seen := map[Component]bool{}
	var order []Component
	for _, slot := range r.Order {
		if !seen[slot.Component] {
			seen[slot.Component] = true
			order = append(order, slot.Component)
		}
	}
	if len(order) == 0 {
		order = []Component{ComponentPenalty, ComponentFee, ComponentInterest, ComponentPrincipal}
	}
	return order
}

// CreditAllocationRule orders components for chargeback reinstatement.
type CreditAllocationRule struct {
	Order []Component
}

// DefaultCreditAllocationRule is principal-first.
func DefaultCreditAllocationRule() CreditAllocationRule {
	return CreditAllocationRule{
		Order: []Component{ComponentPrincipal, ComponentInterest, ComponentFee, ComponentPenalty},
	}
}

func (r CreditAllocationRule) order() []Component {
	if len(r.Order) == 0 {
		return DefaultCreditAllocationRule().Order
	}
	return r.Order
}

// =============================================================================
// PAYMENT ALLOCATION
// =============================================================================

// InstallmentDelta is a per-installment component payment produced by one
// transaction.
type InstallmentDelta struct {
	Index int
	Delta Portions
}

// AllocationResult is the full effect of allocating one payment: the summed
// component portions, per-installment deltas, and any loan-level
// overpayment remainder. Conservation: Portions.Total() + Overpayment ==
// the allocated amount.
type AllocationResult struct {
	Deltas      []InstallmentDelta
	Portions    Portions
	Overpayment Money
}

// allocatePayment distributes amount across installment components per the
// rule. It never mutates the installments; the projector applies the deltas.
func allocatePayment(installments []Installment, amount Money, date Date, rule AllocationRule) (AllocationResult, error) {
	res := AllocationResult{Portions: ZeroPortions(), Overpayment: ZeroMoney()}
	remaining := amount

	if len(rule.Order) == 0 {
		rule = AllocationRule{Order: DefaultAllocationRule().Order, Future: rule.Future}
	}
	if rule.Future == "" {
		rule.Future = NextInstallment
	}

	outstanding := make([]Portions, len(installments))
	for i, inst := range installments {
		outstanding[i] = inst.Outstanding()
	}

	deltas := map[int]Portions{}
	pay := func(idx int, c Component, avail Money) {
		if !remaining.IsPositive() || !avail.IsPositive() {
			return
		}
		take := remaining.Min(avail)
		d, ok := deltas[idx]
		if !ok {
			d = ZeroPortions()
		}
		deltas[idx] = d.With(c, d.Get(c).Add(take))
		outstanding[idx] = outstanding[idx].With(c, outstanding[idx].Get(c).Sub(take))
		res.Portions = res.Portions.With(c, res.Portions.Get(c).Add(take))
		remaining = remaining.Sub(take)
	}

	// Existing platform behavior: an early payment smaller than the first
	// installment's total due goes to the first installment, whatever the
	// future-installment rule says.
	if len(installments) > 0 && date.Before(installments[0].DueDate) &&
		amount.LessThan(outstanding[0].Total()) {
		for _, c := range rule.componentOrder() {
			pay(0, c, outstanding[0].Get(c))
		}
		return finishAllocation(res, deltas, remaining, rule)
	}

	pastDue, due, inAdvance := classify(installments, date)

	for _, slot := range rule.Order {
		if !remaining.IsPositive() {
			break
		}
		var targets []int
		switch slot.Bucket {
		case BucketPastDue:
			targets = pastDue
		case BucketDue:
			targets = due
		default:
			targets = futureTargets(inAdvance, rule.Future)
		}
		for _, idx := range targets {
			pay(idx, slot.Component, outstanding[idx].Get(slot.Component))
		}
	}

	return finishAllocation(res, deltas, remaining, rule)
}

func finishAllocation(res AllocationResult, deltas map[int]Portions, remaining Money, rule AllocationRule) (AllocationResult, error) {
	// Reamortization never leaves a remainder; every other future rule turns
	// it into loan-level overpayment.
	if remaining.IsPositive() && rule.Future == Reamortization {
		return AllocationResult{}, ErrInsufficientAllocationTarget
	}
	res.Overpayment = remaining

	for idx := range deltas {
		res.Deltas = append(res.Deltas, InstallmentDelta{Index: idx, Delta: deltas[idx]})
	}
	sortDeltas(res.Deltas)
	return res, nil
}

func sortDeltas(ds []InstallmentDelta) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].Index < ds[j-1].Index; j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

// classify splits installment indices into past-due / due / in-advance
// relative to the transaction date.
func classify(installments []Installment, date Date) (pastDue, due, inAdvance []int) {
	openSeen := false
	for i, inst := range installments {
		switch {
		case inst.DueDate.Before(date):
			pastDue = append(pastDue, i)
		case !openSeen:
			// First period whose due date is on/after the date is the
			// currently open one.
			due = append(due, i)
			openSeen = true
		default:
			inAdvance = append(inAdvance, i)
		}
	}
	return pastDue, due, inAdvance
}

// futureTargets orders in-advance installments per the future rule.
func futureTargets(inAdvance []int, rule FutureInstallmentAllocationRule) []int {
	if len(inAdvance) == 0 {
		return nil
	}
	switch rule {
	case LastInstallment:
		return []int{inAdvance[len(inAdvance)-1]}
	case NextLastInstallment:
		if len(inAdvance) == 1 {
			return inAdvance
		}
		return []int{inAdvance[0], inAdvance[len(inAdvance)-1]}
	default:
		// NextInstallment and Reamortization walk forward; reamortization
		// differs only in its remainder policy.
		return inAdvance
	}
}

// =============================================================================
// SINGLE-COMPONENT ALLOCATION (waivers, interest refunds, charge credits)
// =============================================================================

// allocateAcrossComponents pays components in the given order, each swept
// across installments oldest-first. Refund-class transactions return
// principal first, so they use this instead of the bucketed payment rule.
func allocateAcrossComponents(installments []Installment, amount Money, order []Component) AllocationResult {
	res := AllocationResult{Portions: ZeroPortions(), Overpayment: amount}
	for _, c := range order {
		if !res.Overpayment.IsPositive() {
			break
		}
		// Components are independent capacities, so sweeping the same
		// snapshot once per component double-spends nothing.
		step := allocateToComponent(installments, res.Overpayment, c)
		res.Deltas = append(res.Deltas, step.Deltas...)
		res.Portions = res.Portions.Add(step.Portions)
		res.Overpayment = step.Overpayment
	}
	return res
}

// allocateToComponent pays down a single component across installments
// oldest-first. Used by interest waivers/refunds and charge adjustments.
func allocateToComponent(installments []Installment, amount Money, c Component) AllocationResult {
	res := AllocationResult{Portions: ZeroPortions(), Overpayment: ZeroMoney()}
	remaining := amount

	for i, inst := range installments {
		if !remaining.IsPositive() {
			break
		}
		avail := inst.Outstanding().Get(c)
		if !avail.IsPositive() {
			continue
		}
		take := remaining.Min(avail)
		res.Deltas = append(res.Deltas, InstallmentDelta{
			Index: i,
			Delta: ZeroPortions().With(c, take),
		})
		res.Portions = res.Portions.With(c, res.Portions.Get(c).Add(take))
		remaining = remaining.Sub(take)
	}
	res.Overpayment = remaining
	return res
}
