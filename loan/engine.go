/*
engine.go - The operation surface of the loan ledger

PURPOSE:
  The Engine is the only writer of the transaction log. Every operation
  takes the business date as an explicit parameter, acquires the loan's
  exclusive lock, runs inside one store transaction, and publishes a
  business event after the commit. Rejected operations are atomic no-ops.

CONCURRENCY:
  One mutex per loan serializes all mutations against that loan; loans are
  fully independent of each other. Allocation and replay correctness depend
  on a total (date, sequence) order, which the per-loan lock guarantees.

WRITE PATH:
  Each mutation simulates first: it builds the candidate transaction,
  re-runs the fold over log+candidate, and only then persists the candidate
  with the fold-computed portions. The persisted portions are therefore a
  cache of what any later fold will recompute.

SEE ALSO:
  - projector.go: the fold every operation defers to
  - ledger.go:    the Store contract the engine writes through
*/
package loan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store  TxStore
	events Publisher

	mu    sync.Mutex
	locks map[LoanID]*sync.Mutex
}

func NewEngine(store TxStore, events Publisher) *Engine {
	if events == nil {
		events = NopPublisher{}
	}
	return &Engine{
		store:  store,
		events: events,
		locks:  make(map[LoanID]*sync.Mutex),
	}
}

// lockFor returns the loan's mutex, creating it on first use.
func (e *Engine) lockFor(id LoanID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// ledgerState is everything one operation needs loaded inside its store
// transaction.
type ledgerState struct {
	loan      Loan
	txs       []Transaction
	charges   []Charge
	pauses    []InterestPause
	relations []Relation
}

func loadState(ctx context.Context, s Store, id LoanID) (*ledgerState, error) {
	loan, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := s.LoadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	charges, err := s.LoadCharges(ctx, id)
	if err != nil {
		return nil, err
	}
	pauses, err := s.LoadPauses(ctx, id)
	if err != nil {
		return nil, err
	}
	relations, err := s.LoadRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ledgerState{loan: loan, txs: txs, charges: charges, pauses: pauses, relations: relations}, nil
}

func (st *ledgerState) project() (*Projection, error) {
	return Project(st.loan, st.txs, st.charges, st.pauses)
}

// withLoan serializes on the loan and runs fn inside one store transaction.
func (e *Engine) withLoan(ctx context.Context, id LoanID, fn func(s Store, st *ledgerState) error) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	return e.store.WithTx(ctx, func(s Store) error {
		st, err := loadState(ctx, s, id)
		if err != nil {
			return err
		}
		return fn(s, st)
	})
}

func newTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

// =============================================================================
// LIFECYCLE
// =============================================================================

// CreateLoan registers a loan in created status. An empty id is generated.
func (e *Engine) CreateLoan(ctx context.Context, id LoanID, terms ProductTerms, firstRepayment Date) (Loan, error) {
	if !terms.Principal.IsPositive() || terms.Periods <= 0 || terms.AnnualRate.IsNegative() {
		return Loan{}, ErrInvalidAmount
	}
	if id == "" {
		id = LoanID(uuid.NewString())
	}
	l := Loan{
		ID:                 id,
		Terms:              terms,
		FirstRepaymentDate: firstRepayment,
		Status:             StatusCreated,
		CreatedAt:          time.Now().UTC(),
	}
	if err := e.store.CreateLoan(ctx, l); err != nil {
		return Loan{}, err
	}
	e.events.Publish(ctx, BusinessEvent{Type: EventLoanCreated, LoanID: id, Amount: terms.Principal})
	return l, nil
}

// ApproveLoan moves a created loan to approved.
func (e *Engine) ApproveLoan(ctx context.Context, id LoanID) (Loan, error) {
	var approved Loan
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		if st.loan.Status != StatusCreated {
			return ErrInvalidLifecycle
		}
		st.loan.Status = StatusApproved
		approved = st.loan
		return s.UpdateLoan(ctx, st.loan)
	})
	if err != nil {
		return Loan{}, err
	}
	e.events.Publish(ctx, BusinessEvent{Type: EventLoanApproved, LoanID: id})
	return approved, nil
}

// =============================================================================
// DISBURSEMENT
// =============================================================================

// ApplyDisbursement pays out principal. The first tranche activates the
// loan; later tranches require the multi-tranche flag.
func (e *Engine) ApplyDisbursement(ctx context.Context, id LoanID, date Date, amount Money) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	var result Transaction
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		switch st.loan.Status {
		case StatusApproved:
		case StatusActive:
			if !st.loan.Terms.MultiTranche {
				return ErrInvalidLifecycle
			}
		default:
			return ErrInvalidLifecycle
		}

		if err := e.postAccrualCatchup(ctx, s, st, date, TxAccrual); err != nil {
			return err
		}

		tx, proj, err := e.appendComputed(ctx, s, st, Transaction{
			Type:   TxDisbursement,
			Date:   date,
			Amount: amount,
		})
		if err != nil {
			return err
		}

		if st.loan.StartDate.IsZero() {
			st.loan.StartDate = date
		}
		st.loan.Status = StatusActive
		if err := s.UpdateLoan(ctx, st.loan); err != nil {
			return err
		}

		result = tx
		event = e.eventFor(EventLoanDisbursed, st.loan.ID, tx, proj, nil)
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	e.events.Publish(ctx, event)
	return result, nil
}

// =============================================================================
// REPAYMENT-CLASS TRANSACTIONS
// =============================================================================

// ApplyRepayment posts a repayment-class transaction. Subtypes configured as
// interest-refunding additionally generate a linked InterestRefund covering
// the interest accrued so far.
func (e *Engine) ApplyRepayment(ctx context.Context, id LoanID, date Date, amount Money, subtype TransactionType) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if !subtype.IsRepaymentLike() {
		return Transaction{}, ErrUnsupportedTransactionType
	}

	var result Transaction
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		// Closed loans still accept payments: the amount settles into
		// overpayment and the status flips to overpaid.
		switch st.loan.Status {
		case StatusActive, StatusOverpaid, StatusClosed:
		default:
			return ErrLoanNotActive
		}

		before, err := st.project()
		if err != nil {
			return err
		}
		paidBefore := before.ChargePaidAmounts()

		if err := e.postAccrualCatchup(ctx, s, st, date, TxAccrual); err != nil {
			return err
		}

		tx, proj, err := e.appendComputed(ctx, s, st, Transaction{
			Type:   subtype,
			Date:   date,
			Amount: amount,
		})
		if err != nil {
			return err
		}

		if st.loan.Terms.RefundsInterestFor(subtype) {
			proj, err = e.postInterestRefund(ctx, s, st, tx, date, proj)
			if err != nil {
				return err
			}
		}

		if err := e.syncStatus(ctx, s, st, proj); err != nil {
			return err
		}

		result = tx
		event = e.eventFor(EventRepaymentApplied, st.loan.ID, tx, proj,
			chargePaidDelta(paidBefore, proj.ChargePaidAmounts(), tx.ID))
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	e.events.Publish(ctx, event)
	return result, nil
}

// postInterestRefund appends the InterestRefund transaction tied to a
// refund-class payment, covering accrued interest still owed.
func (e *Engine) postInterestRefund(ctx context.Context, s Store, st *ledgerState, source Transaction, date Date, proj *Projection) (*Projection, error) {
	refund := proj.TotalOutstanding().Interest.
		Min(proj.AccruedInterest(proj.startDate(), date))
	if !refund.IsPositive() {
		return proj, nil
	}

	tx, proj, err := e.appendComputed(ctx, s, st, Transaction{
		Type:   TxInterestRefund,
		Date:   date,
		Amount: refund,
	})
	if err != nil {
		return nil, err
	}
	err = s.AddRelation(ctx, Relation{
		LoanID: st.loan.ID,
		From:   tx.ID,
		To:     source.ID,
		Type:   RelationInterestRefundOf,
	})
	if err != nil {
		return nil, err
	}
	st.relations = append(st.relations, Relation{LoanID: st.loan.ID, From: tx.ID, To: source.ID, Type: RelationInterestRefundOf})
	return proj, nil
}

// =============================================================================
// CHARGES
// =============================================================================

// ApplyCharge books a fee or penalty against the loan as of the given date.
func (e *Engine) ApplyCharge(ctx context.Context, id LoanID, date Date, chargeType ChargeType, amount Money) (Charge, error) {
	if !amount.IsPositive() {
		return Charge{}, ErrInvalidAmount
	}

	var result Charge
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		if st.loan.Status != StatusActive && st.loan.Status != StatusOverpaid {
			return ErrLoanNotActive
		}

		before, err := st.project()
		if err != nil {
			return err
		}
		paidBefore := before.ChargePaidAmounts()

		seq, err := s.NextSequence(ctx, st.loan.ID)
		if err != nil {
			return err
		}
		charge := Charge{
			ID:             ChargeID(uuid.NewString()),
			LoanID:         st.loan.ID,
			Type:           chargeType,
			Date:           date,
			Sequence:       seq,
			Amount:         amount,
			OriginalAmount: amount,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.AddCharge(ctx, charge); err != nil {
			return err
		}
		st.charges = append(st.charges, charge)

		proj, err := st.project()
		if err != nil {
			return err
		}
		if err := e.syncStatus(ctx, s, st, proj); err != nil {
			return err
		}

		result = charge
		ev := e.eventFor(EventChargeApplied, st.loan.ID, Transaction{Date: date, Amount: amount}, proj,
			chargePaidDelta(paidBefore, proj.ChargePaidAmounts(), ""))
		event = ev
		return nil
	})
	if err != nil {
		return Charge{}, err
	}
	e.events.Publish(ctx, event)
	return result, nil
}

// AdjustCharge lowers a charge to newAmount. Fails once the charge has been
// fully adjusted away.
func (e *Engine) AdjustCharge(ctx context.Context, id LoanID, chargeID ChargeID, date Date, newAmount Money) (Transaction, error) {
	if newAmount.IsNegative() {
		return Transaction{}, ErrInvalidAmount
	}

	var result Transaction
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		charge, err := s.GetCharge(ctx, st.loan.ID, chargeID)
		if err != nil {
			return err
		}
		if charge.FullyAdjusted() {
			return ErrChargeFullyAdjusted
		}
		if !newAmount.LessThan(charge.Amount) {
			return ErrInvalidAmount
		}

		before, err := st.project()
		if err != nil {
			return err
		}
		paidBefore := before.ChargePaidAmounts()

		tx, proj, err := e.appendComputed(ctx, s, st, Transaction{
			Type:     TxChargeAdjustment,
			Date:     date,
			Amount:   charge.Amount.Sub(newAmount),
			ChargeID: chargeID,
		})
		if err != nil {
			return err
		}
		if err := s.UpdateChargeAmount(ctx, st.loan.ID, chargeID, newAmount); err != nil {
			return err
		}
		if err := e.syncStatus(ctx, s, st, proj); err != nil {
			return err
		}

		result = tx
		event = e.eventFor(EventChargeAdjusted, st.loan.ID, tx, proj,
			chargePaidDelta(paidBefore, proj.ChargePaidAmounts(), tx.ID))
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	e.events.Publish(ctx, event)
	return result, nil
}

// =============================================================================
// CHARGEBACK
// =============================================================================

// ApplyChargeback reinstates previously settled balance from a prior
// repayment-class transaction. creditOrder may be nil to use the product's
// credit allocation rule.
func (e *Engine) ApplyChargeback(ctx context.Context, id LoanID, sourceID TransactionID, date Date, amount Money, creditOrder []Component) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	var result Transaction
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		source, err := s.GetTransaction(ctx, st.loan.ID, sourceID)
		if err != nil {
			return err
		}
		if source.Reversed {
			return ErrTransactionUpdateNotAllowed
		}
		if !source.Type.IsChargebackEligible() {
			return ErrNotChargebackEligible
		}

		if err := e.postAccrualCatchup(ctx, s, st, date, TxAccrual); err != nil {
			return err
		}

		tx, proj, err := e.appendComputed(ctx, s, st, Transaction{
			Type:        TxChargeback,
			Date:        date,
			Amount:      amount,
			CreditOrder: creditOrder,
		})
		if err != nil {
			return err
		}
		err = s.AddRelation(ctx, Relation{
			LoanID: st.loan.ID,
			From:   tx.ID,
			To:     source.ID,
			Type:   RelationChargeback,
		})
		if err != nil {
			return err
		}
		if err := e.syncStatus(ctx, s, st, proj); err != nil {
			return err
		}

		result = tx
		event = e.eventFor(EventChargebackApplied, st.loan.ID, tx, proj, nil)
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	e.events.Publish(ctx, event)
	return result, nil
}

// =============================================================================
// REVERSE-REPLAY
// =============================================================================

// ReverseTransaction reverses the target and replays everything after it.
// Side-effect transactions tied to the target through a relation other than
// REPLAYED are reversed directly instead of replayed. The whole chain
// commits atomically or not at all.
func (e *Engine) ReverseTransaction(ctx context.Context, id LoanID, txID TransactionID, date Date) error {
	var event BusinessEvent
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		target, err := s.GetTransaction(ctx, st.loan.ID, txID)
		if err != nil {
			return err
		}
		if target.Reversed {
			return ErrAlreadyReversed
		}
		if target.Type == TxChargeback {
			return ErrTransactionUpdateNotAllowed
		}
		for _, r := range relationsTo(st.relations, target.ID) {
			if r.Type == RelationChargeback {
				return &ProtectedRelationError{Transaction: target.ID, Relation: r.Type, Related: r.From}
			}
		}

		// Causally dependent side effects reverse directly, never replay.
		if err := e.reverseDependents(ctx, s, st, target); err != nil {
			return err
		}
		if err := markReversedInState(ctx, s, st, target.ID, true); err != nil {
			return err
		}

		proj, err := e.replayDiverged(ctx, s, st, target)
		if err != nil {
			return err
		}

		if err := e.postAccrualCatchup(ctx, s, st, date, TxAccrualAdjustment); err != nil {
			return err
		}
		if err := e.syncStatus(ctx, s, st, proj); err != nil {
			return err
		}

		event = e.eventFor(EventTransactionReversed, st.loan.ID, target, proj, nil)
		return nil
	})
	if err != nil {
		return err
	}
	e.events.Publish(ctx, event)
	return nil
}

// reverseDependents reverses transactions linked to the target through
// non-replay relations (e.g. an InterestRefund derived from a refund).
func (e *Engine) reverseDependents(ctx context.Context, s Store, st *ledgerState, target Transaction) error {
	for _, r := range relationsTo(st.relations, target.ID) {
		if r.Type == RelationReplayed || r.Type == RelationReversalOf {
			continue
		}
		dep, err := s.GetTransaction(ctx, st.loan.ID, r.From)
		if err != nil {
			return err
		}
		if dep.Reversed {
			continue
		}
		if err := markReversedInState(ctx, s, st, dep.ID, false); err != nil {
			return err
		}
		err = s.AddRelation(ctx, Relation{
			LoanID: st.loan.ID,
			From:   dep.ID,
			To:     target.ID,
			Type:   RelationReversalOf,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// replayDiverged re-runs the fold and replaces every later transaction whose
// component split changed. Replacements keep the original date and sequence
// so the total order is preserved, and carry a REPLAYED relation to the
// version they supersede.
func (e *Engine) replayDiverged(ctx context.Context, s Store, st *ledgerState, target Transaction) (*Projection, error) {
	proj, err := st.project()
	if err != nil {
		return nil, err
	}

	for i := range st.txs {
		old := st.txs[i]
		if old.Reversed || old.Type.IsAccrualKind() {
			continue
		}
		if old.Date.Before(target.Date) {
			continue
		}
		effect, ok := proj.Effects[old.ID]
		if !ok {
			continue
		}
		if effect.Portions.Equal(old.Portions) && effect.Overpayment.Equal(old.Overpayment) {
			continue
		}

		if err := markReversedInState(ctx, s, st, old.ID, false); err != nil {
			return nil, err
		}
		replacement := old
		replacement.ID = newTransactionID()
		replacement.Portions = effect.Portions
		replacement.Overpayment = effect.Overpayment
		replacement.Reversed = false
		replacement.ManuallyReversed = false
		replacement.CreatedAt = time.Now().UTC()
		if err := s.AppendTransaction(ctx, replacement); err != nil {
			return nil, err
		}
		st.txs = append(st.txs, replacement)
		err = s.AddRelation(ctx, Relation{
			LoanID: st.loan.ID,
			From:   replacement.ID,
			To:     old.ID,
			Type:   RelationReplayed,
		})
		if err != nil {
			return nil, err
		}
	}
	return st.project()
}

// markReversedInState flags the row in the store and mirrors the flag in the
// loaded state so later folds inside the same operation see it.
func markReversedInState(ctx context.Context, s Store, st *ledgerState, id TransactionID, manual bool) error {
	if err := s.MarkReversed(ctx, st.loan.ID, id, manual); err != nil {
		return err
	}
	for i := range st.txs {
		if st.txs[i].ID == id {
			st.txs[i].Reversed = true
			st.txs[i].ManuallyReversed = manual
		}
	}
	return nil
}

// =============================================================================
// INTEREST PAUSES
// =============================================================================

// AddInterestPause registers a pause. Overlapping or out-of-range pauses are
// rejected before any mutation.
func (e *Engine) AddInterestPause(ctx context.Context, id LoanID, start, end Date) (PauseID, error) {
	var pauseID PauseID
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		p := InterestPause{ID: PauseID(uuid.NewString()), Start: start, End: end}
		if err := validatePause(st.loan, p, st.pauses); err != nil {
			return err
		}
		if err := s.AddPause(ctx, st.loan.ID, p); err != nil {
			return err
		}
		pauseID = p.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	e.events.Publish(ctx, BusinessEvent{Type: EventInterestPauseChanged, LoanID: id, Date: start})
	return pauseID, nil
}

// UpdateInterestPause moves an existing pause, re-validating overlap against
// all other pauses.
func (e *Engine) UpdateInterestPause(ctx context.Context, id LoanID, pauseID PauseID, start, end Date) error {
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		var others []InterestPause
		found := false
		for _, p := range st.pauses {
			if p.ID == pauseID {
				found = true
				continue
			}
			others = append(others, p)
		}
		if !found {
			return ErrPauseNotFound
		}
		updated := InterestPause{ID: pauseID, Start: start, End: end}
		if err := validatePause(st.loan, updated, others); err != nil {
			return err
		}
		return s.UpdatePause(ctx, st.loan.ID, updated)
	})
	if err != nil {
		return err
	}
	e.events.Publish(ctx, BusinessEvent{Type: EventInterestPauseChanged, LoanID: id, Date: start})
	return nil
}

// DeleteInterestPause removes a pause; interest for those days reappears on
// the next fold.
func (e *Engine) DeleteInterestPause(ctx context.Context, id LoanID, pauseID PauseID) error {
	err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
		return s.DeletePause(ctx, st.loan.ID, pauseID)
	})
	if err != nil {
		return err
	}
	e.events.Publish(ctx, BusinessEvent{Type: EventInterestPauseChanged, LoanID: id})
	return nil
}

func validatePause(l Loan, p InterestPause, existing []InterestPause) error {
	if p.End.Before(p.Start) {
		return ErrPauseOutOfRange
	}
	if l.StartDate.IsZero() || p.Start.Before(l.StartDate) || p.End.After(l.MaturityDate()) {
		return ErrPauseOutOfRange
	}
	for _, other := range existing {
		if p.Overlaps(other) {
			return &PauseOverlapError{Existing: other, Start: p.Start, End: p.End}
		}
	}
	return nil
}

// =============================================================================
// CLOSE OF BUSINESS
// =============================================================================

// RunCloseOfBusiness posts accrual catch-ups and refreshes lifecycle status
// for every loan. Idempotent per loan per date: a second sweep finds zero
// accrual deltas and changes nothing.
func (e *Engine) RunCloseOfBusiness(ctx context.Context, date Date) error {
	ids, err := e.store.ListLoans(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		var event *BusinessEvent
		err := e.withLoan(ctx, id, func(s Store, st *ledgerState) error {
			if st.loan.Status != StatusActive && st.loan.Status != StatusOverpaid {
				return nil
			}
			posted, err := e.accrueCatchup(ctx, s, st, date, TxAccrual)
			if err != nil {
				return err
			}
			proj, err := st.project()
			if err != nil {
				return err
			}
			if err := e.syncStatus(ctx, s, st, proj); err != nil {
				return err
			}
			if posted != nil {
				ev := e.eventFor(EventCloseOfBusiness, st.loan.ID, *posted, proj, nil)
				event = &ev
			}
			return nil
		})
		if err != nil {
			return err
		}
		if event != nil {
			e.events.Publish(ctx, *event)
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// LoanSummary is the read model returned to collaborators.
type LoanSummary struct {
	LoanID               LoanID        `json:"loanId"`
	Status               LoanStatus    `json:"status"`
	Disbursed            Money         `json:"disbursed"`
	PrincipalOutstanding Money         `json:"principalOutstanding"`
	Outstanding          Portions      `json:"outstanding"`
	Overpayment          Money         `json:"overpayment"`
	Installments         []Installment `json:"installments"`
}

// GetLoan returns the stored loan record.
func (e *Engine) GetLoan(ctx context.Context, id LoanID) (Loan, error) {
	return e.store.GetLoan(ctx, id)
}

// GetSummary folds the log and returns the derived view.
func (e *Engine) GetSummary(ctx context.Context, id LoanID) (LoanSummary, error) {
	st, err := loadState(ctx, e.store, id)
	if err != nil {
		return LoanSummary{}, err
	}
	proj, err := st.project()
	if err != nil {
		return LoanSummary{}, err
	}
	return LoanSummary{
		LoanID:               id,
		Status:               st.loan.Status,
		Disbursed:            proj.Disbursed,
		PrincipalOutstanding: proj.PrincipalOutstanding(),
		Outstanding:          proj.TotalOutstanding(),
		Overpayment:          proj.Overpayment,
		Installments:         proj.Installments,
	}, nil
}

// GetSchedule returns the derived installment list.
func (e *Engine) GetSchedule(ctx context.Context, id LoanID) ([]Installment, error) {
	summary, err := e.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	return summary.Installments, nil
}

// ListTransactions returns the full log, reversed rows included.
func (e *Engine) ListTransactions(ctx context.Context, id LoanID) ([]Transaction, error) {
	if _, err := e.store.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return e.store.LoadTransactions(ctx, id)
}

// ListLoans returns all loan ids in creation order.
func (e *Engine) ListLoans(ctx context.Context) ([]LoanID, error) {
	return e.store.ListLoans(ctx)
}

// ListInterestPauses returns the loan's pauses ordered by start date.
func (e *Engine) ListInterestPauses(ctx context.Context, id LoanID) ([]InterestPause, error) {
	if _, err := e.store.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return e.store.LoadPauses(ctx, id)
}

// JournalFor derives the balanced journal entries of one transaction.
func (e *Engine) JournalFor(ctx context.Context, id LoanID, txID TransactionID) ([]JournalEntry, error) {
	tx, err := e.store.GetTransaction(ctx, id, txID)
	if err != nil {
		return nil, err
	}
	return EntriesFor(tx)
}

// =============================================================================
// SHARED WRITE HELPERS
// =============================================================================

// appendComputed assigns id and sequence to the candidate, folds the log
// with the candidate included, persists it with the fold-computed effect and
// returns the final transaction plus the post-append projection.
func (e *Engine) appendComputed(ctx context.Context, s Store, st *ledgerState, candidate Transaction) (Transaction, *Projection, error) {
	seq, err := s.NextSequence(ctx, st.loan.ID)
	if err != nil {
		return Transaction{}, nil, err
	}
	candidate.ID = newTransactionID()
	candidate.LoanID = st.loan.ID
	candidate.Sequence = seq
	candidate.CreatedAt = time.Now().UTC()

	trial := append(append([]Transaction{}, st.txs...), candidate)
	proj, err := Project(st.loan, trial, st.charges, st.pauses)
	if err != nil {
		return Transaction{}, nil, err
	}
	effect := proj.Effects[candidate.ID]
	candidate.Portions = effect.Portions
	candidate.Overpayment = effect.Overpayment

	// The journal must balance before anything is persisted.
	if _, err := EntriesFor(candidate); err != nil {
		return Transaction{}, nil, err
	}

	if err := s.AppendTransaction(ctx, candidate); err != nil {
		return Transaction{}, nil, err
	}
	st.txs = append(st.txs, candidate)
	return candidate, proj, nil
}

// postAccrualCatchup posts the pending accrual delta, if any, ahead of a
// ledger mutation so accrued interest is booked on the pre-mutation curve.
func (e *Engine) postAccrualCatchup(ctx context.Context, s Store, st *ledgerState, date Date, kind TransactionType) error {
	_, err := e.accrueCatchup(ctx, s, st, date, kind)
	return err
}

// accrueCatchup returns the posted transaction, or nil when already caught up.
func (e *Engine) accrueCatchup(ctx context.Context, s Store, st *ledgerState, date Date, kind TransactionType) (*Transaction, error) {
	proj, err := st.project()
	if err != nil {
		return nil, err
	}
	delta := accrualDelta(proj, st.txs, date)
	if delta.IsZero() {
		return nil, nil
	}
	if delta.IsNegative() {
		kind = TxAccrualAdjustment
	}

	seq, err := s.NextSequence(ctx, st.loan.ID)
	if err != nil {
		return nil, err
	}
	tx := Transaction{
		ID:        newTransactionID(),
		LoanID:    st.loan.ID,
		Type:      kind,
		Date:      date,
		Sequence:  seq,
		Amount:    delta,
		Portions:  ZeroPortions().With(ComponentInterest, delta),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	st.txs = append(st.txs, tx)
	return &tx, nil
}

// syncStatus persists the lifecycle status the projection implies.
func (e *Engine) syncStatus(ctx context.Context, s Store, st *ledgerState, proj *Projection) error {
	derived := proj.Status()
	if derived == StatusApproved || derived == st.loan.Status {
		return nil
	}
	if st.loan.Status == StatusWrittenOff {
		return nil
	}
	st.loan.Status = derived
	return s.UpdateLoan(ctx, st.loan)
}

// eventFor assembles the standard payload from a transaction and the
// post-operation projection.
func (e *Engine) eventFor(t EventType, id LoanID, tx Transaction, proj *Projection, paidBy []ChargePaidBy) BusinessEvent {
	return BusinessEvent{
		Type:          t,
		LoanID:        id,
		TransactionID: tx.ID,
		Date:          tx.Date,
		Amount:        tx.Amount,
		Portions:      tx.Portions,
		Outstanding:   proj.TotalOutstanding(),
		Overpayment:   proj.Overpayment,
		ChargePaidBy:  paidBy,
	}
}

// chargePaidDelta diffs per-charge paid amounts around one operation.
// Output is sorted by charge id so event payloads are stable.
func chargePaidDelta(before, after map[ChargeID]Money, txID TransactionID) []ChargePaidBy {
	var out []ChargePaidBy
	for chargeID, paid := range after {
		prev, ok := before[chargeID]
		if !ok {
			prev = ZeroMoney()
		}
		if paid.GreaterThan(prev) {
			out = append(out, ChargePaidBy{ChargeID: chargeID, Amount: paid.Sub(prev), TransactionID: txID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargeID < out[j].ChargeID })
	return out
}
