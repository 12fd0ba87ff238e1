// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fairlend/loan-engine/loan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	loans        map[loan.LoanID]loan.Loan
	order        []loan.LoanID
	transactions map[loan.LoanID][]loan.Transaction
	relations    map[loan.LoanID][]loan.Relation
	pauses       map[loan.LoanID][]loan.InterestPause
	charges      map[loan.LoanID][]loan.Charge
	sequences    map[loan.LoanID]int
}

func NewMemory() *Memory {
	return &Memory{
		loans:        make(map[loan.LoanID]loan.Loan),
		transactions: make(map[loan.LoanID][]loan.Transaction),
		relations:    make(map[loan.LoanID][]loan.Relation),
		pauses:       make(map[loan.LoanID][]loan.InterestPause),
		charges:      make(map[loan.LoanID][]loan.Charge),
		sequences:    make(map[loan.LoanID]int),
	}
}

// -----------------------------------------------------------------------------
// Loans
// -----------------------------------------------------------------------------

func (m *Memory) CreateLoan(_ context.Context, l loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLoanLocked(l)
}

func (m *Memory) createLoanLocked(l loan.Loan) error {
	if _, ok := m.loans[l.ID]; ok {
		return loan.ErrLoanExists
	}
	m.loans[l.ID] = l
	m.order = append(m.order, l.ID)
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id loan.LoanID) (loan.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLoanLocked(id)
}

func (m *Memory) getLoanLocked(id loan.LoanID) (loan.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return loan.Loan{}, loan.ErrLoanNotFound
	}
	return l, nil
}

func (m *Memory) UpdateLoan(_ context.Context, l loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLoanLocked(l)
}

func (m *Memory) updateLoanLocked(l loan.Loan) error {
	if _, ok := m.loans[l.ID]; !ok {
		return loan.ErrLoanNotFound
	}
	m.loans[l.ID] = l
	return nil
}

func (m *Memory) ListLoans(_ context.Context) ([]loan.LoanID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLoansLocked()
}

func (m *Memory) listLoansLocked() ([]loan.LoanID, error) {
	out := make([]loan.LoanID, len(m.order))
	copy(out, m.order)
	return out, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (m *Memory) AppendTransaction(_ context.Context, tx loan.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) AppendTransactions(_ context.Context, txs []loan.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx loan.Transaction) error {
	txs := m.transactions[tx.LoanID]

	// Binary search for insertion point so the slice stays ordered by
	// (date, sequence) without a full sort on every load.
	i := sort.Search(len(txs), func(i int) bool {
		if !txs[i].Date.Equal(tx.Date) {
			return txs[i].Date.After(tx.Date)
		}
		return txs[i].Sequence > tx.Sequence
	})

	txs = append(txs, loan.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.LoanID] = txs
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context, loanID loan.LoanID) ([]loan.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTransactionsLocked(loanID)
}

func (m *Memory) loadTransactionsLocked(loanID loan.LoanID) ([]loan.Transaction, error) {
	result := make([]loan.Transaction, len(m.transactions[loanID]))
	copy(result, m.transactions[loanID])
	return result, nil
}

func (m *Memory) GetTransaction(_ context.Context, loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(loanID, id)
}

func (m *Memory) getTransactionLocked(loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	for _, tx := range m.transactions[loanID] {
		if tx.ID == id {
			return tx, nil
		}
	}
	return loan.Transaction{}, loan.ErrTransactionNotFound
}

func (m *Memory) MarkReversed(_ context.Context, loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markReversedLocked(loanID, id, manual)
}

func (m *Memory) markReversedLocked(loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	txs := m.transactions[loanID]
	for i := range txs {
		if txs[i].ID == id {
			txs[i].Reversed = true
			txs[i].ManuallyReversed = manual
			return nil
		}
	}
	return loan.ErrTransactionNotFound
}

// -----------------------------------------------------------------------------
// Relations
// -----------------------------------------------------------------------------

func (m *Memory) AddRelation(_ context.Context, r loan.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addRelationLocked(r)
}

func (m *Memory) addRelationLocked(r loan.Relation) error {
	for _, existing := range m.relations[r.LoanID] {
		if existing == r {
			return nil
		}
	}
	m.relations[r.LoanID] = append(m.relations[r.LoanID], r)
	return nil
}

func (m *Memory) LoadRelations(_ context.Context, loanID loan.LoanID) ([]loan.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRelationsLocked(loanID)
}

func (m *Memory) loadRelationsLocked(loanID loan.LoanID) ([]loan.Relation, error) {
	result := make([]loan.Relation, len(m.relations[loanID]))
	copy(result, m.relations[loanID])
	return result, nil
}

// -----------------------------------------------------------------------------
// Pauses
// -----------------------------------------------------------------------------

func (m *Memory) AddPause(_ context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addPauseLocked(loanID, p)
}

func (m *Memory) addPauseLocked(loanID loan.LoanID, p loan.InterestPause) error {
	pauses := append(m.pauses[loanID], p)
	sortPauses(pauses)
	m.pauses[loanID] = pauses
	return nil
}

func (m *Memory) UpdatePause(_ context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePauseLocked(loanID, p)
}

func (m *Memory) updatePauseLocked(loanID loan.LoanID, p loan.InterestPause) error {
	pauses := m.pauses[loanID]
	for i := range pauses {
		if pauses[i].ID == p.ID {
			pauses[i] = p
			sortPauses(pauses)
			return nil
		}
	}
	return loan.ErrPauseNotFound
}

func (m *Memory) DeletePause(_ context.Context, loanID loan.LoanID, id loan.PauseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePauseLocked(loanID, id)
}

func (m *Memory) deletePauseLocked(loanID loan.LoanID, id loan.PauseID) error {
	pauses := m.pauses[loanID]
	for i := range pauses {
		if pauses[i].ID == id {
			m.pauses[loanID] = append(pauses[:i:i], pauses[i+1:]...)
			return nil
		}
	}
	return loan.ErrPauseNotFound
}

func (m *Memory) LoadPauses(_ context.Context, loanID loan.LoanID) ([]loan.InterestPause, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadPausesLocked(loanID)
}

func (m *Memory) loadPausesLocked(loanID loan.LoanID) ([]loan.InterestPause, error) {
	result := make([]loan.InterestPause, len(m.pauses[loanID]))
	copy(result, m.pauses[loanID])
	return result, nil
}

func sortPauses(pauses []loan.InterestPause) {
	sort.Slice(pauses, func(i, j int) bool {
		return pauses[i].Start.Before(pauses[j].Start)
	})
}

// -----------------------------------------------------------------------------
// Charges
// -----------------------------------------------------------------------------

func (m *Memory) AddCharge(_ context.Context, c loan.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addChargeLocked(c)
}

func (m *Memory) addChargeLocked(c loan.Charge) error {
	charges := append(m.charges[c.LoanID], c)
	sort.Slice(charges, func(i, j int) bool {
		if !charges[i].Date.Equal(charges[j].Date) {
			return charges[i].Date.Before(charges[j].Date)
		}
		return charges[i].Sequence < charges[j].Sequence
	})
	m.charges[c.LoanID] = charges
	return nil
}

func (m *Memory) UpdateChargeAmount(_ context.Context, loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateChargeAmountLocked(loanID, id, amount)
}

func (m *Memory) updateChargeAmountLocked(loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	charges := m.charges[loanID]
	for i := range charges {
		if charges[i].ID == id {
			charges[i].Amount = amount
			return nil
		}
	}
	return loan.ErrChargeNotFound
}

func (m *Memory) GetCharge(_ context.Context, loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getChargeLocked(loanID, id)
}

func (m *Memory) getChargeLocked(loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	for _, c := range m.charges[loanID] {
		if c.ID == id {
			return c, nil
		}
	}
	return loan.Charge{}, loan.ErrChargeNotFound
}

func (m *Memory) LoadCharges(_ context.Context, loanID loan.LoanID) ([]loan.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadChargesLocked(loanID)
}

func (m *Memory) loadChargesLocked(loanID loan.LoanID) ([]loan.Charge, error) {
	result := make([]loan.Charge, len(m.charges[loanID]))
	copy(result, m.charges[loanID])
	return result, nil
}

// -----------------------------------------------------------------------------
// Sequences
// -----------------------------------------------------------------------------

func (m *Memory) NextSequence(_ context.Context, loanID loan.LoanID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequenceLocked(loanID)
}

func (m *Memory) nextSequenceLocked(loanID loan.LoanID) (int, error) {
	m.sequences[loanID]++
	return m.sequences[loanID], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	loans        map[loan.LoanID]loan.Loan
	order        []loan.LoanID
	transactions map[loan.LoanID][]loan.Transaction
	relations    map[loan.LoanID][]loan.Relation
	pauses       map[loan.LoanID][]loan.InterestPause
	charges      map[loan.LoanID][]loan.Charge
	sequences    map[loan.LoanID]int
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		loans:        make(map[loan.LoanID]loan.Loan, len(tm.loans)),
		order:        append([]loan.LoanID{}, tm.order...),
		transactions: make(map[loan.LoanID][]loan.Transaction, len(tm.transactions)),
		relations:    make(map[loan.LoanID][]loan.Relation, len(tm.relations)),
		pauses:       make(map[loan.LoanID][]loan.InterestPause, len(tm.pauses)),
		charges:      make(map[loan.LoanID][]loan.Charge, len(tm.charges)),
		sequences:    make(map[loan.LoanID]int, len(tm.sequences)),
	}
	for k, v := range tm.loans {
		s.loans[k] = v
	}
	for k, v := range tm.transactions {
		s.transactions[k] = append([]loan.Transaction{}, v...)
	}
	for k, v := range tm.relations {
		s.relations[k] = append([]loan.Relation{}, v...)
	}
	for k, v := range tm.pauses {
		s.pauses[k] = append([]loan.InterestPause{}, v...)
	}
	for k, v := range tm.charges {
		s.charges[k] = append([]loan.Charge{}, v...)
	}
	for k, v := range tm.sequences {
		s.sequences[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.loans = s.loans
	tm.order = s.order
	tm.transactions = s.transactions
	tm.relations = s.relations
	tm.pauses = s.pauses
	tm.charges = s.charges
	tm.sequences = s.sequences
}

// txMemoryView runs against the parent's state while the parent holds its own
// lock for the duration of WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateLoan(_ context.Context, l loan.Loan) error {
	return tv.parent.createLoanLocked(l)
}

func (tv *txMemoryView) GetLoan(_ context.Context, id loan.LoanID) (loan.Loan, error) {
	return tv.parent.getLoanLocked(id)
}

func (tv *txMemoryView) UpdateLoan(_ context.Context, l loan.Loan) error {
	return tv.parent.updateLoanLocked(l)
}

func (tv *txMemoryView) ListLoans(_ context.Context) ([]loan.LoanID, error) {
	return tv.parent.listLoansLocked()
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx loan.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AppendTransactions(_ context.Context, txs []loan.Transaction) error {
	for _, tx := range txs {
		if err := tv.parent.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) LoadTransactions(_ context.Context, loanID loan.LoanID) ([]loan.Transaction, error) {
	return tv.parent.loadTransactionsLocked(loanID)
}

func (tv *txMemoryView) GetTransaction(_ context.Context, loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	return tv.parent.getTransactionLocked(loanID, id)
}

func (tv *txMemoryView) MarkReversed(_ context.Context, loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	return tv.parent.markReversedLocked(loanID, id, manual)
}

func (tv *txMemoryView) AddRelation(_ context.Context, r loan.Relation) error {
	return tv.parent.addRelationLocked(r)
}

func (tv *txMemoryView) LoadRelations(_ context.Context, loanID loan.LoanID) ([]loan.Relation, error) {
	return tv.parent.loadRelationsLocked(loanID)
}

func (tv *txMemoryView) AddPause(_ context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	return tv.parent.addPauseLocked(loanID, p)
}

func (tv *txMemoryView) UpdatePause(_ context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	return tv.parent.updatePauseLocked(loanID, p)
}

func (tv *txMemoryView) DeletePause(_ context.Context, loanID loan.LoanID, id loan.PauseID) error {
	return tv.parent.deletePauseLocked(loanID, id)
}

func (tv *txMemoryView) LoadPauses(_ context.Context, loanID loan.LoanID) ([]loan.InterestPause, error) {
	return tv.parent.loadPausesLocked(loanID)
}

func (tv *txMemoryView) AddCharge(_ context.Context, c loan.Charge) error {
	return tv.parent.addChargeLocked(c)
}

func (tv *txMemoryView) UpdateChargeAmount(_ context.Context, loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	return tv.parent.updateChargeAmountLocked(loanID, id, amount)
}

func (tv *txMemoryView) GetCharge(_ context.Context, loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	return tv.parent.getChargeLocked(loanID, id)
}

func (tv *txMemoryView) LoadCharges(_ context.Context, loanID loan.LoanID) ([]loan.Charge, error) {
	return tv.parent.loadChargesLocked(loanID)
}

func (tv *txMemoryView) NextSequence(_ context.Context, loanID loan.LoanID) (int, error) {
	return tv.parent.nextSequenceLocked(loanID)
}
