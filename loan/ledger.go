/*
ledger.go - Persistence interface for the loan transaction log

PURPOSE:
  Defines the interface between the domain logic and the database. The Store
  keeps the append-only transaction log plus the records the fold consumes:
  relations, interest pauses, and charges. Different implementations can use
  SQLite, PostgreSQL, or in-memory storage.

APPEND-ONLY CONTRACT:
  Transactions are appended, never updated or deleted. The single permitted
  mutation is MarkReversed, which flips the reversal flags on an existing
  row; the monetary content of a row never changes after the append.
  Corrections happen by appending new transactions and relations.

ORDERING:
  Every loan carries one monotonic sequence counter shared by transactions
  and charges. LoadTransactions returns rows ordered by (date, sequence), so
  the fold is deterministic even for same-day events.

ATOMICITY:
  Multi-record operations (reversal cascades, replays, close of business) run
  inside WithTx. If fn returns an error nothing is persisted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - loan/store/memory.go:   in-memory for testing

SEE ALSO:
  - engine.go: the operation surface, sole writer of the log
  - projector.go: the fold that consumes what this interface loads
*/
package loan

import "context"

// =============================================================================
// STORE - Persistence for loans, transactions, relations, pauses, charges
// =============================================================================

// Store handles persistence of the loan ledger.
// IMPORTANT: the transaction log is APPEND-ONLY. No update, no delete.
// MarkReversed flips flags on an existing row and is the only exception.
type Store interface {
	// CreateLoan persists a new loan. Returns ErrLoanExists on id collision.
	CreateLoan(ctx context.Context, l Loan) error

	// GetLoan returns the loan or ErrLoanNotFound.
	GetLoan(ctx context.Context, id LoanID) (Loan, error)

	// UpdateLoan persists lifecycle changes (status, start date). Product
	// terms are immutable after creation; implementations may overwrite the
	// whole row but callers never change Terms.
	UpdateLoan(ctx context.Context, l Loan) error

	// ListLoans returns all loan ids, ordered by creation time.
	ListLoans(ctx context.Context) ([]LoanID, error)

	// AppendTransaction persists a single transaction.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// AppendTransactions persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendTransactions(ctx context.Context, txs []Transaction) error

	// LoadTransactions returns all transactions for the loan, reversed ones
	// included, ordered by (date, sequence).
	LoadTransactions(ctx context.Context, loanID LoanID) ([]Transaction, error)

	// GetTransaction returns one transaction or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, loanID LoanID, id TransactionID) (Transaction, error)

	// MarkReversed flips the reversal flags on an existing transaction.
	// manual records whether an operator requested it directly, as opposed
	// to a cascade or replay.
	MarkReversed(ctx context.Context, loanID LoanID, id TransactionID, manual bool) error

	// AddRelation records a typed edge between two transactions.
	AddRelation(ctx context.Context, r Relation) error

	// LoadRelations returns all relations of the loan.
	LoadRelations(ctx context.Context, loanID LoanID) ([]Relation, error)

	// AddPause / UpdatePause / DeletePause manage interest pauses. Pauses are
	// configuration, not ledger rows, so they may be edited in place.
	AddPause(ctx context.Context, loanID LoanID, p InterestPause) error
	UpdatePause(ctx context.Context, loanID LoanID, p InterestPause) error
	DeletePause(ctx context.Context, loanID LoanID, id PauseID) error

	// LoadPauses returns the loan's pauses ordered by start date.
	LoadPauses(ctx context.Context, loanID LoanID) ([]InterestPause, error)

	// AddCharge persists a charge record.
	AddCharge(ctx context.Context, c Charge) error

	// UpdateChargeAmount sets the charge's current amount after an
	// adjustment. The original amount never changes.
	UpdateChargeAmount(ctx context.Context, loanID LoanID, id ChargeID, amount Money) error

	// GetCharge returns one charge or ErrChargeNotFound.
	GetCharge(ctx context.Context, loanID LoanID, id ChargeID) (Charge, error)

	// LoadCharges returns the loan's charges ordered by (date, sequence).
	LoadCharges(ctx context.Context, loanID LoanID) ([]Charge, error)

	// NextSequence returns the next value of the loan's shared sequence
	// counter. Transactions and charges draw from the same counter so the
	// fold can interleave them deterministically.
	NextSequence(ctx context.Context, loanID LoanID) (int, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this for multi-record operations (reversal cascades, replays).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// LOG HELPERS
// =============================================================================

// active filters out reversed transactions. The fold only ever sees the
// result of this filter.
func active(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Reversed {
			out = append(out, tx)
		}
	}
	return out
}

// relationsFrom returns relations whose From side is the given transaction.
func relationsFrom(relations []Relation, id TransactionID) []Relation {
	var out []Relation
	for _, r := range relations {
		if r.From == id {
			out = append(out, r)
		}
	}
	return out
}

// relationsTo returns relations whose To side is the given transaction.
func relationsTo(relations []Relation, id TransactionID) []Relation {
	var out []Relation
	for _, r := range relations {
		if r.To == id {
			out = append(out, r)
		}
	}
	return out
}
