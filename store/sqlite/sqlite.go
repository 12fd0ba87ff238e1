/*
Package sqlite provides a SQLite-backed implementation of the loan Store.

PURPOSE:
  Implements loan.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table is append-only. The single UPDATE the code
  performs on it flips the reversal flags (loan.Store.MarkReversed);
  monetary columns are never rewritten and rows are never deleted.

KEY TABLES:
  loans:        Loan records with product terms serialized as JSON
  transactions: Immutable ledger, ordered by (loan_id, date, sequence)
  relations:    Typed edges between transactions
  pauses:       Interest pause ranges (editable configuration)
  charges:      Fee/penalty records sharing the loan's sequence counter
  sequences:    Per-loan monotonic sequence allocator

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, a single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := loan.NewEngine(store, bus)

SEE ALSO:
  - loan/ledger.go: interface definitions
  - loan/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fairlend/loan-engine/loan"
)

// Store implements loan.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// executor abstracts *sql.DB and *sql.Tx so every query runs against
// whichever the caller holds.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		terms_json TEXT NOT NULL,
		start_date TEXT,
		first_repayment_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Append-only ledger. Reversal flags are the only mutable columns.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		amount TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fee TEXT NOT NULL,
		penalty TEXT NOT NULL,
		overpayment TEXT NOT NULL,
		charge_id TEXT,
		credit_order_json TEXT,
		reversed BOOLEAN NOT NULL DEFAULT FALSE,
		manually_reversed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Hot path: the fold loads per loan in (date, sequence) order.
	CREATE INDEX IF NOT EXISTS idx_transactions_loan_order
		ON transactions(loan_id, tx_date, sequence);

	CREATE TABLE IF NOT EXISTS relations (
		loan_id TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		rel_type TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel_type)
	);

	CREATE INDEX IF NOT EXISTS idx_relations_loan
		ON relations(loan_id);

	CREATE TABLE IF NOT EXISTS pauses (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pauses_loan
		ON pauses(loan_id, start_date);

	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		charge_type TEXT NOT NULL,
		charge_date TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		amount TEXT NOT NULL,
		original_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_charges_loan_order
		ON charges(loan_id, charge_date, sequence);

	CREATE TABLE IF NOT EXISTS sequences (
		loan_id TEXT PRIMARY KEY,
		next INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, l loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createLoan(ctx, s.db, l)
}

func createLoan(ctx context.Context, db executor, l loan.Loan) error {
	termsJSON, err := json.Marshal(l.Terms)
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO loans (id, terms_json, start_date, first_repayment_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID,
		string(termsJSON),
		nullDate(l.StartDate),
		nullDate(l.FirstRepaymentDate),
		l.Status,
		l.CreatedAt.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return loan.ErrLoanExists
	}
	return err
}

func (s *Store) GetLoan(ctx context.Context, id loan.LoanID) (loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func getLoan(ctx context.Context, db executor, id loan.LoanID) (loan.Loan, error) {
	var (
		l          loan.Loan
		termsJSON  string
		startDate  sql.NullString
		firstDate  sql.NullString
		createdAt  string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, terms_json, start_date, first_repayment_date, status, created_at
		FROM loans WHERE id = ?`, id,
	).Scan(&l.ID, &termsJSON, &startDate, &firstDate, &l.Status, &createdAt)
	if err == sql.ErrNoRows {
		return loan.Loan{}, loan.ErrLoanNotFound
	}
	if err != nil {
		return loan.Loan{}, err
	}

	if err := json.Unmarshal([]byte(termsJSON), &l.Terms); err != nil {
		return loan.Loan{}, fmt.Errorf("failed to decode terms: %w", err)
	}
	l.StartDate = parseNullDate(startDate)
	l.FirstRepaymentDate = parseNullDate(firstDate)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return l, nil
}

func (s *Store) UpdateLoan(ctx context.Context, l loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateLoan(ctx, s.db, l)
}

func updateLoan(ctx context.Context, db executor, l loan.Loan) error {
	termsJSON, err := json.Marshal(l.Terms)
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE loans SET terms_json = ?, start_date = ?, first_repayment_date = ?, status = ?
		WHERE id = ?`,
		string(termsJSON), nullDate(l.StartDate), nullDate(l.FirstRepaymentDate), l.Status, l.ID,
	)
	if err != nil {
		return err
	}
	return notFoundIfNoRows(res, loan.ErrLoanNotFound)
}

func (s *Store) ListLoans(ctx context.Context) ([]loan.LoanID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoans(ctx, s.db)
}

func listLoans(ctx context.Context, db executor) ([]loan.LoanID, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM loans ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []loan.LoanID
	for rows.Next() {
		var id loan.LoanID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx loan.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db executor, tx loan.Transaction) error {
	var creditOrder any
	if len(tx.CreditOrder) > 0 {
		b, err := json.Marshal(tx.CreditOrder)
		if err != nil {
			return err
		}
		creditOrder = string(b)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, loan_id, tx_type, tx_date, sequence, amount, principal, interest, fee, penalty,
		 overpayment, charge_id, credit_order_json, reversed, manually_reversed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.LoanID,
		tx.Type,
		tx.Date.String(),
		tx.Sequence,
		tx.Amount.Value.String(),
		tx.Portions.Principal.Value.String(),
		tx.Portions.Interest.Value.String(),
		tx.Portions.Fee.Value.String(),
		tx.Portions.Penalty.Value.String(),
		tx.Overpayment.Value.String(),
		nullString(string(tx.ChargeID)),
		creditOrder,
		tx.Reversed,
		tx.ManuallyReversed,
		tx.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendTransactions(ctx context.Context, txs []loan.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTransaction(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

const transactionColumns = `
	id, loan_id, tx_type, tx_date, sequence, amount, principal, interest, fee, penalty,
	overpayment, charge_id, credit_order_json, reversed, manually_reversed, created_at`

func (s *Store) LoadTransactions(ctx context.Context, loanID loan.LoanID) ([]loan.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTransactions(ctx, s.db, loanID)
}

func loadTransactions(ctx context.Context, db executor, loanID loan.LoanID) ([]loan.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE loan_id = ?
		ORDER BY tx_date ASC, sequence ASC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []loan.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, loanID, id)
}

func getTransaction(ctx context.Context, db executor, loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE loan_id = ? AND id = ?`, loanID, id)
	if err != nil {
		return loan.Transaction{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return loan.Transaction{}, err
		}
		return loan.Transaction{}, loan.ErrTransactionNotFound
	}
	return scanTransaction(rows)
}

func scanTransaction(rows *sql.Rows) (loan.Transaction, error) {
	var (
		tx          loan.Transaction
		txDate      string
		amount      string
		principal   string
		interest    string
		fee         string
		penalty     string
		overpayment string
		chargeID    sql.NullString
		creditOrder sql.NullString
		createdAt   string
	)
	err := rows.Scan(
		&tx.ID, &tx.LoanID, &tx.Type, &txDate, &tx.Sequence,
		&amount, &principal, &interest, &fee, &penalty, &overpayment,
		&chargeID, &creditOrder, &tx.Reversed, &tx.ManuallyReversed, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Date, err = loan.ParseDate(txDate)
	if err != nil {
		return tx, err
	}
	tx.Amount = loan.MustParseMoney(amount)
	tx.Portions = loan.Portions{
		Principal: loan.MustParseMoney(principal),
		Interest:  loan.MustParseMoney(interest),
		Fee:       loan.MustParseMoney(fee),
		Penalty:   loan.MustParseMoney(penalty),
	}
	tx.Overpayment = loan.MustParseMoney(overpayment)
	tx.ChargeID = loan.ChargeID(chargeID.String)
	if creditOrder.Valid && creditOrder.String != "" {
		if err := json.Unmarshal([]byte(creditOrder.String), &tx.CreditOrder); err != nil {
			return tx, err
		}
	}
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return tx, nil
}

func (s *Store) MarkReversed(ctx context.Context, loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markReversed(ctx, s.db, loanID, id, manual)
}

func markReversed(ctx context.Context, db executor, loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	res, err := db.ExecContext(ctx, `
		UPDATE transactions SET reversed = TRUE, manually_reversed = ?
		WHERE loan_id = ? AND id = ?`, manual, loanID, id)
	if err != nil {
		return err
	}
	return notFoundIfNoRows(res, loan.ErrTransactionNotFound)
}

// =============================================================================
// RELATIONS
// =============================================================================

func (s *Store) AddRelation(ctx context.Context, r loan.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addRelation(ctx, s.db, r)
}

func addRelation(ctx context.Context, db executor, r loan.Relation) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO relations (loan_id, from_id, to_id, rel_type)
		VALUES (?, ?, ?, ?)`,
		r.LoanID, r.From, r.To, r.Type)
	return err
}

func (s *Store) LoadRelations(ctx context.Context, loanID loan.LoanID) ([]loan.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadRelations(ctx, s.db, loanID)
}

func loadRelations(ctx context.Context, db executor, loanID loan.LoanID) ([]loan.Relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT loan_id, from_id, to_id, rel_type
		FROM relations WHERE loan_id = ?`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []loan.Relation
	for rows.Next() {
		var r loan.Relation
		if err := rows.Scan(&r.LoanID, &r.From, &r.To, &r.Type); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// =============================================================================
// PAUSES
// =============================================================================

func (s *Store) AddPause(ctx context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addPause(ctx, s.db, loanID, p)
}

func addPause(ctx context.Context, db executor, loanID loan.LoanID, p loan.InterestPause) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO pauses (id, loan_id, start_date, end_date)
		VALUES (?, ?, ?, ?)`,
		p.ID, loanID, p.Start.String(), p.End.String())
	return err
}

func (s *Store) UpdatePause(ctx context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePause(ctx, s.db, loanID, p)
}

func updatePause(ctx context.Context, db executor, loanID loan.LoanID, p loan.InterestPause) error {
	res, err := db.ExecContext(ctx, `
		UPDATE pauses SET start_date = ?, end_date = ?
		WHERE loan_id = ? AND id = ?`,
		p.Start.String(), p.End.String(), loanID, p.ID)
	if err != nil {
		return err
	}
	return notFoundIfNoRows(res, loan.ErrPauseNotFound)
}

func (s *Store) DeletePause(ctx context.Context, loanID loan.LoanID, id loan.PauseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePause(ctx, s.db, loanID, id)
}

func deletePause(ctx context.Context, db executor, loanID loan.LoanID, id loan.PauseID) error {
	res, err := db.ExecContext(ctx, `
		DELETE FROM pauses WHERE loan_id = ? AND id = ?`, loanID, id)
	if err != nil {
		return err
	}
	return notFoundIfNoRows(res, loan.ErrPauseNotFound)
}

func (s *Store) LoadPauses(ctx context.Context, loanID loan.LoanID) ([]loan.InterestPause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadPauses(ctx, s.db, loanID)
}

func loadPauses(ctx context.Context, db executor, loanID loan.LoanID) ([]loan.InterestPause, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_date, end_date
		FROM pauses WHERE loan_id = ?
		ORDER BY start_date ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pauses []loan.InterestPause
	for rows.Next() {
		var p loan.InterestPause
		var start, end string
		if err := rows.Scan(&p.ID, &start, &end); err != nil {
			return nil, err
		}
		if p.Start, err = loan.ParseDate(start); err != nil {
			return nil, err
		}
		if p.End, err = loan.ParseDate(end); err != nil {
			return nil, err
		}
		pauses = append(pauses, p)
	}
	return pauses, rows.Err()
}

// =============================================================================
// CHARGES
// =============================================================================

func (s *Store) AddCharge(ctx context.Context, c loan.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addCharge(ctx, s.db, c)
}

func addCharge(ctx context.Context, db executor, c loan.Charge) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO charges (id, loan_id, charge_type, charge_date, sequence, amount, original_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LoanID, c.Type, c.Date.String(), c.Sequence,
		c.Amount.Value.String(), c.OriginalAmount.Value.String(),
		c.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) UpdateChargeAmount(ctx context.Context, loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateChargeAmount(ctx, s.db, loanID, id, amount)
}

func updateChargeAmount(ctx context.Context, db executor, loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	res, err := db.ExecContext(ctx, `
		UPDATE charges SET amount = ? WHERE loan_id = ? AND id = ?`,
		amount.Value.String(), loanID, id)
	if err != nil {
		return err
	}
	return notFoundIfNoRows(res, loan.ErrChargeNotFound)
}

func (s *Store) GetCharge(ctx context.Context, loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCharge(ctx, s.db, loanID, id)
}

func getCharge(ctx context.Context, db executor, loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	var (
		c         loan.Charge
		date      string
		amount    string
		original  string
		createdAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, loan_id, charge_type, charge_date, sequence, amount, original_amount, created_at
		FROM charges WHERE loan_id = ? AND id = ?`, loanID, id,
	).Scan(&c.ID, &c.LoanID, &c.Type, &date, &c.Sequence, &amount, &original, &createdAt)
	if err == sql.ErrNoRows {
		return loan.Charge{}, loan.ErrChargeNotFound
	}
	if err != nil {
		return loan.Charge{}, err
	}

	if c.Date, err = loan.ParseDate(date); err != nil {
		return loan.Charge{}, err
	}
	c.Amount = loan.MustParseMoney(amount)
	c.OriginalAmount = loan.MustParseMoney(original)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}

func (s *Store) LoadCharges(ctx context.Context, loanID loan.LoanID) ([]loan.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadCharges(ctx, s.db, loanID)
}

func loadCharges(ctx context.Context, db executor, loanID loan.LoanID) ([]loan.Charge, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, loan_id, charge_type, charge_date, sequence, amount, original_amount, created_at
		FROM charges WHERE loan_id = ?
		ORDER BY charge_date ASC, sequence ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []loan.Charge
	for rows.Next() {
		var (
			c         loan.Charge
			date      string
			amount    string
			original  string
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.LoanID, &c.Type, &date, &c.Sequence, &amount, &original, &createdAt); err != nil {
			return nil, err
		}
		if c.Date, err = loan.ParseDate(date); err != nil {
			return nil, err
		}
		c.Amount = loan.MustParseMoney(amount)
		c.OriginalAmount = loan.MustParseMoney(original)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// =============================================================================
// SEQUENCES
// =============================================================================

func (s *Store) NextSequence(ctx context.Context, loanID loan.LoanID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextSequence(ctx, s.db, loanID)
}

func nextSequence(ctx context.Context, db executor, loanID loan.LoanID) (int, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sequences (loan_id, next) VALUES (?, 2)
		ON CONFLICT(loan_id) DO UPDATE SET next = sequences.next + 1`, loanID)
	if err != nil {
		return 0, err
	}
	var next int
	err = db.QueryRowContext(ctx, `SELECT next FROM sequences WHERE loan_id = ?`, loanID).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next - 1, nil
}

// =============================================================================
// TRANSACTIONAL STORE (loan.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store loan.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every Store call through one *sql.Tx so reads inside the
// transaction observe its own writes.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateLoan(ctx context.Context, l loan.Loan) error { return createLoan(ctx, ts.tx, l) }
func (ts *txStore) GetLoan(ctx context.Context, id loan.LoanID) (loan.Loan, error) {
	return getLoan(ctx, ts.tx, id)
}
func (ts *txStore) UpdateLoan(ctx context.Context, l loan.Loan) error { return updateLoan(ctx, ts.tx, l) }
func (ts *txStore) ListLoans(ctx context.Context) ([]loan.LoanID, error) {
	return listLoans(ctx, ts.tx)
}
func (ts *txStore) AppendTransaction(ctx context.Context, tx loan.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}
func (ts *txStore) AppendTransactions(ctx context.Context, txs []loan.Transaction) error {
	for _, tx := range txs {
		if err := appendTransaction(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}
func (ts *txStore) LoadTransactions(ctx context.Context, loanID loan.LoanID) ([]loan.Transaction, error) {
	return loadTransactions(ctx, ts.tx, loanID)
}
func (ts *txStore) GetTransaction(ctx context.Context, loanID loan.LoanID, id loan.TransactionID) (loan.Transaction, error) {
	return getTransaction(ctx, ts.tx, loanID, id)
}
func (ts *txStore) MarkReversed(ctx context.Context, loanID loan.LoanID, id loan.TransactionID, manual bool) error {
	return markReversed(ctx, ts.tx, loanID, id, manual)
}
func (ts *txStore) AddRelation(ctx context.Context, r loan.Relation) error {
	return addRelation(ctx, ts.tx, r)
}
func (ts *txStore) LoadRelations(ctx context.Context, loanID loan.LoanID) ([]loan.Relation, error) {
	return loadRelations(ctx, ts.tx, loanID)
}
func (ts *txStore) AddPause(ctx context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	return addPause(ctx, ts.tx, loanID, p)
}
func (ts *txStore) UpdatePause(ctx context.Context, loanID loan.LoanID, p loan.InterestPause) error {
	return updatePause(ctx, ts.tx, loanID, p)
}
func (ts *txStore) DeletePause(ctx context.Context, loanID loan.LoanID, id loan.PauseID) error {
	return deletePause(ctx, ts.tx, loanID, id)
}
func (ts *txStore) LoadPauses(ctx context.Context, loanID loan.LoanID) ([]loan.InterestPause, error) {
	return loadPauses(ctx, ts.tx, loanID)
}
func (ts *txStore) AddCharge(ctx context.Context, c loan.Charge) error {
	return addCharge(ctx, ts.tx, c)
}
func (ts *txStore) UpdateChargeAmount(ctx context.Context, loanID loan.LoanID, id loan.ChargeID, amount loan.Money) error {
	return updateChargeAmount(ctx, ts.tx, loanID, id, amount)
}
func (ts *txStore) GetCharge(ctx context.Context, loanID loan.LoanID, id loan.ChargeID) (loan.Charge, error) {
	return getCharge(ctx, ts.tx, loanID, id)
}
func (ts *txStore) LoadCharges(ctx context.Context, loanID loan.LoanID) ([]loan.Charge, error) {
	return loadCharges(ctx, ts.tx, loanID)
}
func (ts *txStore) NextSequence(ctx context.Context, loanID loan.LoanID) (int, error) {
	return nextSequence(ctx, ts.tx, loanID)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "relations", "pauses", "charges", "sequences", "loans"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullDate(d loan.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func parseNullDate(v sql.NullString) loan.Date {
	if !v.Valid || v.String == "" {
		return loan.Date{}
	}
	d, err := loan.ParseDate(v.String)
	if err != nil {
		return loan.Date{}
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func notFoundIfNoRows(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
