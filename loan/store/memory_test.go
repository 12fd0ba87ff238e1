package store

import (
	"context"
	"errors"
	"testing"

	"github.com/fairlend/loan-engine/loan"
)

func testLoan(id loan.LoanID) loan.Loan {
	return loan.Loan{
		ID: id,
		Terms: loan.ProductTerms{
			Principal: loan.MustParseMoney("1000"),
			Periods:   12,
			Frequency: loan.Monthly,
		},
		Status: loan.StatusCreated,
	}
}

func TestMemoryLoanRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateLoan(ctx, testLoan("l1")); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateLoan(ctx, testLoan("l1")); !errors.Is(err, loan.ErrLoanExists) {
		t.Errorf("duplicate create: got %v, want ErrLoanExists", err)
	}

	got, err := m.GetLoan(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != loan.StatusCreated {
		t.Errorf("status %s, want created", got.Status)
	}

	got.Status = loan.StatusApproved
	if err := m.UpdateLoan(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = m.GetLoan(ctx, "l1")
	if got.Status != loan.StatusApproved {
		t.Errorf("status %s after update, want approved", got.Status)
	}

	if _, err := m.GetLoan(ctx, "nope"); !errors.Is(err, loan.ErrLoanNotFound) {
		t.Errorf("got %v, want ErrLoanNotFound", err)
	}
}

func TestMemoryListLoansKeepsCreationOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, id := range []loan.LoanID{"c", "a", "b"} {
		if err := m.CreateLoan(ctx, testLoan(id)); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := m.ListLoans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []loan.LoanID{"c", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order %v, want %v", ids, want)
		}
	}
}

// Transactions are kept ordered by (date, sequence) no matter the insertion
// order, because the projector folds them as-is.
func TestMemoryTransactionsStayOrdered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	txs := []loan.Transaction{
		{ID: "t3", LoanID: "l1", Date: loan.NewDate(2021, 2, 1), Sequence: 3, Amount: loan.MustParseMoney("10")},
		{ID: "t1", LoanID: "l1", Date: loan.NewDate(2021, 1, 1), Sequence: 1, Amount: loan.MustParseMoney("10")},
		{ID: "t2", LoanID: "l1", Date: loan.NewDate(2021, 1, 1), Sequence: 2, Amount: loan.MustParseMoney("10")},
	}
	for _, tx := range txs {
		if err := m.AppendTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := m.LoadTransactions(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	want := []loan.TransactionID{"t1", "t2", "t3"}
	for i := range want {
		if loaded[i].ID != want[i] {
			t.Fatalf("order %v, want %v", loaded, want)
		}
	}
}

func TestMemoryMarkReversed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tx := loan.Transaction{ID: "t1", LoanID: "l1", Date: loan.NewDate(2021, 1, 1), Sequence: 1}
	if err := m.AppendTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkReversed(ctx, "l1", "t1", true); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetTransaction(ctx, "l1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Reversed || !got.ManuallyReversed {
		t.Errorf("flags %v/%v, want both set", got.Reversed, got.ManuallyReversed)
	}

	if err := m.MarkReversed(ctx, "l1", "missing", false); !errors.Is(err, loan.ErrTransactionNotFound) {
		t.Errorf("got %v, want ErrTransactionNotFound", err)
	}
}

func TestMemorySequencesAreMonotonicPerLoan(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := m.NextSequence(ctx, "l1")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("sequence %d, want %d", got, want)
		}
	}
	// Independent counter per loan.
	if got, _ := m.NextSequence(ctx, "l2"); got != 1 {
		t.Errorf("sequence %d for fresh loan, want 1", got)
	}
}

func TestMemoryRelationDeduplication(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r := loan.Relation{LoanID: "l1", From: "a", To: "b", Type: loan.RelationChargeback}
	if err := m.AddRelation(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRelation(ctx, r); err != nil {
		t.Fatal(err)
	}
	rels, err := m.LoadRelations(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 {
		t.Errorf("got %d relations, want 1", len(rels))
	}
}

func TestMemoryPausesSortedByStart(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.AddPause(ctx, "l1", loan.InterestPause{ID: "p2", Start: loan.NewDate(2021, 3, 1), End: loan.NewDate(2021, 3, 5)})
	_ = m.AddPause(ctx, "l1", loan.InterestPause{ID: "p1", Start: loan.NewDate(2021, 1, 1), End: loan.NewDate(2021, 1, 5)})

	pauses, err := m.LoadPauses(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if pauses[0].ID != "p1" || pauses[1].ID != "p2" {
		t.Errorf("pauses out of order: %v", pauses)
	}

	if err := m.DeletePause(ctx, "l1", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeletePause(ctx, "l1", "p1"); !errors.Is(err, loan.ErrPauseNotFound) {
		t.Errorf("got %v, want ErrPauseNotFound", err)
	}
}

// WithTx must roll every mutation back when fn fails, including sequence
// numbers: the engine relies on rejected operations being atomic no-ops.
func TestTxMemoryRollsBackOnError(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()

	if err := tm.CreateLoan(ctx, testLoan("l1")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s loan.Store) error {
		if _, err := s.NextSequence(ctx, "l1"); err != nil {
			return err
		}
		if err := s.AppendTransaction(ctx, loan.Transaction{
			ID: "t1", LoanID: "l1", Date: loan.NewDate(2021, 1, 1), Sequence: 1,
		}); err != nil {
			return err
		}
		l, err := s.GetLoan(ctx, "l1")
		if err != nil {
			return err
		}
		l.Status = loan.StatusActive
		if err := s.UpdateLoan(ctx, l); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}

	if txs, _ := tm.LoadTransactions(ctx, "l1"); len(txs) != 0 {
		t.Errorf("transaction survived rollback")
	}
	if l, _ := tm.GetLoan(ctx, "l1"); l.Status != loan.StatusCreated {
		t.Errorf("status %s after rollback, want created", l.Status)
	}
	if seq, _ := tm.NextSequence(ctx, "l1"); seq != 1 {
		t.Errorf("sequence %d after rollback, want 1", seq)
	}
}

// Writes inside WithTx are visible to reads in the same transaction.
func TestTxMemoryReadsSeeUncommittedWrites(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(s loan.Store) error {
		if err := s.CreateLoan(ctx, testLoan("l1")); err != nil {
			return err
		}
		if _, err := s.GetLoan(ctx, "l1"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tm.GetLoan(ctx, "l1"); err != nil {
		t.Errorf("committed loan not visible: %v", err)
	}
}
