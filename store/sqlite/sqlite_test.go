package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlend/loan-engine/loan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "loans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sqliteTestLoan(id loan.LoanID) loan.Loan {
	return loan.Loan{
		ID: id,
		Terms: loan.ProductTerms{
			Principal:            loan.MustParseMoney("1000"),
			Periods:              12,
			Frequency:            loan.Monthly,
			Amortization:         loan.EqualInstallment,
			Interest:             loan.InterestDecliningBalance,
			DayCount:             loan.ActualActual,
			AllocationRule:       loan.DefaultAllocationRule(),
			CreditAllocationRule: loan.DefaultCreditAllocationRule(),
		},
		StartDate: loan.NewDate(2021, 1, 1),
		Status:    loan.StatusActive,
	}
}

func TestSQLiteLoanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLoan(ctx, sqliteTestLoan("l1")))

	err := s.CreateLoan(ctx, sqliteTestLoan("l1"))
	assert.ErrorIs(t, err, loan.ErrLoanExists)

	got, err := s.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, got.Status)
	assert.Equal(t, "2021-01-01", got.StartDate.String())
	assert.True(t, got.Terms.Principal.Equal(loan.MustParseMoney("1000")))
	assert.Equal(t, 12, got.Terms.Periods)
	assert.Equal(t, loan.ActualActual, got.Terms.DayCount)
	assert.Len(t, got.Terms.AllocationRule.Order, 12)

	got.Status = loan.StatusClosed
	require.NoError(t, s.UpdateLoan(ctx, got))
	got, err = s.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)

	_, err = s.GetLoan(ctx, "missing")
	assert.ErrorIs(t, err, loan.ErrLoanNotFound)
}

func TestSQLiteTransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLoan(ctx, sqliteTestLoan("l1")))

	tx := loan.Transaction{
		ID:       "t1",
		LoanID:   "l1",
		Type:     loan.TxChargeback,
		Date:     loan.NewDate(2021, 3, 10),
		Sequence: 4,
		Amount:   loan.MustParseMoney("250"),
		Portions: loan.ZeroPortions().
			With(loan.ComponentPrincipal, loan.MustParseMoney("200")).
			With(loan.ComponentFee, loan.MustParseMoney("50")),
		Overpayment: loan.ZeroMoney(),
		ChargeID:    "c1",
		CreditOrder: []loan.Component{loan.ComponentFee, loan.ComponentPrincipal},
	}
	require.NoError(t, s.AppendTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, "l1", "t1")
	require.NoError(t, err)
	assert.Equal(t, loan.TxChargeback, got.Type)
	assert.Equal(t, "2021-03-10", got.Date.String())
	assert.Equal(t, 4, got.Sequence)
	assert.True(t, got.Amount.Equal(loan.MustParseMoney("250")))
	assert.True(t, got.Portions.Principal.Equal(loan.MustParseMoney("200")))
	assert.True(t, got.Portions.Fee.Equal(loan.MustParseMoney("50")))
	assert.Equal(t, loan.ChargeID("c1"), got.ChargeID)
	assert.Equal(t, []loan.Component{loan.ComponentFee, loan.ComponentPrincipal}, got.CreditOrder)
	assert.False(t, got.Reversed)

	_, err = s.GetTransaction(ctx, "l1", "missing")
	assert.ErrorIs(t, err, loan.ErrTransactionNotFound)
}

func TestSQLiteTransactionsLoadOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	txs := []loan.Transaction{
		{ID: "t3", LoanID: "l1", Type: loan.TxRepayment, Date: loan.NewDate(2021, 2, 1), Sequence: 3,
			Amount: loan.MustParseMoney("10"), Portions: loan.ZeroPortions(), Overpayment: loan.ZeroMoney()},
		{ID: "t1", LoanID: "l1", Type: loan.TxDisbursement, Date: loan.NewDate(2021, 1, 1), Sequence: 1,
			Amount: loan.MustParseMoney("10"), Portions: loan.ZeroPortions(), Overpayment: loan.ZeroMoney()},
		{ID: "t2", LoanID: "l1", Type: loan.TxRepayment, Date: loan.NewDate(2021, 1, 1), Sequence: 2,
			Amount: loan.MustParseMoney("10"), Portions: loan.ZeroPortions(), Overpayment: loan.ZeroMoney()},
	}
	require.NoError(t, s.AppendTransactions(ctx, txs))

	loaded, err := s.LoadTransactions(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, loan.TransactionID("t1"), loaded[0].ID)
	assert.Equal(t, loan.TransactionID("t2"), loaded[1].ID)
	assert.Equal(t, loan.TransactionID("t3"), loaded[2].ID)
}

func TestSQLiteMarkReversed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := loan.Transaction{ID: "t1", LoanID: "l1", Type: loan.TxRepayment,
		Date: loan.NewDate(2021, 1, 1), Sequence: 1,
		Amount: loan.MustParseMoney("10"), Portions: loan.ZeroPortions(), Overpayment: loan.ZeroMoney()}
	require.NoError(t, s.AppendTransaction(ctx, tx))

	require.NoError(t, s.MarkReversed(ctx, "l1", "t1", true))
	got, err := s.GetTransaction(ctx, "l1", "t1")
	require.NoError(t, err)
	assert.True(t, got.Reversed)
	assert.True(t, got.ManuallyReversed)

	err = s.MarkReversed(ctx, "l1", "missing", false)
	assert.ErrorIs(t, err, loan.ErrTransactionNotFound)
}

func TestSQLiteRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := loan.Relation{LoanID: "l1", From: "a", To: "b", Type: loan.RelationChargeback}
	require.NoError(t, s.AddRelation(ctx, r))
	// Re-adding the same edge is a no-op, not an error.
	require.NoError(t, s.AddRelation(ctx, r))

	rels, err := s.LoadRelations(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, r, rels[0])
}

func TestSQLitePauseLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := loan.InterestPause{ID: "p1", Start: loan.NewDate(2021, 1, 5), End: loan.NewDate(2021, 1, 10)}
	require.NoError(t, s.AddPause(ctx, "l1", p))

	p.End = loan.NewDate(2021, 1, 12)
	require.NoError(t, s.UpdatePause(ctx, "l1", p))

	pauses, err := s.LoadPauses(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, pauses, 1)
	assert.Equal(t, "2021-01-12", pauses[0].End.String())

	require.NoError(t, s.DeletePause(ctx, "l1", "p1"))
	err = s.DeletePause(ctx, "l1", "p1")
	assert.ErrorIs(t, err, loan.ErrPauseNotFound)
}

func TestSQLiteChargeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := loan.Charge{
		ID:             "c1",
		LoanID:         "l1",
		Type:           loan.ChargePenalty,
		Date:           loan.NewDate(2021, 1, 15),
		Sequence:       2,
		Amount:         loan.MustParseMoney("5"),
		OriginalAmount: loan.MustParseMoney("5"),
	}
	require.NoError(t, s.AddCharge(ctx, c))

	got, err := s.GetCharge(ctx, "l1", "c1")
	require.NoError(t, err)
	assert.Equal(t, loan.ChargePenalty, got.Type)
	assert.True(t, got.Amount.Equal(loan.MustParseMoney("5")))

	require.NoError(t, s.UpdateChargeAmount(ctx, "l1", "c1", loan.MustParseMoney("3")))
	got, err = s.GetCharge(ctx, "l1", "c1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(loan.MustParseMoney("3")))
	// The original amount is immutable.
	assert.True(t, got.OriginalAmount.Equal(loan.MustParseMoney("5")))

	_, err = s.GetCharge(ctx, "l1", "missing")
	assert.ErrorIs(t, err, loan.ErrChargeNotFound)
}

func TestSQLiteSequencesAreMonotonicPerLoan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := s.NextSequence(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.NextSequence(ctx, "l2")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSQLiteWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLoan(ctx, sqliteTestLoan("l1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx loan.Store) error {
		if _, err := tx.NextSequence(ctx, "l1"); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, loan.Transaction{
			ID: "t1", LoanID: "l1", Type: loan.TxRepayment,
			Date: loan.NewDate(2021, 1, 1), Sequence: 1,
			Amount: loan.MustParseMoney("10"), Portions: loan.ZeroPortions(), Overpayment: loan.ZeroMoney(),
		}); err != nil {
			return err
		}
		// The uncommitted write is visible inside the transaction.
		if _, err := tx.GetTransaction(ctx, "l1", "t1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txs, err := s.LoadTransactions(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	seq, err := s.NextSequence(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 1, seq, "sequence allocation must roll back with the transaction")
}

func TestSQLiteWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx loan.Store) error {
		return tx.CreateLoan(ctx, sqliteTestLoan("l1"))
	})
	require.NoError(t, err)

	_, err = s.GetLoan(ctx, "l1")
	assert.NoError(t, err)
}
