package loan

import "testing"

func journalSides(entries []JournalEntry) (debits, credits Money) {
	debits, credits = ZeroMoney(), ZeroMoney()
	for _, e := range entries {
		if e.Side == Debit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

func findEntry(entries []JournalEntry, account Account, side Side) (JournalEntry, bool) {
	for _, e := range entries {
		if e.Account == account && e.Side == side {
			return e, true
		}
	}
	return JournalEntry{}, false
}

func TestDisbursementJournal(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:     "tx-1",
		Type:   TxDisbursement,
		Amount: MustParseMoney("1000"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if e, ok := findEntry(entries, AccountLoansReceivable, Debit); !ok || !e.Amount.Equal(MustParseMoney("1000")) {
		t.Errorf("missing 1000.00 debit on loans receivable")
	}
	if _, ok := findEntry(entries, AccountFundSource, Credit); !ok {
		t.Errorf("missing credit on fund source")
	}
}

func TestRepaymentJournalWithOverpayment(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:     "tx-2",
		Type:   TxRepayment,
		Amount: MustParseMoney("102"),
		Portions: ZeroPortions().
			With(ComponentPrincipal, MustParseMoney("100")),
		Overpayment: MustParseMoney("2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	debits, credits := journalSides(entries)
	if !debits.Equal(MustParseMoney("102")) || !credits.Equal(MustParseMoney("102")) {
		t.Errorf("debits %s / credits %s, want 102.00 on both sides", debits, credits)
	}
	if e, ok := findEntry(entries, AccountOverpaymentLiability, Credit); !ok || !e.Amount.Equal(MustParseMoney("2")) {
		t.Errorf("missing 2.00 credit on overpayment liability")
	}
}

func TestInterestRefundJournal(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:       "tx-3",
		Type:     TxInterestRefund,
		Amount:   MustParseMoney("5.75"),
		Portions: ZeroPortions().With(ComponentInterest, MustParseMoney("5.75")),
	})
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := findEntry(entries, AccountInterestIncome, Debit); !ok || !e.Amount.Equal(MustParseMoney("5.75")) {
		t.Errorf("missing 5.75 debit on interest income")
	}
	if _, ok := findEntry(entries, AccountInterestReceivable, Credit); !ok {
		t.Errorf("missing credit on interest receivable")
	}
}

func TestChargebackJournal(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:       "tx-4",
		Type:     TxChargeback,
		Amount:   MustParseMoney("250"),
		Portions: ZeroPortions().With(ComponentPrincipal, MustParseMoney("250")),
	})
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := findEntry(entries, AccountLoansReceivable, Debit); !ok || !e.Amount.Equal(MustParseMoney("250")) {
		t.Errorf("missing 250.00 debit on loans receivable")
	}
	if _, ok := findEntry(entries, AccountFundSource, Credit); !ok {
		t.Errorf("missing credit on fund source")
	}
}

// A charge adjustment that refunds already-paid fee flows the refund to the
// overpayment liability instead of the receivable.
func TestChargeAdjustmentJournalSplitsRefund(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:          "tx-5",
		Type:        TxChargeAdjustment,
		Amount:      MustParseMoney("6"),
		Portions:    ZeroPortions().With(ComponentFee, MustParseMoney("6")),
		Overpayment: MustParseMoney("6"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := findEntry(entries, AccountFeeIncome, Debit); !ok || !e.Amount.Equal(MustParseMoney("6")) {
		t.Errorf("missing 6.00 debit on fee income")
	}
	if e, ok := findEntry(entries, AccountOverpaymentLiability, Credit); !ok || !e.Amount.Equal(MustParseMoney("6")) {
		t.Errorf("missing 6.00 credit on overpayment liability")
	}
	if _, ok := findEntry(entries, AccountFeeReceivable, Credit); ok {
		t.Errorf("fully refunded adjustment should not credit the receivable")
	}
}

func TestAccrualJournalFlipsWhenNegative(t *testing.T) {
	entries, err := EntriesFor(Transaction{
		ID:     "tx-6",
		Type:   TxAccrual,
		Amount: MustParseMoney("5.75"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findEntry(entries, AccountInterestReceivable, Debit); !ok {
		t.Errorf("positive accrual should debit the receivable")
	}

	entries, err = EntriesFor(Transaction{
		ID:     "tx-7",
		Type:   TxAccrualAdjustment,
		Amount: MustParseMoney("-2.50"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := findEntry(entries, AccountInterestIncome, Debit); !ok || !e.Amount.Equal(MustParseMoney("2.50")) {
		t.Errorf("negative accrual should debit interest income with the absolute amount")
	}
}

func TestJournalAlwaysBalances(t *testing.T) {
	txs := []Transaction{
		{ID: "b-1", Type: TxDisbursement, Amount: MustParseMoney("500")},
		{ID: "b-2", Type: TxRepayment, Amount: MustParseMoney("75"),
			Portions: ZeroPortions().
				With(ComponentPrincipal, MustParseMoney("50")).
				With(ComponentInterest, MustParseMoney("20")),
			Overpayment: MustParseMoney("5")},
		{ID: "b-3", Type: TxInterestPaymentWaiver, Amount: MustParseMoney("20"),
			Portions: ZeroPortions().With(ComponentInterest, MustParseMoney("20"))},
		{ID: "b-4", Type: TxChargeback, Amount: MustParseMoney("30"),
			Portions: ZeroPortions().
				With(ComponentFee, MustParseMoney("10")).
				With(ComponentPrincipal, MustParseMoney("20"))},
	}
	for _, tx := range txs {
		entries, err := EntriesFor(tx)
		if err != nil {
			t.Fatalf("%s: %v", tx.ID, err)
		}
		debits, credits := journalSides(entries)
		if !debits.Equal(credits) {
			t.Errorf("%s: debits %s != credits %s", tx.ID, debits, credits)
		}
	}
}
