package loan

import "testing"

func paidInstallment(number int, due Date, principal, interest string) Installment {
	portions := ZeroPortions().
		With(ComponentPrincipal, MustParseMoney(principal)).
		With(ComponentInterest, MustParseMoney(interest))
	return Installment{Number: number, DueDate: due, Due: portions, Paid: portions}
}

// A partial chargeback surrenders the oldest installment completely, in the
// configured component order, before touching the next one.
func TestChargebackUnpaysInstallmentsOldestFirst(t *testing.T) {
	p := &Projection{
		Installments: []Installment{
			paidInstallment(1, NewDate(2021, 2, 1), "100", "10"),
			paidInstallment(2, NewDate(2021, 3, 1), "100", "10"),
		},
		Effects: map[TransactionID]Effect{},
	}

	p.applyChargeback(Transaction{
		ID:          "cb-1",
		Type:        TxChargeback,
		Date:        NewDate(2021, 3, 10),
		Amount:      MustParseMoney("105"),
		CreditOrder: []Component{ComponentPrincipal, ComponentInterest},
	})

	eff := p.Effects["cb-1"]
	if !eff.Portions.Principal.Equal(MustParseMoney("100")) || !eff.Portions.Interest.Equal(MustParseMoney("5")) {
		t.Errorf("reinstated principal=%s interest=%s, want 100.00/5.00",
			eff.Portions.Principal, eff.Portions.Interest)
	}

	first := p.Installments[0]
	if !first.Paid.Principal.IsZero() || !first.Paid.Interest.Equal(MustParseMoney("5")) {
		t.Errorf("first installment paid principal=%s interest=%s, want 0.00/5.00",
			first.Paid.Principal, first.Paid.Interest)
	}

	// The second installment stays fully paid.
	second := p.Installments[1]
	if !second.Paid.Principal.Equal(MustParseMoney("100")) || !second.Paid.Interest.Equal(MustParseMoney("10")) {
		t.Errorf("second installment was touched: paid principal=%s interest=%s",
			second.Paid.Principal, second.Paid.Interest)
	}
}
