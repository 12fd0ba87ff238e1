package loan

import (
	"testing"

	"github.com/shopspring/decimal"
)

func scheduleTerms(principal, rate string, periods int) ProductTerms {
	return ProductTerms{
		Principal:    MustParseMoney(principal),
		AnnualRate:   decimal.RequireFromString(rate),
		Periods:      periods,
		Frequency:    Monthly,
		Amortization: EqualInstallment,
		Interest:     InterestDecliningBalance,
		DayCount:     ActualActual,
	}
}

func monthlyDueDates(first Date, n int) []Date {
	dates := make([]Date, 0, n)
	d := first
	for i := 0; i < n; i++ {
		dates = append(dates, d)
		d = d.AddMonths(1)
	}
	return dates
}

func sumPrincipal(installments []Installment) Money {
	sum := ZeroMoney()
	for _, inst := range installments {
		sum = sum.Add(inst.Due.Principal)
	}
	return sum
}

func TestEqualInstallmentPrincipalSumsToDisbursed(t *testing.T) {
	terms := scheduleTerms("1000", "9.99", 12)
	start := NewDate(2021, 1, 1)
	installments := generateSchedule(terms, start, monthlyDueDates(NewDate(2021, 2, 1), 12), terms.Principal)

	if len(installments) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(installments))
	}
	if got := sumPrincipal(installments); !got.Equal(MustParseMoney("1000")) {
		t.Errorf("scheduled principal sums to %s, want 1000.00", got)
	}
	for i, inst := range installments {
		if inst.Number != i+1 {
			t.Errorf("installment %d numbered %d", i, inst.Number)
		}
		if inst.Due.Interest.IsNegative() {
			t.Errorf("installment %d has negative interest %s", inst.Number, inst.Due.Interest)
		}
	}
	// Declining balance: the first period carries more interest than the last.
	first, last := installments[0].Due.Interest, installments[11].Due.Interest
	if !first.GreaterThan(last) {
		t.Errorf("expected declining interest, first %s <= last %s", first, last)
	}
}

func TestZeroRateSplitsEvenlyWithLastPeriodRemainder(t *testing.T) {
	terms := scheduleTerms("1000", "0", 12)
	installments := generateSchedule(terms, NewDate(2021, 1, 1), monthlyDueDates(NewDate(2021, 2, 1), 12), terms.Principal)

	for i := 0; i < 11; i++ {
		if !installments[i].Due.Principal.Equal(MustParseMoney("83.33")) {
			t.Errorf("installment %d principal %s, want 83.33", i+1, installments[i].Due.Principal)
		}
		if !installments[i].Due.Interest.IsZero() {
			t.Errorf("installment %d interest %s, want 0", i+1, installments[i].Due.Interest)
		}
	}
	// 1000 - 11*83.33 = 83.37: the last period absorbs the remainder.
	if !installments[11].Due.Principal.Equal(MustParseMoney("83.37")) {
		t.Errorf("last principal %s, want 83.37", installments[11].Due.Principal)
	}
	if got := sumPrincipal(installments); !got.Equal(MustParseMoney("1000")) {
		t.Errorf("scheduled principal sums to %s, want 1000.00", got)
	}
}

func TestEqualPrincipalSchedule(t *testing.T) {
	terms := scheduleTerms("1200", "12", 12)
	terms.Amortization = EqualPrincipal
	installments := generateSchedule(terms, NewDate(2021, 1, 1), monthlyDueDates(NewDate(2021, 2, 1), 12), terms.Principal)

	for i, inst := range installments {
		if !inst.Due.Principal.Equal(MustParseMoney("100")) {
			t.Errorf("installment %d principal %s, want 100.00", i+1, inst.Due.Principal)
		}
	}
	first, last := installments[0].Due.Interest, installments[11].Due.Interest
	if !first.GreaterThan(last) {
		t.Errorf("expected declining interest, first %s <= last %s", first, last)
	}
}

func TestFlatInterestSchedule(t *testing.T) {
	terms := scheduleTerms("1200", "10", 12)
	terms.Interest = InterestFlat
	installments := generateSchedule(terms, NewDate(2021, 1, 1), monthlyDueDates(NewDate(2021, 2, 1), 12), terms.Principal)

	// Total interest: 1200 * 10% * 1 year = 120, spread as 10 per period.
	for i, inst := range installments {
		if !inst.Due.Principal.Equal(MustParseMoney("100")) {
			t.Errorf("installment %d principal %s, want 100.00", i+1, inst.Due.Principal)
		}
		if !inst.Due.Interest.Equal(MustParseMoney("10")) {
			t.Errorf("installment %d interest %s, want 10.00", i+1, inst.Due.Interest)
		}
	}
}

func TestThirty360PeriodsCarryEqualInterest(t *testing.T) {
	terms := scheduleTerms("1200", "12", 12)
	terms.DayCount = Thirty360
	installments := generateSchedule(terms, NewDate(2021, 1, 1), monthlyDueDates(NewDate(2021, 2, 1), 12), terms.Principal)

	// 30/360 prices every monthly period at outstanding * 1%.
	if !installments[0].Due.Interest.Equal(MustParseMoney("12")) {
		t.Errorf("first period interest %s, want 12.00", installments[0].Due.Interest)
	}
}

func TestRegenerateFromTrancheKeepsDuePeriods(t *testing.T) {
	terms := scheduleTerms("1000", "0", 12)
	initial := generateSchedule(terms, NewDate(2021, 1, 1), monthlyDueDates(NewDate(2021, 2, 1), 12), MustParseMoney("600"))

	regenerated := regenerateFromTranche(terms, initial, NewDate(2021, 2, 15), MustParseMoney("1000"))

	if len(regenerated) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(regenerated))
	}
	// The period due before the tranche keeps its original 600/12 share.
	if !regenerated[0].Due.Principal.Equal(MustParseMoney("50")) {
		t.Errorf("kept installment principal %s, want 50.00", regenerated[0].Due.Principal)
	}
	// The remaining 950 re-amortizes over 11 periods.
	if !regenerated[1].Due.Principal.Equal(MustParseMoney("86.36")) {
		t.Errorf("regenerated installment principal %s, want 86.36", regenerated[1].Due.Principal)
	}
	if !regenerated[11].Due.Principal.Equal(MustParseMoney("86.40")) {
		t.Errorf("last installment principal %s, want 86.40", regenerated[11].Due.Principal)
	}
	if got := sumPrincipal(regenerated); !got.Equal(MustParseMoney("1000")) {
		t.Errorf("scheduled principal sums to %s, want 1000.00", got)
	}
	for i, inst := range regenerated {
		if inst.Number != i+1 {
			t.Errorf("installment %d numbered %d", i, inst.Number)
		}
	}
}
