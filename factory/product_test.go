package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlend/loan-engine/loan"
)

func TestFromJSONDefaults(t *testing.T) {
	terms, err := FromJSON(TermsJSON{
		Principal:  "1000.00",
		AnnualRate: "9.99",
		Periods:    12,
	})
	require.NoError(t, err)

	assert.True(t, terms.Principal.Equal(loan.MustParseMoney("1000")))
	assert.Equal(t, 12, terms.Periods)
	assert.Equal(t, loan.Monthly, terms.Frequency)
	assert.Equal(t, loan.EqualInstallment, terms.Amortization)
	assert.Equal(t, loan.InterestDecliningBalance, terms.Interest)
	assert.Equal(t, loan.ActualActual, terms.DayCount)
	assert.Equal(t, loan.NextInstallment, terms.AllocationRule.Future)
	assert.Len(t, terms.AllocationRule.Order, 12)
	assert.Equal(t, loan.ComponentPrincipal, terms.CreditAllocationRule.Order[0])
}

func TestFromJSONFullConfiguration(t *testing.T) {
	terms, err := FromJSON(TermsJSON{
		Principal:             "2500.00",
		AnnualRate:            "12.5",
		Periods:               26,
		Frequency:             "weekly",
		Amortization:          "equal_principal",
		Interest:              "flat",
		DayCount:              "30/360",
		MultiTranche:          true,
		InterestRecalculation: true,
		InterestRefundTypes:   []string{"merchant_issued_refund", "payout_refund"},
		AllocationOrder:       []string{"due_interest", "due_principal"},
		FutureInstallmentRule: "last_installment",
		CreditAllocationOrder: []string{"interest", "principal"},
	})
	require.NoError(t, err)

	assert.Equal(t, loan.Weekly, terms.Frequency)
	assert.Equal(t, loan.EqualPrincipal, terms.Amortization)
	assert.Equal(t, loan.InterestFlat, terms.Interest)
	assert.Equal(t, loan.Thirty360, terms.DayCount)
	assert.True(t, terms.MultiTranche)
	assert.True(t, terms.InterestRecalculation)
	assert.True(t, terms.RefundsInterestFor(loan.TxMerchantIssuedRefund))
	assert.True(t, terms.RefundsInterestFor(loan.TxPayoutRefund))
	assert.False(t, terms.RefundsInterestFor(loan.TxRepayment))
	require.Len(t, terms.AllocationRule.Order, 2)
	assert.Equal(t, loan.DueInterest, terms.AllocationRule.Order[0])
	assert.Equal(t, loan.LastInstallment, terms.AllocationRule.Future)
	assert.Equal(t, []loan.Component{loan.ComponentInterest, loan.ComponentPrincipal}, terms.CreditAllocationRule.Order)
}

func TestFromJSONRejectsBadEnums(t *testing.T) {
	base := TermsJSON{Principal: "100", AnnualRate: "5", Periods: 6}

	cases := []struct {
		name   string
		mutate func(*TermsJSON)
	}{
		{"frequency", func(tj *TermsJSON) { tj.Frequency = "daily" }},
		{"amortization", func(tj *TermsJSON) { tj.Amortization = "balloon" }},
		{"interest", func(tj *TermsJSON) { tj.Interest = "compound" }},
		{"day_count", func(tj *TermsJSON) { tj.DayCount = "actual/365" }},
		{"refund_type", func(tj *TermsJSON) { tj.InterestRefundTypes = []string{"disbursement"} }},
		{"allocation_slot", func(tj *TermsJSON) { tj.AllocationOrder = []string{"overdue_interest"} }},
		{"future_rule", func(tj *TermsJSON) { tj.FutureInstallmentRule = "SPREAD" }},
		{"future_rule_case", func(tj *TermsJSON) { tj.FutureInstallmentRule = "LAST_INSTALLMENT" }},
		{"credit_component", func(tj *TermsJSON) { tj.CreditAllocationOrder = []string{"charges"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tj := base
			tc.mutate(&tj)
			_, err := FromJSON(tj)
			assert.Error(t, err)
		})
	}
}

func TestFromJSONRejectsBadNumbers(t *testing.T) {
	_, err := FromJSON(TermsJSON{Principal: "lots", AnnualRate: "5", Periods: 6})
	assert.Error(t, err)

	_, err = FromJSON(TermsJSON{Principal: "100", AnnualRate: "five", Periods: 6})
	assert.Error(t, err)
}

func TestParseTerms(t *testing.T) {
	terms, err := ParseTerms(`{
		"principal": "1000.00",
		"annual_rate": "9.99",
		"periods": 12,
		"interest_recalculation": true,
		"interest_refund_types": ["merchant_issued_refund"]
	}`)
	require.NoError(t, err)
	assert.True(t, terms.InterestRecalculation)
	assert.True(t, terms.RefundsInterestFor(loan.TxMerchantIssuedRefund))

	_, err = ParseTerms(`{not json`)
	assert.Error(t, err)
}
