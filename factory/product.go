/*
Package factory provides JSON to Go product-terms conversion.

PURPOSE:
  Converts JSON loan product definitions into loan.ProductTerms. This
  enables product configuration without code changes - credit operations
  can define products in JSON, and the factory creates the proper Go
  structs with validated enums and sensible defaults.

JSON SCHEMA:
  {
    "principal": "1000.00",
    "annual_rate": "9.99",
    "periods": 12,
    "frequency": "monthly",
    "amortization": "equal_installment",
    "interest": "declining_balance",
    "day_count": "actual/actual",
    "multi_tranche": false,
    "interest_recalculation": true,
    "interest_refund_types": ["merchant_issued_refund"],
    "allocation_order": ["past_due_penalty", "..."],
    "future_installment_rule": "last_installment",
    "credit_allocation_order": ["principal", "interest", "fee", "penalty"]
  }

DEFAULTS:
  Omitted enums fall back to the standard consumer-credit product:
  monthly equal-installment, declining balance, actual/actual, the
  default allocation orders.

USAGE:
  terms, err := factory.ParseTerms(jsonStr)

SEE ALSO:
  - loan/loan.go: ProductTerms definition
  - api/handlers.go: accepts TermsJSON in loan creation requests
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairlend/loan-engine/loan"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TermsJSON is the JSON representation of loan product terms.
type TermsJSON struct {
	Principal  string `json:"principal"`
	AnnualRate string `json:"annual_rate"`
	Periods    int    `json:"periods"`
	Frequency  string `json:"frequency,omitempty"`

	Amortization string `json:"amortization,omitempty"`
	Interest     string `json:"interest,omitempty"`
	DayCount     string `json:"day_count,omitempty"`

	MultiTranche          bool `json:"multi_tranche,omitempty"`
	InterestRecalculation bool `json:"interest_recalculation,omitempty"`

	InterestRefundTypes []string `json:"interest_refund_types,omitempty"`

	AllocationOrder       []string `json:"allocation_order,omitempty"`
	FutureInstallmentRule string   `json:"future_installment_rule,omitempty"`
	CreditAllocationOrder []string `json:"credit_allocation_order,omitempty"`
}

// =============================================================================
// TERMS FACTORY
// =============================================================================

// ParseTerms parses a JSON string into ProductTerms.
func ParseTerms(jsonStr string) (loan.ProductTerms, error) {
	var tj TermsJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return loan.ProductTerms{}, fmt.Errorf("failed to parse terms JSON: %w", err)
	}
	return FromJSON(tj)
}

// FromJSON converts TermsJSON to ProductTerms, applying defaults and
// validating every enum.
func FromJSON(tj TermsJSON) (loan.ProductTerms, error) {
	principal, err := decimal.NewFromString(tj.Principal)
	if err != nil {
		return loan.ProductTerms{}, fmt.Errorf("invalid principal %q: %w", tj.Principal, err)
	}
	rate, err := decimal.NewFromString(tj.AnnualRate)
	if err != nil {
		return loan.ProductTerms{}, fmt.Errorf("invalid annual_rate %q: %w", tj.AnnualRate, err)
	}

	terms := loan.ProductTerms{
		Principal:             loan.Money{Value: principal},
		AnnualRate:            rate,
		Periods:               tj.Periods,
		Frequency:             loan.Monthly,
		Amortization:          loan.EqualInstallment,
		Interest:              loan.InterestDecliningBalance,
		DayCount:              loan.ActualActual,
		MultiTranche:          tj.MultiTranche,
		InterestRecalculation: tj.InterestRecalculation,
		AllocationRule:        loan.DefaultAllocationRule(),
		CreditAllocationRule:  loan.DefaultCreditAllocationRule(),
	}

	if tj.Frequency != "" {
		switch f := loan.RepaymentFrequency(tj.Frequency); f {
		case loan.Monthly, loan.Weekly:
			terms.Frequency = f
		default:
			return loan.ProductTerms{}, fmt.Errorf("unknown frequency %q", tj.Frequency)
		}
	}
	if tj.Amortization != "" {
		switch a := loan.AmortizationType(tj.Amortization); a {
		case loan.EqualInstallment, loan.EqualPrincipal:
			terms.Amortization = a
		default:
			return loan.ProductTerms{}, fmt.Errorf("unknown amortization %q", tj.Amortization)
		}
	}
	if tj.Interest != "" {
		switch i := loan.InterestType(tj.Interest); i {
		case loan.InterestFlat, loan.InterestDecliningBalance:
			terms.Interest = i
		default:
			return loan.ProductTerms{}, fmt.Errorf("unknown interest type %q", tj.Interest)
		}
	}
	if tj.DayCount != "" {
		switch dc := loan.DayCountConvention(tj.DayCount); dc {
		case loan.ActualActual, loan.Actual360, loan.Thirty360:
			terms.DayCount = dc
		default:
			return loan.ProductTerms{}, fmt.Errorf("unknown day count %q", tj.DayCount)
		}
	}

	for _, s := range tj.InterestRefundTypes {
		tt := loan.TransactionType(s)
		if !tt.IsRepaymentLike() {
			return loan.ProductTerms{}, fmt.Errorf("interest_refund_types: %q is not a repayment type", s)
		}
		terms.InterestRefundTypes = append(terms.InterestRefundTypes, tt)
	}

	if len(tj.AllocationOrder) > 0 {
		order, err := parseAllocationOrder(tj.AllocationOrder)
		if err != nil {
			return loan.ProductTerms{}, err
		}
		terms.AllocationRule.Order = order
	}
	if tj.FutureInstallmentRule != "" {
		fr, ok := futureRulesByName[tj.FutureInstallmentRule]
		if !ok {
			return loan.ProductTerms{}, fmt.Errorf("unknown future_installment_rule %q", tj.FutureInstallmentRule)
		}
		terms.AllocationRule.Future = fr
	}
	if len(tj.CreditAllocationOrder) > 0 {
		components, err := parseComponents(tj.CreditAllocationOrder)
		if err != nil {
			return loan.ProductTerms{}, err
		}
		terms.CreditAllocationRule.Order = components
	}

	return terms, nil
}

func parseAllocationOrder(names []string) ([]loan.AllocationSlot, error) {
	slots := make([]loan.AllocationSlot, 0, len(names))
	for _, name := range names {
		slot, ok := slotsByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown allocation slot %q", name)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func parseComponents(names []string) ([]loan.Component, error) {
	components := make([]loan.Component, 0, len(names))
	for _, name := range names {
		switch c := loan.Component(name); c {
		case loan.ComponentPrincipal, loan.ComponentInterest, loan.ComponentFee, loan.ComponentPenalty:
			components = append(components, c)
		default:
			return nil, fmt.Errorf("unknown component %q", name)
		}
	}
	return components, nil
}

var futureRulesByName = map[string]loan.FutureInstallmentAllocationRule{
	"next_installment":      loan.NextInstallment,
	"next_last_installment": loan.NextLastInstallment,
	"last_installment":      loan.LastInstallment,
	"reamortization":        loan.Reamortization,
}

var slotsByName = map[string]loan.AllocationSlot{
	"past_due_penalty":     loan.PastDuePenalty,
	"past_due_fee":         loan.PastDueFee,
	"past_due_interest":    loan.PastDueInterest,
	"past_due_principal":   loan.PastDuePrincipal,
	"due_penalty":          loan.DuePenalty,
	"due_fee":              loan.DueFee,
	"due_interest":         loan.DueInterest,
	"due_principal":        loan.DuePrincipal,
	"in_advance_penalty":   loan.InAdvancePenalty,
	"in_advance_fee":       loan.InAdvanceFee,
	"in_advance_interest":  loan.InAdvanceInterest,
	"in_advance_principal": loan.InAdvancePrincipal,
}
