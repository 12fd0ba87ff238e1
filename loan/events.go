/*
events.go - Business event publication

PURPOSE:
  Every mutating engine operation emits one typed business event describing
  the monetary outcome: transaction amount, component portions, remaining
  outstanding balance, overpayment, and for charge-touching operations the
  list of charges the operation paid and by how much. Consumers are external
  (webhooks, analytics, notifications); the engine only guarantees the
  payload shape and that events are published after the state is committed.
*/
package loan

import (
	"context"
	"sync"
)

// =============================================================================
// EVENT PAYLOAD
// =============================================================================

type EventType string

const (
	EventLoanCreated        EventType = "loan.created"
	EventLoanApproved       EventType = "loan.approved"
	EventLoanDisbursed      EventType = "loan.disbursed"
	EventRepaymentApplied   EventType = "loan.repayment.applied"
	EventChargeApplied      EventType = "loan.charge.applied"
	EventChargeAdjusted     EventType = "loan.charge.adjusted"
	EventChargebackApplied  EventType = "loan.chargeback.applied"
	EventTransactionReversed EventType = "loan.transaction.reversed"
	EventInterestPauseChanged EventType = "loan.interest_pause.changed"
	EventAccrualPosted      EventType = "loan.accrual.posted"
	EventCloseOfBusiness    EventType = "loan.close_of_business"
)

// ChargePaidBy names a charge one transaction (fully or partially) paid.
type ChargePaidBy struct {
	ChargeID      ChargeID      `json:"chargeId"`
	Amount        Money         `json:"amount"`
	TransactionID TransactionID `json:"transactionId"`
}

// BusinessEvent is the payload published on every ledger mutation.
type BusinessEvent struct {
	Type          EventType     `json:"type"`
	LoanID        LoanID        `json:"loanId"`
	TransactionID TransactionID `json:"transactionId,omitempty"`
	Date          Date          `json:"date"`

	Amount      Money    `json:"amount"`
	Portions    Portions `json:"portions"`
	Outstanding Portions `json:"outstanding"`
	Overpayment Money    `json:"overpayment"`

	ChargePaidBy []ChargePaidBy `json:"loanChargePaidByList,omitempty"`
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher delivers business events to external consumers. Publish is
// called after the originating state change has committed.
type Publisher interface {
	Publish(ctx context.Context, ev BusinessEvent)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BusinessEvent) {}

// MemoryBus collects events in order. Used by tests and as a fan-out buffer
// for the HTTP layer's event feed.
type MemoryBus struct {
	mu     sync.RWMutex
	events []BusinessEvent
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(_ context.Context, ev BusinessEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Events returns a copy of everything published so far.
func (b *MemoryBus) Events() []BusinessEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BusinessEvent, len(b.events))
	copy(out, b.events)
	return out
}

// EventsFor filters by loan id.
func (b *MemoryBus) EventsFor(id LoanID) []BusinessEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []BusinessEvent
	for _, ev := range b.events {
		if ev.LoanID == id {
			out = append(out, ev)
		}
	}
	return out
}
