// Package events publishes ledger activity to downstream consumers.
// Publishing happens only after the owning database transaction commits.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicTransactionCompleted = "transaction_completed"
	TopicSIPExecuted          = "sip_executed"
)

// Publisher emits domain events. Implementations must not be called from
// inside a database transaction.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// TransactionCompleted is emitted after an expense, income, or investment
// mutation commits.
type TransactionCompleted struct {
	Kind       string          `json:"kind"` // expense | income | investment
	Operation  string          `json:"operation"`
	OwnerID    int64           `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// SIPExecuted is emitted after a scheduled investment purchase commits.
type SIPExecuted struct {
	PlanID      int             `json:"plan_id"`
	OwnerID     int64           `json:"owner_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	NextDueDate time.Time       `json:"next_due_date"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
