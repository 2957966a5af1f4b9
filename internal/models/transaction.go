package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionAuthorize TransactionType = "authorize"
	TransactionCapture   TransactionType = "capture"
	TransactionRefund    TransactionType = "refund"

	// TransactionNone means no further payment operation is permitted.
	TransactionNone TransactionType = "none"
)

// Transaction is one recorded payment-gateway operation. Transactions
// are append-only per order; payment state is always derived from the
// list, never cached in a separate mutable field.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	OrderID     uuid.UUID         `json:"order_id"`
	Type        TransactionType   `json:"type"`
	AmountCents int64             `json:"amount_cents"`
	Details     map[string]string `json:"details,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Detail returns a single gateway detail value, tolerating a nil map.
func (t Transaction) Detail(key string) string {
	if t.Details == nil {
		return ""
	}
	return t.Details[key]
}
