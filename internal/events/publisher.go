// Package events publishes order lifecycle events for downstream
// consumers. Publishing is best effort and never blocks or fails the
// operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventTotalsComputed     = "TotalsComputed"
	EventPaymentAuthorized  = "PaymentAuthorized"
	EventPaymentCaptured    = "PaymentCaptured"
	EventPaymentRefunded    = "PaymentRefunded"
)

// Envelope wraps every published event. CorrelationID is the order ID,
// which also serves as the partition key so one order's events stay in
// order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Comment string `json:"comment,omitempty"`
}

type TotalsComputedPayload struct {
	OrderID         string `json:"order_id"`
	GrandTotalCents int64  `json:"grand_total_cents"`
	Warnings        int    `json:"warnings"`
}

type PaymentPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	AmountCents   int64  `json:"amount_cents"`
}

type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NoopPublisher) Close() error                            { return nil }
