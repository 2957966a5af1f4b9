package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is serialized by name, never by position, so reordering
// the constant block cannot corrupt persisted orders.
type OrderStatus string

const (
	StatusOrdered          OrderStatus = "ordered"
	StatusProcessing       OrderStatus = "processing"
	StatusPartiallyShipped OrderStatus = "partially_shipped"
	StatusShipped          OrderStatus = "shipped"
	StatusDelivered        OrderStatus = "delivered"
	StatusCanceled         OrderStatus = "canceled"
	StatusRefunded         OrderStatus = "refunded"
)

// Total line codes every order carries. SUBTOTAL is always first and
// TOTAL always last in an order's total list.
const (
	TotalCodeSubtotal = "SUBTOTAL"
	TotalCodeTax      = "TAX"
	TotalCodeShipping = "SHIPPING"
	TotalCodeTotal    = "TOTAL"
)

// OrderTotal is one named monetary line item. Totals are produced as a
// complete list per computation and never mutated afterwards; codes are
// unique within one order and SortOrder defines the display order.
type OrderTotal struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	ValueCents int64  `json:"value_cents"`
	SortOrder  int    `json:"sort_order"`
}

// OrderStatusHistory is one append-only audit record of a status
// transition. Entries are never edited or removed once written.
type OrderStatusHistory struct {
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment,omitempty"`
	DateAdded time.Time   `json:"date_added"`
}

type LineItem struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

type Address struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Line1       string `json:"line1,omitempty" yaml:"line1,omitempty"`
	Line2       string `json:"line2,omitempty" yaml:"line2,omitempty"`
	City        string `json:"city,omitempty" yaml:"city,omitempty"`
	Region      string `json:"region,omitempty" yaml:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	CountryCode string `json:"country_code" yaml:"country_code"`
}

type Order struct {
	ID              uuid.UUID            `json:"id"`
	MerchantID      uuid.UUID            `json:"merchant_id"`
	OrderNumber     int                  `json:"order_number"`
	CurrencyCode    string               `json:"currency_code"`
	Items           []LineItem           `json:"items"`
	ShippingAddress Address              `json:"shipping_address"`
	BillingAddress  Address              `json:"billing_address"`
	CustomerEmail   string               `json:"customer_email,omitempty"`
	Status          OrderStatus          `json:"status"`
	Totals          []OrderTotal         `json:"totals"`
	History         []OrderStatusHistory `json:"history"`
	CreatedAt       time.Time            `json:"created_at"`
}

// GrandTotalCents returns the TOTAL line of the order, or zero when no
// totals have been computed yet.
func (o *Order) GrandTotalCents() int64 {
	for _, t := range o.Totals {
		if t.Code == TotalCodeTotal {
			return t.ValueCents
		}
	}
	return 0
}

// LatestHistory returns the most recent status history entry, which by
// the append-only invariant always matches the order's current status.
func (o *Order) LatestHistory() (OrderStatusHistory, bool) {
	if len(o.History) == 0 {
		return OrderStatusHistory{}, false
	}
	return o.History[len(o.History)-1], true
}
