package models

// Package dimensions use grams and centimeters; declared value is used
// by carriers that price by value.
type Package struct {
	WeightGrams        int   `json:"weight_grams"`
	LengthCm           int   `json:"length_cm"`
	WidthCm            int   `json:"width_cm"`
	HeightCm           int   `json:"height_cm"`
	DeclaredValueCents int64 `json:"declared_value_cents"`
}

// ShippingOption is one carrier offer. Options are produced fresh per
// quote request and never persisted; only the selected option's price
// is captured as the order's SHIPPING total line.
type ShippingOption struct {
	OptionCode    string `json:"option_code"`
	OptionName    string `json:"option_name"`
	PriceCents    int64  `json:"price_cents"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
	ModuleCode    string `json:"module_code"`
}

// QuoteWarning records a per-module failure that was recovered locally
// by omitting that module's options from the merged result.
type QuoteWarning struct {
	ModuleCode string `json:"module_code"`
	Reason     string `json:"reason"`
}

// ShippingQuote is the scratch request/response context of one quote
// operation. It is never owned by an order; it lives for the duration
// of a checkout at most.
type ShippingQuote struct {
	Packages        []Package        `json:"packages"`
	Delivery        Address          `json:"delivery"`
	Origin          Address          `json:"origin"`
	OrderTotalCents int64            `json:"order_total_cents"`
	Locale          string           `json:"locale,omitempty"`
	Options         []ShippingOption `json:"options"`
	Warnings        []QuoteWarning   `json:"warnings,omitempty"`
}
