// Package tax computes the TAX total line for an order.
package tax

import (
	"context"
	"errors"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// ErrUnavailable signals that the tax collaborator could not produce a
// result. The total calculator treats this as recoverable: the caller
// may retry, or fall back to zero tax under explicit merchant
// configuration.
var ErrUnavailable = errors.New("tax calculator unavailable")

// Rate is one jurisdiction rate in basis points (825 = 8.25%). Region
// is optional; a rate with a region only matches that region.
type Rate struct {
	CountryCode string `yaml:"country"`
	Region      string `yaml:"region,omitempty"`
	BasisPoints int    `yaml:"basis_points"`
}

// Rules is the merchant's tax configuration.
type Rules struct {
	Rates []Rate `yaml:"rates"`
}

// Calculator computes tax on an amount for a delivery jurisdiction.
type Calculator interface {
	ComputeTax(ctx context.Context, amountCents int64, delivery models.Address, rules Rules) (int64, error)
}
