// Package totals combines subtotal, discounts, tax, and the selected
// shipping option into the ordered total list of an order.
package totals

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopcoreapp/shopcore/internal/logging"
	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/tax"
)

// Warning codes reported alongside a successful computation.
const (
	WarningDiscountClamped = "discount_clamped"
	WarningZeroTaxFallback = "zero_tax_fallback"
)

// Discount is one applicable discount rule. AmountCents is the positive
// amount to subtract; the emitted total line carries it negated.
type Discount struct {
	Code        string
	Title       string
	AmountCents int64
}

// Warning is a non-fatal anomaly recorded during total computation.
type Warning struct {
	Code    string
	Message string
}

// Config carries the merchant's total-computation rules.
type Config struct {
	// TaxAfterDiscount selects whether tax is computed on the
	// discounted amount (true) or the raw subtotal (false).
	TaxAfterDiscount bool

	// AllowZeroTaxFallback degrades a tax-collaborator failure to a
	// zero TAX line plus a warning instead of failing the computation.
	AllowZeroTaxFallback bool
}

// Input is everything the calculator needs; it holds no shared state,
// so concurrent calls for different orders need no locking.
type Input struct {
	Items     []models.LineItem
	Delivery  models.Address
	TaxRules  tax.Rules
	Shipping  *models.ShippingOption
	Discounts []Discount
}

// Result is the complete ordered total list. Totals always start with
// SUBTOTAL and end with TOTAL, even for an empty order.
type Result struct {
	Totals          []models.OrderTotal
	GrandTotalCents int64
	Warnings        []Warning
}

type Calculator struct {
	tax    tax.Calculator
	cfg    Config
	logger *slog.Logger
}

func NewCalculator(taxCalc tax.Calculator, cfg Config, logger *slog.Logger) *Calculator {
	return &Calculator{tax: taxCalc, cfg: cfg, logger: logger}
}

// Calculate produces the ordered total list for an order in progress.
// A tax failure fails the whole computation unless the merchant allows
// the zero-tax fallback; subtotal plus shipping alone is not a valid
// partial order total.
func (c *Calculator) Calculate(ctx context.Context, input Input) (Result, error) {
	logger := logging.FromContext(ctx, c.logger)

	var result Result
	sortOrder := 0
	emit := func(code, title string, value int64) {
		result.Totals = append(result.Totals, models.OrderTotal{
			Code:       code,
			Title:      title,
			ValueCents: value,
			SortOrder:  sortOrder,
		})
		sortOrder++
	}

	var subtotal int64
	for _, item := range input.Items {
		subtotal += item.UnitPriceCents * int64(item.Quantity)
	}
	emit(models.TotalCodeSubtotal, "Subtotal", subtotal)

	// Discounts come right after the subtotal. The running amount is
	// clamped at zero; excess discount is discarded with a warning
	// rather than failing checkout over a display anomaly.
	discounted := subtotal
	for _, discount := range input.Discounts {
		applied := discount.AmountCents
		if applied > discounted {
			applied = discounted
			result.Warnings = append(result.Warnings, Warning{
				Code:    WarningDiscountClamped,
				Message: fmt.Sprintf("discount %s exceeds remaining order amount, clamped to %d cents", discount.Code, applied),
			})
			logger.Warn("discount clamped to remaining order amount",
				"discount_code", discount.Code,
				"requested_cents", discount.AmountCents,
				"applied_cents", applied)
		}
		discounted -= applied
		emit(discount.Code, discount.Title, -applied)
	}

	taxableAmount := subtotal
	if c.cfg.TaxAfterDiscount {
		taxableAmount = discounted
	}

	taxCents, err := c.tax.ComputeTax(ctx, taxableAmount, input.Delivery, input.TaxRules)
	if err != nil {
		if !c.cfg.AllowZeroTaxFallback {
			return Result{}, fmt.Errorf("%w: %w", tax.ErrUnavailable, err)
		}
		taxCents = 0
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningZeroTaxFallback,
			Message: "tax calculator unavailable, merchant configuration allows zero-tax fallback",
		})
		logger.Warn("tax calculator unavailable, falling back to zero tax", "error", err)
	}
	emit(models.TotalCodeTax, "Tax", taxCents)

	if input.Shipping != nil {
		emit(models.TotalCodeShipping, "Shipping ("+input.Shipping.OptionName+")", input.Shipping.PriceCents)
	}

	var grand int64
	for _, total := range result.Totals {
		grand += total.ValueCents
	}
	emit(models.TotalCodeTotal, "Total", grand)
	result.GrandTotalCents = grand

	return result, nil
}
