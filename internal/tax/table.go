package tax

import (
	"context"
	"strings"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// TableCalculator resolves the most specific configured rate for the
// delivery jurisdiction: country+region beats country-only. A
// jurisdiction with no configured rate is taxed at zero.
type TableCalculator struct{}

func NewTableCalculator() *TableCalculator {
	return &TableCalculator{}
}

func (c *TableCalculator) ComputeTax(ctx context.Context, amountCents int64, delivery models.Address, rules Rules) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amountCents <= 0 {
		return 0, nil
	}

	rate, ok := resolveRate(delivery, rules)
	if !ok {
		return 0, nil
	}

	return roundHalfUp(amountCents*int64(rate.BasisPoints), 10_000), nil
}

func resolveRate(delivery models.Address, rules Rules) (Rate, bool) {
	country := normalizeCode(delivery.CountryCode)
	region := normalizeCode(delivery.Region)

	var countryMatch Rate
	countryFound := false
	for _, rate := range rules.Rates {
		if normalizeCode(rate.CountryCode) != country {
			continue
		}
		rateRegion := normalizeCode(rate.Region)
		if rateRegion != "" {
			if rateRegion == region {
				return rate, true
			}
			continue
		}
		if !countryFound {
			countryMatch = rate
			countryFound = true
		}
	}
	return countryMatch, countryFound
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func roundHalfUp(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
