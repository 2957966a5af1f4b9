package shipping

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopcoreapp/shopcore/internal/models"
)

const FlatRateModuleCode = "flatrate"

// FlatRateModule charges one configured rate regardless of packages.
type FlatRateModule struct{}

func NewFlatRateModule() *FlatRateModule {
	return &FlatRateModule{}
}

func (m *FlatRateModule) Code() string { return FlatRateModuleCode }

func (m *FlatRateModule) ValidateConfiguration(cfg IntegrationConfiguration) error {
	_, err := parseRateCents(cfg, "rate_cents")
	return err
}

func (m *FlatRateModule) GetShippingQuotes(ctx context.Context, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ServesCountry(cfg, req.Delivery) {
		return nil, nil
	}

	rate, err := parseRateCents(cfg, "rate_cents")
	if err != nil {
		return nil, err
	}

	name := cfg.Setting("display_name")
	if name == "" {
		name = "Standard"
	}

	return []models.ShippingOption{{
		OptionCode:    "STANDARD",
		OptionName:    name,
		PriceCents:    rate,
		EstimatedDays: parseOptionalDays(cfg),
		ModuleCode:    FlatRateModuleCode,
	}}, nil
}

func parseRateCents(cfg IntegrationConfiguration, key string) (int64, error) {
	raw := cfg.Setting(key)
	if raw == "" {
		return 0, fmt.Errorf("module %s requires setting %q", cfg.ModuleCode, key)
	}
	rate, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("module %s setting %q must be an integer: %w", cfg.ModuleCode, key, err)
	}
	if rate < 0 {
		return 0, fmt.Errorf("module %s setting %q must not be negative", cfg.ModuleCode, key)
	}
	return rate, nil
}

func parseOptionalDays(cfg IntegrationConfiguration) int {
	raw := cfg.Setting("estimated_days")
	if raw == "" {
		return 0
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0
	}
	return days
}
