package shipping

import (
	"context"

	"github.com/shopcoreapp/shopcore/internal/models"
)

const PerItemModuleCode = "peritem"

// PerItemModule charges a configured rate per package.
type PerItemModule struct{}

func NewPerItemModule() *PerItemModule {
	return &PerItemModule{}
}

func (m *PerItemModule) Code() string { return PerItemModuleCode }

func (m *PerItemModule) ValidateConfiguration(cfg IntegrationConfiguration) error {
	_, err := parseRateCents(cfg, "rate_cents")
	return err
}

func (m *PerItemModule) GetShippingQuotes(ctx context.Context, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ServesCountry(cfg, req.Delivery) {
		return nil, nil
	}
	if len(req.Packages) == 0 {
		return nil, nil
	}

	rate, err := parseRateCents(cfg, "rate_cents")
	if err != nil {
		return nil, err
	}

	return []models.ShippingOption{{
		OptionCode:    "PER_ITEM",
		OptionName:    "Per-item shipping",
		PriceCents:    rate * int64(len(req.Packages)),
		EstimatedDays: parseOptionalDays(cfg),
		ModuleCode:    PerItemModuleCode,
	}}, nil
}
