package shipping

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopcoreapp/shopcore/internal/models"
)

const WeightTableModuleCode = "weighttable"

// WeightTableModule prices by total shipment weight using a bracket
// table setting such as "1000:599,5000:1299,*:2499" — up to 1kg costs
// 5.99, up to 5kg costs 12.99, anything heavier 24.99. The "*" bracket
// is the required catch-all.
type WeightTableModule struct{}

func NewWeightTableModule() *WeightTableModule {
	return &WeightTableModule{}
}

func (m *WeightTableModule) Code() string { return WeightTableModuleCode }

func (m *WeightTableModule) ValidateConfiguration(cfg IntegrationConfiguration) error {
	_, _, err := parseWeightTable(cfg.Setting("table"))
	return err
}

func (m *WeightTableModule) GetShippingQuotes(ctx context.Context, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ServesCountry(cfg, req.Delivery) {
		return nil, nil
	}

	brackets, catchAll, err := parseWeightTable(cfg.Setting("table"))
	if err != nil {
		return nil, err
	}

	weight := TotalWeightGrams(req.Packages)
	price := catchAll
	for _, bracket := range brackets {
		if weight <= bracket.maxGrams {
			price = bracket.priceCents
			break
		}
	}

	return []models.ShippingOption{{
		OptionCode:    "WEIGHT",
		OptionName:    "Weight-based shipping",
		PriceCents:    price,
		EstimatedDays: parseOptionalDays(cfg),
		ModuleCode:    WeightTableModuleCode,
	}}, nil
}

type weightBracket struct {
	maxGrams   int
	priceCents int64
}

func parseWeightTable(raw string) ([]weightBracket, int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, 0, fmt.Errorf("module %s requires setting %q", WeightTableModuleCode, "table")
	}

	var brackets []weightBracket
	catchAll := int64(-1)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, 0, fmt.Errorf("invalid weight table entry %q", entry)
		}

		price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || price < 0 {
			return nil, 0, fmt.Errorf("invalid price in weight table entry %q", entry)
		}

		limit := strings.TrimSpace(parts[0])
		if limit == "*" {
			catchAll = price
			continue
		}
		maxGrams, err := strconv.Atoi(limit)
		if err != nil || maxGrams <= 0 {
			return nil, 0, fmt.Errorf("invalid weight limit in table entry %q", entry)
		}
		brackets = append(brackets, weightBracket{maxGrams: maxGrams, priceCents: price})
	}

	if catchAll < 0 {
		return nil, 0, fmt.Errorf("weight table requires a %q catch-all bracket", "*")
	}

	sort.Slice(brackets, func(i, j int) bool { return brackets[i].maxGrams < brackets[j].maxGrams })
	return brackets, catchAll, nil
}
