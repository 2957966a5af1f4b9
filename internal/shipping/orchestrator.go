package shipping

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/logging"
	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/observability"
)

const defaultModuleTimeout = 10 * time.Second

// ConfigStore provides the merchant's shipping module configurations.
type ConfigStore interface {
	GetIntegrationConfigurations(ctx context.Context, merchantID uuid.UUID) ([]IntegrationConfiguration, error)
}

// Orchestrator invokes every enabled module for a merchant and merges
// the results. Module failures are isolated: a failing module only
// contributes a warning, and the call fails only when no module could
// be invoked at all.
type Orchestrator struct {
	registry      *Registry
	configs       ConfigStore
	moduleTimeout time.Duration
	logger        *slog.Logger
}

func NewOrchestrator(registry *Registry, configs ConfigStore, moduleTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if moduleTimeout <= 0 {
		moduleTimeout = defaultModuleTimeout
	}
	return &Orchestrator{
		registry:      registry,
		configs:       configs,
		moduleTimeout: moduleTimeout,
		logger:        logger,
	}
}

func (o *Orchestrator) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, o.logger)
}

// GetShippingQuotes returns the merged option list sorted by price
// ascending, with the producing module preserved on every option.
func (o *Orchestrator) GetShippingQuotes(ctx context.Context, req QuoteRequest) (*models.ShippingQuote, error) {
	span := sentry.StartSpan(
		ctx,
		"shipping.get_quotes",
		sentry.WithOpName("shipping.orchestrator"),
		sentry.WithDescription("GetShippingQuotes"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := o.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("shipping.quote.requested", 1)

	configurations, err := o.configs.GetIntegrationConfigurations(ctx, req.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipping configurations: %w", err)
	}

	quote := &models.ShippingQuote{
		Packages:        req.Packages,
		Delivery:        req.Delivery,
		Origin:          req.Origin,
		OrderTotalCents: req.OrderTotalCents,
		Locale:          req.Locale,
	}

	invoked := 0
	configured := 0
	for _, cfg := range configurations {
		if !cfg.Enabled {
			continue
		}
		configured++

		module, ok := o.registry.Get(cfg.ModuleCode)
		if !ok {
			quote.Warnings = append(quote.Warnings, models.QuoteWarning{
				ModuleCode: cfg.ModuleCode,
				Reason:     "module not registered",
			})
			logger.Warn("configured shipping module not registered", "module", cfg.ModuleCode)
			continue
		}

		if validateErr := module.ValidateConfiguration(cfg); validateErr != nil {
			quote.Warnings = append(quote.Warnings, models.QuoteWarning{
				ModuleCode: cfg.ModuleCode,
				Reason:     validateErr.Error(),
			})
			meter.Count("shipping.module.failed", 1, sentry.WithAttributes(
				attribute.String("module", cfg.ModuleCode),
				attribute.String("reason", "invalid_configuration"),
			))
			logger.Warn("shipping module configuration invalid", "module", cfg.ModuleCode, "error", validateErr)
			continue
		}

		options, quoteErr := o.invokeModule(ctx, module, req, cfg)
		if quoteErr != nil {
			quote.Warnings = append(quote.Warnings, models.QuoteWarning{
				ModuleCode: cfg.ModuleCode,
				Reason:     quoteErr.Error(),
			})
			meter.Count("shipping.module.failed", 1, sentry.WithAttributes(
				attribute.String("module", cfg.ModuleCode),
				attribute.String("reason", "quote_failed"),
			))
			logger.Warn("shipping module failed to quote", "module", cfg.ModuleCode, "error", quoteErr)
			continue
		}

		invoked++
		for _, option := range options {
			option.ModuleCode = module.Code()
			quote.Options = append(quote.Options, option)
		}
	}

	if configured > 0 && invoked == 0 {
		meter.Count("shipping.quote.failed", 1)
		return nil, fmt.Errorf("%w: %d module(s) configured, all failed", ErrNoShippingOptions, configured)
	}

	quote.Options = mergeOptions(quote.Options)
	meter.Count("shipping.quote.succeeded", 1, sentry.WithAttributes(
		attribute.Int("options", len(quote.Options)),
	))

	return quote, nil
}

// invokeModule bounds a single module call with the per-module timeout.
// The goroutine shields the request from modules that ignore context
// cancellation; a late result is simply dropped.
func (o *Orchestrator) invokeModule(ctx context.Context, module Module, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error) {
	moduleCtx, cancel := context.WithTimeout(ctx, o.moduleTimeout)
	defer cancel()

	type outcome struct {
		options []models.ShippingOption
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		options, err := module.GetShippingQuotes(moduleCtx, req, cfg)
		done <- outcome{options: options, err: err}
	}()

	select {
	case <-moduleCtx.Done():
		return nil, fmt.Errorf("shipping module %s timed out after %s: %w", module.Code(), o.moduleTimeout, moduleCtx.Err())
	case result := <-done:
		return result.options, result.err
	}
}

// mergeOptions deduplicates colliding option codes keeping the cheaper
// offer, then sorts by price ascending with the code as tiebreaker.
func mergeOptions(options []models.ShippingOption) []models.ShippingOption {
	byCode := make(map[string]models.ShippingOption, len(options))
	for _, option := range options {
		existing, seen := byCode[option.OptionCode]
		if !seen || option.PriceCents < existing.PriceCents {
			byCode[option.OptionCode] = option
		}
	}

	merged := make([]models.ShippingOption, 0, len(byCode))
	for _, option := range byCode {
		merged = append(merged, option)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].PriceCents != merged[j].PriceCents {
			return merged[i].PriceCents < merged[j].PriceCents
		}
		return merged[i].OptionCode < merged[j].OptionCode
	})
	return merged
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func equalCountry(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
