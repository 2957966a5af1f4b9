package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/shopcoreapp/shopcore/internal/cache"
	"github.com/shopcoreapp/shopcore/internal/logging"
	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/observability"
	"github.com/shopcoreapp/shopcore/internal/shipping"
	"github.com/shopcoreapp/shopcore/internal/totals"
)

const defaultQuoteCacheTTL = 5 * time.Minute

type quoteProvider interface {
	GetShippingQuotes(ctx context.Context, req shipping.QuoteRequest) (*models.ShippingQuote, error)
}

type totalCalculator interface {
	Calculate(ctx context.Context, input totals.Input) (totals.Result, error)
}

// CheckoutService computes shipping quotes and order totals for orders
// in progress. Quotes are cached transiently; totals are always
// computed fresh.
type CheckoutService struct {
	quotes     quoteProvider
	calculator totalCalculator
	cache      cache.Provider
	quoteTTL   time.Duration
	logger     *slog.Logger
}

func NewCheckoutService(quotes quoteProvider, calculator totalCalculator, cacheProvider cache.Provider, quoteTTL time.Duration, logger *slog.Logger) *CheckoutService {
	if quoteTTL <= 0 {
		quoteTTL = defaultQuoteCacheTTL
	}
	return &CheckoutService{
		quotes:     quotes,
		calculator: calculator,
		cache:      cacheProvider,
		quoteTTL:   quoteTTL,
		logger:     logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// GetShippingQuotes returns the merged quote for the request, serving
// from cache when an identical request was quoted recently. Cache
// failures are logged and never fail the request.
func (s *CheckoutService) GetShippingQuotes(ctx context.Context, req shipping.QuoteRequest) (*models.ShippingQuote, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.get_shipping_quotes",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("GetShippingQuotes"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	key, keyErr := quoteCacheKey(req)
	if keyErr == nil && s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var quote models.ShippingQuote
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				meter.Count("checkout.quote.cache_hit", 1)
				return &quote, nil
			}
			logger.Warn("discarding unreadable cached quote", "key", key, "error", err)
		} else if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("quote cache lookup failed", "error", err)
		}
	}

	quote, err := s.quotes.GetShippingQuotes(ctx, req)
	if err != nil {
		meter.Count("checkout.quote.failed", 1)
		return nil, err
	}

	if keyErr == nil && s.cache != nil {
		encoded, err := json.Marshal(quote)
		if err == nil {
			if err := s.cache.Set(ctx, key, string(encoded), s.quoteTTL); err != nil {
				logger.Warn("failed to cache shipping quote", "error", err)
			}
		}
	}
	meter.Count("checkout.quote.cache_miss", 1)

	return quote, nil
}

// CalculateOrderTotal produces the complete total list for an order in
// progress.
func (s *CheckoutService) CalculateOrderTotal(ctx context.Context, input totals.Input) (totals.Result, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.calculate_order_total",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CalculateOrderTotal"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	result, err := s.calculator.Calculate(ctx, input)
	if err != nil {
		meter.Count("checkout.totals.failed", 1)
		return totals.Result{}, fmt.Errorf("failed to calculate order total: %w", err)
	}

	meter.Count("checkout.totals.computed", 1, sentry.WithAttributes(
		attribute.Int("warnings", len(result.Warnings)),
	))
	for _, warning := range result.Warnings {
		s.loggerFromContext(ctx).Warn("order total warning", "code", warning.Code, "message", warning.Message)
	}

	return result, nil
}

// quoteCacheKey fingerprints everything that can change a quote.
func quoteCacheKey(req shipping.QuoteRequest) (string, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint quote request: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return cache.QuoteKey(req.MerchantID.String(), hex.EncodeToString(sum[:])), nil
}
