package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/cache"
	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/shipping"
	"github.com/shopcoreapp/shopcore/internal/totals"
)

type fakeQuoteProvider struct {
	calls int
	quote *models.ShippingQuote
	err   error
}

func (f *fakeQuoteProvider) GetShippingQuotes(_ context.Context, _ shipping.QuoteRequest) (*models.ShippingQuote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

type fakeCalculator struct {
	result totals.Result
	err    error
}

func (f *fakeCalculator) Calculate(_ context.Context, _ totals.Input) (totals.Result, error) {
	if f.err != nil {
		return totals.Result{}, f.err
	}
	return f.result, nil
}

func quoteRequest(merchantID uuid.UUID, country string) shipping.QuoteRequest {
	return shipping.QuoteRequest{
		MerchantID:      merchantID,
		Packages:        []models.Package{{WeightGrams: 500}},
		Delivery:        models.Address{CountryCode: country},
		OrderTotalCents: 4998,
	}
}

func TestCheckoutService_GetShippingQuotesCaches(t *testing.T) {
	t.Parallel()

	provider := &fakeQuoteProvider{
		quote: &models.ShippingQuote{
			Options: []models.ShippingOption{
				{OptionCode: "flatrate.standard", PriceCents: 599, ModuleCode: "flatrate"},
			},
		},
	}
	memory, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error: %v", err)
	}
	service := NewCheckoutService(provider, &fakeCalculator{}, memory, time.Minute, nil)

	req := quoteRequest(uuid.New(), "US")
	for i := 0; i < 3; i++ {
		quote, err := service.GetShippingQuotes(t.Context(), req)
		if err != nil {
			t.Fatalf("GetShippingQuotes() call %d error: %v", i, err)
		}
		if len(quote.Options) != 1 || quote.Options[0].OptionCode != "flatrate.standard" {
			t.Fatalf("unexpected quote options: %+v", quote.Options)
		}
	}

	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1 (cached afterwards)", provider.calls)
	}
}

func TestCheckoutService_GetShippingQuotesDistinctRequests(t *testing.T) {
	t.Parallel()

	provider := &fakeQuoteProvider{quote: &models.ShippingQuote{}}
	memory, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error: %v", err)
	}
	service := NewCheckoutService(provider, &fakeCalculator{}, memory, time.Minute, nil)

	merchantID := uuid.New()
	if _, err := service.GetShippingQuotes(t.Context(), quoteRequest(merchantID, "US")); err != nil {
		t.Fatalf("GetShippingQuotes() error: %v", err)
	}
	if _, err := service.GetShippingQuotes(t.Context(), quoteRequest(merchantID, "CA")); err != nil {
		t.Fatalf("GetShippingQuotes() error: %v", err)
	}

	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 for distinct destinations", provider.calls)
	}
}

func TestCheckoutService_GetShippingQuotesWithoutCache(t *testing.T) {
	t.Parallel()

	provider := &fakeQuoteProvider{quote: &models.ShippingQuote{}}
	service := NewCheckoutService(provider, &fakeCalculator{}, nil, time.Minute, nil)

	req := quoteRequest(uuid.New(), "US")
	if _, err := service.GetShippingQuotes(t.Context(), req); err != nil {
		t.Fatalf("GetShippingQuotes() error: %v", err)
	}
	if _, err := service.GetShippingQuotes(t.Context(), req); err != nil {
		t.Fatalf("GetShippingQuotes() error: %v", err)
	}

	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 without a cache", provider.calls)
	}
}

func TestCheckoutService_GetShippingQuotesPropagatesError(t *testing.T) {
	t.Parallel()

	provider := &fakeQuoteProvider{err: shipping.ErrNoShippingOptions}
	memory, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error: %v", err)
	}
	service := NewCheckoutService(provider, &fakeCalculator{}, memory, time.Minute, nil)

	_, err = service.GetShippingQuotes(t.Context(), quoteRequest(uuid.New(), "US"))
	if !errors.Is(err, shipping.ErrNoShippingOptions) {
		t.Fatalf("GetShippingQuotes() error = %v, want ErrNoShippingOptions", err)
	}
}

func TestCheckoutService_CalculateOrderTotal(t *testing.T) {
	t.Parallel()

	calculator := &fakeCalculator{
		result: totals.Result{
			Totals: []models.OrderTotal{
				{Code: models.TotalCodeSubtotal, ValueCents: 4998},
				{Code: models.TotalCodeTotal, ValueCents: 4998, SortOrder: 1},
			},
			GrandTotalCents: 4998,
			Warnings:        []totals.Warning{{Code: totals.WarningDiscountClamped}},
		},
	}
	service := NewCheckoutService(&fakeQuoteProvider{}, calculator, nil, time.Minute, nil)

	result, err := service.CalculateOrderTotal(t.Context(), totals.Input{})
	if err != nil {
		t.Fatalf("CalculateOrderTotal() error: %v", err)
	}
	if result.GrandTotalCents != 4998 {
		t.Fatalf("grand total = %d, want 4998", result.GrandTotalCents)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %+v", result.Warnings)
	}
}

func TestCheckoutService_CalculateOrderTotalError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("tax region lookup failed")
	service := NewCheckoutService(&fakeQuoteProvider{}, &fakeCalculator{err: wantErr}, nil, time.Minute, nil)

	_, err := service.CalculateOrderTotal(t.Context(), totals.Input{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("CalculateOrderTotal() error = %v, want %v", err, wantErr)
	}
}
