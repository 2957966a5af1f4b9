package shipping

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopcoreapp/shopcore/internal/models"
)

func TestFlatRateModule(t *testing.T) {
	t.Parallel()

	module := NewFlatRateModule()

	t.Run("missing rate fails validation", func(t *testing.T) {
		t.Parallel()
		err := module.ValidateConfiguration(IntegrationConfiguration{ModuleCode: FlatRateModuleCode})
		if err == nil {
			t.Fatalf("expected validation error for missing rate_cents")
		}
	})

	t.Run("quotes the configured rate", func(t *testing.T) {
		t.Parallel()
		cfg := IntegrationConfiguration{
			ModuleCode: FlatRateModuleCode,
			Enabled:    true,
			Settings:   map[string]string{"rate_cents": "599", "estimated_days": "5"},
		}
		options, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
			Delivery: models.Address{CountryCode: "US"},
		}, cfg)
		if err != nil {
			t.Fatalf("GetShippingQuotes() error: %v", err)
		}
		if len(options) != 1 || options[0].PriceCents != 599 || options[0].EstimatedDays != 5 {
			t.Fatalf("unexpected options: %+v", options)
		}
	})

	t.Run("unserved country yields empty list", func(t *testing.T) {
		t.Parallel()
		cfg := IntegrationConfiguration{
			ModuleCode: FlatRateModuleCode,
			Settings:   map[string]string{"rate_cents": "599", "countries": "US, CA"},
		}
		options, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
			Delivery: models.Address{CountryCode: "DE"},
		}, cfg)
		if err != nil {
			t.Fatalf("GetShippingQuotes() error: %v", err)
		}
		if len(options) != 0 {
			t.Fatalf("expected no options for unserved country, got %+v", options)
		}
	})
}

func TestPerItemModule(t *testing.T) {
	t.Parallel()

	module := NewPerItemModule()
	cfg := IntegrationConfiguration{
		ModuleCode: PerItemModuleCode,
		Settings:   map[string]string{"rate_cents": "250"},
	}

	options, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
		Delivery: models.Address{CountryCode: "US"},
		Packages: []models.Package{{WeightGrams: 100}, {WeightGrams: 200}, {WeightGrams: 300}},
	}, cfg)
	if err != nil {
		t.Fatalf("GetShippingQuotes() error: %v", err)
	}
	if len(options) != 1 || options[0].PriceCents != 750 {
		t.Fatalf("expected 3 x 250 = 750, got %+v", options)
	}
}

func TestWeightTableModule(t *testing.T) {
	t.Parallel()

	module := NewWeightTableModule()
	cfg := IntegrationConfiguration{
		ModuleCode: WeightTableModuleCode,
		Settings:   map[string]string{"table": "1000:599, 5000:1299, *:2499"},
	}

	tests := []struct {
		name        string
		totalWeight int
		want        int64
	}{
		{"light shipment uses first bracket", 800, 599},
		{"bracket boundary is inclusive", 1000, 599},
		{"mid-weight shipment", 3200, 1299},
		{"heavy shipment falls through to catch-all", 9000, 2499},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			options, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
				Delivery: models.Address{CountryCode: "US"},
				Packages: []models.Package{{WeightGrams: tc.totalWeight}},
			}, cfg)
			if err != nil {
				t.Fatalf("GetShippingQuotes() error: %v", err)
			}
			if len(options) != 1 || options[0].PriceCents != tc.want {
				t.Fatalf("price = %+v, want %d", options, tc.want)
			}
		})
	}

	t.Run("table without catch-all fails validation", func(t *testing.T) {
		t.Parallel()
		err := module.ValidateConfiguration(IntegrationConfiguration{
			ModuleCode: WeightTableModuleCode,
			Settings:   map[string]string{"table": "1000:599"},
		})
		if err == nil {
			t.Fatalf("expected validation error for missing catch-all bracket")
		}
	})
}

func TestCarrierAPIModule(t *testing.T) {
	t.Parallel()

	t.Run("validation requires endpoint and api key", func(t *testing.T) {
		t.Parallel()
		module := NewCarrierAPIModule(nil)

		err := module.ValidateConfiguration(IntegrationConfiguration{ModuleCode: CarrierAPIModuleCode})
		if err == nil {
			t.Fatalf("expected validation error for missing endpoint")
		}

		err = module.ValidateConfiguration(IntegrationConfiguration{
			ModuleCode: CarrierAPIModuleCode,
			Settings:   map[string]string{"endpoint": "https://rates.example.com/v1/quote"},
		})
		if err == nil {
			t.Fatalf("expected validation error for missing api_key")
		}
	})

	t.Run("decodes carrier options", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
				t.Errorf("Authorization header = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"options":[
				{"code":"GROUND","name":"Ground","price_cents":899,"estimated_days":6},
				{"code":"EXPRESS","name":"Express","price_cents":2199,"estimated_days":2}
			]}`))
		}))
		defer server.Close()

		module := NewCarrierAPIModule(server.Client())
		cfg := IntegrationConfiguration{
			ModuleCode:  CarrierAPIModuleCode,
			Settings:    map[string]string{"endpoint": server.URL},
			Credentials: map[string]string{"api_key": "sk_test_123"},
		}

		options, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
			Delivery: models.Address{CountryCode: "US"},
			Packages: []models.Package{{WeightGrams: 500}},
		}, cfg)
		if err != nil {
			t.Fatalf("GetShippingQuotes() error: %v", err)
		}
		if len(options) != 2 {
			t.Fatalf("got %d options, want 2: %+v", len(options), options)
		}
		if options[0].OptionCode != "GROUND" || options[0].PriceCents != 899 {
			t.Fatalf("unexpected first option: %+v", options[0])
		}
		if options[1].ModuleCode != CarrierAPIModuleCode {
			t.Fatalf("module code not set: %+v", options[1])
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		module := NewCarrierAPIModule(server.Client())
		cfg := IntegrationConfiguration{
			ModuleCode:  CarrierAPIModuleCode,
			Settings:    map[string]string{"endpoint": server.URL},
			Credentials: map[string]string{"api_key": "sk_test_123"},
		}

		if _, err := module.GetShippingQuotes(t.Context(), QuoteRequest{
			Delivery: models.Address{CountryCode: "US"},
		}, cfg); err == nil {
			t.Fatalf("expected error on non-200 response")
		}
	})
}
