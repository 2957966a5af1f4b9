package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopcoreapp/shopcore/internal/models"
)

const CarrierAPIModuleCode = "carrierapi"

// CarrierAPIModule quotes against a generic carrier rate HTTP API. The
// endpoint and API key come from the merchant's integration
// configuration; the request context carries the orchestrator's
// per-module timeout.
type CarrierAPIModule struct {
	httpClient *http.Client
}

func NewCarrierAPIModule(httpClient *http.Client) *CarrierAPIModule {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CarrierAPIModule{httpClient: httpClient}
}

func (m *CarrierAPIModule) Code() string { return CarrierAPIModuleCode }

func (m *CarrierAPIModule) ValidateConfiguration(cfg IntegrationConfiguration) error {
	endpoint := cfg.Setting("endpoint")
	if endpoint == "" {
		return fmt.Errorf("module %s requires setting %q", CarrierAPIModuleCode, "endpoint")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("module %s setting %q must be an absolute URL", CarrierAPIModuleCode, "endpoint")
	}
	if cfg.Credential("api_key") == "" {
		return fmt.Errorf("module %s requires credential %q", CarrierAPIModuleCode, "api_key")
	}
	return nil
}

type carrierRateRequest struct {
	Packages           []models.Package `json:"packages"`
	Origin             models.Address   `json:"origin"`
	Destination        models.Address   `json:"destination"`
	DeclaredValueCents int64            `json:"declared_value_cents"`
	Locale             string           `json:"locale,omitempty"`
}

type carrierRateResponse struct {
	Options []struct {
		Code          string `json:"code"`
		Name          string `json:"name"`
		PriceCents    int64  `json:"price_cents"`
		EstimatedDays int    `json:"estimated_days"`
	} `json:"options"`
}

func (m *CarrierAPIModule) GetShippingQuotes(ctx context.Context, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error) {
	if !ServesCountry(cfg, req.Delivery) {
		return nil, nil
	}

	body, err := json.Marshal(carrierRateRequest{
		Packages:           req.Packages,
		Origin:             req.Origin,
		Destination:        req.Delivery,
		DeclaredValueCents: req.OrderTotalCents,
		Locale:             req.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Setting("endpoint"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Credential("api_key"))

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("carrier rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bounded read so a misbehaving carrier cannot flood the logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("carrier rate request returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var rates carrierRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return nil, fmt.Errorf("failed to decode rate response: %w", err)
	}

	options := make([]models.ShippingOption, 0, len(rates.Options))
	for _, rate := range rates.Options {
		if rate.Code == "" || rate.PriceCents < 0 {
			return nil, fmt.Errorf("carrier returned invalid option %q with price %d", rate.Code, rate.PriceCents)
		}
		options = append(options, models.ShippingOption{
			OptionCode:    rate.Code,
			OptionName:    rate.Name,
			PriceCents:    rate.PriceCents,
			EstimatedDays: rate.EstimatedDays,
			ModuleCode:    CarrierAPIModuleCode,
		})
	}
	return options, nil
}
