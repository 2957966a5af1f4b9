// Package shipping defines the pluggable carrier module contract and
// the orchestrator that merges quotes across configured modules.
package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// ErrNoShippingOptions is returned only when every configured module
// failed. An empty option list from successfully invoked modules is not
// an error; it means no service is available for the destination.
var ErrNoShippingOptions = errors.New("no shipping module produced options")

// IntegrationConfiguration is the merchant-specific configuration of
// one shipping module: credentials plus free-form settings the module
// interprets itself.
type IntegrationConfiguration struct {
	ModuleCode  string            `yaml:"module" json:"module"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Credentials map[string]string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Settings    map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Setting returns a module setting, tolerating a nil map.
func (c IntegrationConfiguration) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return c.Settings[key]
}

// Credential returns a module credential, tolerating a nil map.
func (c IntegrationConfiguration) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// QuoteRequest carries everything a module may price by: package list,
// addresses, declared order total, and locale.
type QuoteRequest struct {
	MerchantID      uuid.UUID
	Packages        []models.Package
	Delivery        models.Address
	Origin          models.Address
	OrderTotalCents int64
	Locale          string
}

// Module is one carrier integration. GetShippingQuotes must be a pure
// function of its inputs and must honor the request context, which the
// orchestrator bounds with a per-module timeout.
type Module interface {
	// Code is the stable registry key, preserved on every option the
	// module produces.
	Code() string

	// ValidateConfiguration fails loudly when required credentials or
	// settings are missing. A module is never invoked with a
	// configuration it rejected.
	ValidateConfiguration(cfg IntegrationConfiguration) error

	GetShippingQuotes(ctx context.Context, req QuoteRequest, cfg IntegrationConfiguration) ([]models.ShippingOption, error)
}

// TotalWeightGrams sums package weights; modules that price by weight
// share it.
func TotalWeightGrams(packages []models.Package) int {
	total := 0
	for _, p := range packages {
		total += p.WeightGrams
	}
	return total
}

// ServesCountry checks an optional comma-separated country allow-list
// setting. An empty list serves every destination.
func ServesCountry(cfg IntegrationConfiguration, delivery models.Address) bool {
	allowed := splitCSV(cfg.Setting("countries"))
	if len(allowed) == 0 {
		return true
	}
	for _, code := range allowed {
		if equalCountry(code, delivery.CountryCode) {
			return true
		}
	}
	return false
}
