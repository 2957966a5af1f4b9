package merchant

// Package merchant provides merchant.yaml parsing functionality.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/shipping"
	"github.com/shopcoreapp/shopcore/internal/tax"
)

// Config is the merchant configuration store: everything the pipeline
// needs that belongs to the merchant rather than the deployment.
type Config struct {
	Merchant        Settings                            `yaml:"merchant"`
	Tax             tax.Rules                           `yaml:"tax"`
	ShippingModules []shipping.IntegrationConfiguration `yaml:"shipping_modules"`
}

type Settings struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`

	// TaxAfterDiscount defaults to true: tax is computed on the
	// discounted amount unless the merchant opts out.
	TaxAfterDiscount *bool `yaml:"tax_after_discount,omitempty"`

	AllowZeroTaxFallback bool `yaml:"allow_zero_tax_fallback"`

	// ShipToBilling ships to the billing address instead of the
	// delivery address.
	ShipToBilling bool `yaml:"ship_to_billing"`

	AllowedCountries []string       `yaml:"allowed_countries,omitempty"`
	Origin           models.Address `yaml:"origin"`
}

// TaxesAfterDiscount resolves the tax ordering flag with its default.
func (s Settings) TaxesAfterDiscount() bool {
	return s.TaxAfterDiscount == nil || *s.TaxAfterDiscount
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func (p *Parser) ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant config: %w", err)
	}
	return p.Parse(content)
}
