package merchant

// Package merchant provides configuration validation.

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var currencyRegex = regexp.MustCompile(`^[a-zA-Z]{3}$`)

func (v *Validator) Validate(config *Config) error {
	if err := v.validateSettings(&config.Merchant); err != nil {
		return fmt.Errorf("merchant validation failed: %w", err)
	}

	if err := v.validateTax(config); err != nil {
		return fmt.Errorf("tax validation failed: %w", err)
	}

	if len(config.ShippingModules) == 0 {
		return fmt.Errorf("at least one shipping module is required")
	}

	codes := make(map[string]bool)
	for i, module := range config.ShippingModules {
		if strings.TrimSpace(module.ModuleCode) == "" {
			return fmt.Errorf("shipping module %d is missing a module code", i)
		}
		if codes[module.ModuleCode] {
			return fmt.Errorf("duplicate shipping module: %s", module.ModuleCode)
		}
		codes[module.ModuleCode] = true
	}

	return nil
}

func (v *Validator) validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.Name) == "" {
		return fmt.Errorf("merchant name is required")
	}

	if !currencyRegex.MatchString(settings.Currency) {
		return fmt.Errorf("currency must be a three-letter code")
	}

	if strings.TrimSpace(settings.Origin.CountryCode) == "" {
		return fmt.Errorf("shipping origin country is required")
	}

	for _, country := range settings.AllowedCountries {
		if len(strings.TrimSpace(country)) != 2 {
			return fmt.Errorf("allowed country %q must be a two-letter code", country)
		}
	}

	return nil
}

func (v *Validator) validateTax(config *Config) error {
	for i, rate := range config.Tax.Rates {
		if strings.TrimSpace(rate.CountryCode) == "" {
			return fmt.Errorf("rate %d is missing a country", i)
		}
		if rate.BasisPoints < 0 || rate.BasisPoints > 10_000 {
			return fmt.Errorf("rate %d basis points must be between 0 and 10000", i)
		}
	}
	return nil
}
