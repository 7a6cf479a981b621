package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy is the accounting policy file. Zero fields leave the environment
// value in place.
//
//	period:
//	  freq: D
//	  interval: 1
//	tax_rates:
//	  long: "0.20"
//	  short: "0.37"
//	underfill: reject
//	valuation: delta
type Policy struct {
	Period struct {
		Freq     string `yaml:"freq"`
		Interval int    `yaml:"interval"`
	} `yaml:"period"`
	TaxRates struct {
		Long  string `yaml:"long"`
		Short string `yaml:"short"`
	} `yaml:"tax_rates"`
	Underfill string `yaml:"underfill"`
	Valuation string `yaml:"valuation"`
}

// LoadPolicy loads an accounting policy from a YAML file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates a YAML accounting policy
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &policy, nil
}

// Validate checks the fields that are set
func (p *Policy) Validate() error {
	if p.Period.Interval < 0 {
		return fmt.Errorf("period.interval must not be negative: got %d", p.Period.Interval)
	}
	switch strings.ToUpper(p.Period.Freq) {
	case "", "H", "D", "W", "M":
	default:
		return fmt.Errorf("period.freq must be one of H, D, W, M: got %q", p.Period.Freq)
	}
	if p.TaxRates.Long != "" {
		if err := checkRate("tax_rates.long", p.TaxRates.Long); err != nil {
			return err
		}
	}
	if p.TaxRates.Short != "" {
		if err := checkRate("tax_rates.short", p.TaxRates.Short); err != nil {
			return err
		}
	}
	switch p.Underfill {
	case "", "reject", "close_available":
	default:
		return fmt.Errorf("underfill must be reject or close_available: got %q", p.Underfill)
	}
	switch p.Valuation {
	case "", "delta", "absolute":
	default:
		return fmt.Errorf("valuation must be delta or absolute: got %q", p.Valuation)
	}
	return nil
}

// checkRate accepts a decimal fraction in [0, 1]
func checkRate(name, v string) error {
	rate, err := decimal.NewFromString(v)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a rate between 0 and 1: got %q", name, v)
	}
	return nil
}

// Apply overlays the policy on cfg
func (p *Policy) Apply(cfg *Config) {
	if p.Period.Freq != "" {
		cfg.PeriodFreq = strings.ToUpper(p.Period.Freq)
	}
	if p.Period.Interval > 0 {
		cfg.PeriodInterval = p.Period.Interval
	}
	if p.TaxRates.Long != "" {
		cfg.TaxRateLong = p.TaxRates.Long
	}
	if p.TaxRates.Short != "" {
		cfg.TaxRateShort = p.TaxRates.Short
	}
	if p.Underfill != "" {
		cfg.UnderfillPolicy = p.Underfill
	}
	if p.Valuation != "" {
		cfg.Valuation = p.Valuation
	}
}
