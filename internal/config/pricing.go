package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/pricing"
)

// pricingFile mirrors pricing.yaml.
type pricingFile struct {
	WeekendSurcharge float64            `mapstructure:"weekend_surcharge"`
	HolidaySurcharge float64            `mapstructure:"holiday_surcharge"`
	TaxRate          float64            `mapstructure:"tax_rate"`
	MinMultiplier    float64            `mapstructure:"min_multiplier"`
	MaxMultiplier    float64            `mapstructure:"max_multiplier"`
	Insurance        map[string]float64 `mapstructure:"insurance"`
	Holidays         []struct {
		Name string `mapstructure:"name"`
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	} `mapstructure:"holidays"`
}

// LoadPricing reads the pricing policy from an optional pricing.yaml in
// "." or "./config", with PRICING_* environment overrides for scalar keys
// (PRICING_TAX_RATE, PRICING_WEEKEND_SURCHARGE ...).  Missing keys keep
// the defaults of pricing.DefaultConfig.
func LoadPricing() (pricing.Config, error) {
	def := pricing.DefaultConfig()

	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("weekend_surcharge", def.WeekendSurcharge)
	v.SetDefault("holiday_surcharge", def.HolidaySurcharge)
	v.SetDefault("tax_rate", def.TaxRate)
	v.SetDefault("min_multiplier", def.MinMultiplier)
	v.SetDefault("max_multiplier", def.MaxMultiplier)
	v.SetDefault("insurance.basic", def.InsuranceRates[model.InsuranceBasic])
	v.SetDefault("insurance.premium", def.InsuranceRates[model.InsurancePremium])
	v.SetDefault("insurance.full", def.InsuranceRates[model.InsuranceFull])

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return def, fmt.Errorf("read pricing config: %w", err)
		}
	}

	var raw pricingFile
	if err := v.Unmarshal(&raw); err != nil {
		return def, fmt.Errorf("decode pricing config: %w", err)
	}

	cfg := def
	cfg.WeekendSurcharge = raw.WeekendSurcharge
	cfg.HolidaySurcharge = raw.HolidaySurcharge
	cfg.TaxRate = raw.TaxRate
	cfg.MinMultiplier = raw.MinMultiplier
	cfg.MaxMultiplier = raw.MaxMultiplier
	cfg.InsuranceRates = map[model.InsuranceTier]float64{}
	for tier, rate := range raw.Insurance {
		cfg.InsuranceRates[model.InsuranceTier(strings.ToLower(tier))] = rate
	}
	for _, h := range raw.Holidays {
		from, err := time.Parse("2006-01-02", h.From)
		if err != nil {
			return def, fmt.Errorf("holiday %q: invalid from date %q", h.Name, h.From)
		}
		to, err := time.Parse("2006-01-02", h.To)
		if err != nil {
			return def, fmt.Errorf("holiday %q: invalid to date %q", h.Name, h.To)
		}
		if to.Before(from) {
			return def, fmt.Errorf("holiday %q: to before from", h.Name)
		}
		cfg.Holidays = append(cfg.Holidays, pricing.HolidayWindow{Name: h.Name, From: from, To: to})
	}
	if cfg.MinMultiplier > cfg.MaxMultiplier {
		return def, fmt.Errorf("pricing: min_multiplier %.2f above max_multiplier %.2f", cfg.MinMultiplier, cfg.MaxMultiplier)
	}
	return cfg, nil
}
