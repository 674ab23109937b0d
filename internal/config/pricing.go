package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-pricing/internal/pricing"
)

// loadRules overlays PRICING_* variables on the default rules. Unlike the
// server settings above, malformed pricing values are rejected rather than
// silently replaced.
func loadRules(k *koanf.Koanf) (pricing.Rules, error) {
	rules := pricing.DefaultRules()

	if raw := k.String("PRICING_TAX_BY_REGION"); strings.TrimSpace(raw) != "" {
		table, err := parseRegionTable(raw)
		if err != nil {
			return rules, fmt.Errorf("PRICING_TAX_BY_REGION: %w", err)
		}
		rules.TaxByRegion = table
	}
	if raw := k.String("PRICING_SHIPPING_BY_REGION"); strings.TrimSpace(raw) != "" {
		table, err := parseRegionTable(raw)
		if err != nil {
			return rules, fmt.Errorf("PRICING_SHIPPING_BY_REGION: %w", err)
		}
		rules.ShippingByRegion = table
	}
	if v := strings.TrimSpace(k.String("PRICING_FALLBACK_REGION")); v != "" {
		rules.FallbackRegion = v
	}
	if v := k.String("PRICING_BOGO_PREFIX"); strings.TrimSpace(v) != "" {
		rules.BOGOSKUPrefix = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(k.String("PRICING_STACKING_LIMIT")); v != "" {
		n, err := decimal.NewFromString(v)
		if err != nil || !n.IsInteger() {
			return rules, fmt.Errorf("PRICING_STACKING_LIMIT: %q is not an integer", v)
		}
		rules.StackingLimit = int(n.IntPart())
	}

	amounts := []struct {
		key string
		dst *pricing.Money
	}{
		{"PRICING_FOOD_TAX_RATE", &rules.FoodTaxRate},
		{"PRICING_FREE_SHIPPING_THRESHOLD", &rules.FreeShippingThreshold},
		{"PRICING_MAX_DISCOUNT_PCT", &rules.MaxDiscountPct},
		{"PRICING_MIN_PAYABLE", &rules.MinPayable},
		{"PRICING_GOLD_PCT", &rules.GoldDiscountPct},
		{"PRICING_SILVER_PCT", &rules.SilverDiscountPct},
		{"PRICING_SILVER_MIN_SUBTOTAL", &rules.SilverMinSubtotal},
	}
	for _, a := range amounts {
		v := strings.TrimSpace(k.String(a.key))
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return rules, fmt.Errorf("%s: %q is not a decimal", a.key, v)
		}
		*a.dst = d
	}

	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

// parseRegionTable reads "CA=0.0825,NY=0.088" style tables.
func parseRegionTable(raw string) (map[string]pricing.Money, error) {
	table := map[string]pricing.Money{}
	for _, part := range splitAndTrim(raw) {
		region, value, ok := strings.Cut(part, "=")
		region = strings.TrimSpace(region)
		if !ok || region == "" {
			return nil, fmt.Errorf("entry %q must be REGION=VALUE", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		table[region] = d
	}
	return table, nil
}
