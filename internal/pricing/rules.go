package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidRules is returned when a Rules value cannot drive the engine.
var ErrInvalidRules = errors.New("pricing: invalid rules")

// Rules holds the regional tables and business constants used by the engine.
// An Engine copies the value on construction and never mutates it.
type Rules struct {
	TaxByRegion           map[string]Money
	ShippingByRegion      map[string]Money
	FallbackRegion        string
	FoodTaxRate           Money
	FreeShippingThreshold Money
	MaxDiscountPct        Money
	StackingLimit         int
	MinPayable            Money
	GoldDiscountPct       Money
	SilverDiscountPct     Money
	SilverMinSubtotal     Money
	BOGOSKUPrefix         string
}

// DefaultRules returns the reference configuration.
func DefaultRules() Rules {
	return Rules{
		TaxByRegion: map[string]Money{
			"CA":   MustMoney("0.0825"),
			"NY":   MustMoney("0.088"),
			"TX":   MustMoney("0.0625"),
			"INTL": MustMoney("0"),
		},
		ShippingByRegion: map[string]Money{
			"CA":   MustMoney("6.99"),
			"NY":   MustMoney("7.99"),
			"TX":   MustMoney("5.99"),
			"INTL": MustMoney("12.99"),
		},
		FallbackRegion:        "INTL",
		FoodTaxRate:           MustMoney("0"),
		FreeShippingThreshold: MustMoney("75.00"),
		MaxDiscountPct:        MustMoney("0.60"),
		StackingLimit:         2,
		MinPayable:            MustMoney("1.00"),
		GoldDiscountPct:       MustMoney("0.05"),
		SilverDiscountPct:     MustMoney("0.02"),
		SilverMinSubtotal:     MustMoney("50.00"),
		BOGOSKUPrefix:         "B1",
	}
}

// Validate reports whether the rules are internally consistent.
func (r Rules) Validate() error {
	if len(r.ShippingByRegion) == 0 {
		return fmt.Errorf("%w: shipping table is empty", ErrInvalidRules)
	}
	if _, ok := r.ShippingByRegion[r.FallbackRegion]; !ok {
		return fmt.Errorf("%w: fallback region %q has no shipping fee", ErrInvalidRules, r.FallbackRegion)
	}
	for region, rate := range r.TaxByRegion {
		if rate.IsNegative() {
			return fmt.Errorf("%w: negative tax rate for %s", ErrInvalidRules, region)
		}
	}
	for region, fee := range r.ShippingByRegion {
		if fee.IsNegative() {
			return fmt.Errorf("%w: negative shipping fee for %s", ErrInvalidRules, region)
		}
	}
	if r.StackingLimit < 0 {
		return fmt.Errorf("%w: stacking limit must not be negative", ErrInvalidRules)
	}
	pcts := map[string]Money{
		"max discount pct":    r.MaxDiscountPct,
		"gold discount pct":   r.GoldDiscountPct,
		"silver discount pct": r.SilverDiscountPct,
	}
	for name, pct := range pcts {
		if pct.IsNegative() || pct.GreaterThan(MustMoney("1")) {
			return fmt.Errorf("%w: %s must be within [0, 1]", ErrInvalidRules, name)
		}
	}
	for name, v := range map[string]Money{
		"food tax rate":           r.FoodTaxRate,
		"free shipping threshold": r.FreeShippingThreshold,
		"min payable":             r.MinPayable,
		"silver min subtotal":     r.SilverMinSubtotal,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRules, name)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias the engine's tables.
func (r Rules) Clone() Rules {
	out := r
	out.TaxByRegion = maps.Clone(r.TaxByRegion)
	out.ShippingByRegion = maps.Clone(r.ShippingByRegion)
	return out
}

// Fingerprint returns a stable digest of the rules, suitable as a cache key
// component.
func (r Rules) Fingerprint() string {
	var b strings.Builder
	writeTable(&b, "tax", r.TaxByRegion)
	writeTable(&b, "ship", r.ShippingByRegion)
	fmt.Fprintf(&b, "fallback=%s;food=%s;free=%s;cap=%s;stack=%s;min=%s;gold=%s;silver=%s@%s;bogo=%s",
		r.FallbackRegion,
		r.FoodTaxRate.String(),
		r.FreeShippingThreshold.String(),
		r.MaxDiscountPct.String(),
		strconv.Itoa(r.StackingLimit),
		r.MinPayable.String(),
		r.GoldDiscountPct.String(),
		r.SilverDiscountPct.String(),
		r.SilverMinSubtotal.String(),
		r.BOGOSKUPrefix,
	)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeTable(b *strings.Builder, name string, table map[string]Money) {
	b.WriteString(name)
	b.WriteByte('{')
	for _, region := range slices.Sorted(maps.Keys(table)) {
		fmt.Fprintf(b, "%s=%s,", region, table[region].String())
	}
	b.WriteString("};")
}
