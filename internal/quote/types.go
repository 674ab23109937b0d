package quote

import (
	"time"

	"github.com/noah-isme/promo-pricing/internal/pricing"
)

// Request is the wire shape of a quote request. Items use the loose keys
// accepted by pricing.ItemsFromMaps.
type Request struct {
	Items       []map[string]any `json:"items" validate:"max=500"`
	Region      string           `json:"region" validate:"max=32"`
	Membership  string           `json:"membership,omitempty" validate:"max=32"`
	CouponCodes []string         `json:"coupon_codes,omitempty" validate:"max=20,dive,max=64"`
}

// DiscountLine is one applied discount rendered for clients.
type DiscountLine struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// Result is a priced quote. Money fields are fixed two-decimal strings.
type Result struct {
	QuoteID            string         `json:"quote_id"`
	Currency           string         `json:"currency"`
	Subtotal           string         `json:"subtotal"`
	Discounts          []DiscountLine `json:"discounts"`
	TotalDiscount      string         `json:"total_discount"`
	DiscountedSubtotal string         `json:"discounted_subtotal"`
	Shipping           string         `json:"shipping"`
	Tax                string         `json:"tax"`
	Total              string         `json:"total"`
	ReasonFlags        []string       `json:"reason_flags"`
	RulesVersion       string         `json:"rules_version"`
	Cached             bool           `json:"cached"`
	QuotedAt           time.Time      `json:"quoted_at"`
}

// NewResult renders a breakdown for clients.
func NewResult(b pricing.Breakdown, currency, rulesVersion string) Result {
	lines := make([]DiscountLine, 0, len(b.Discounts))
	for _, d := range b.Discounts {
		lines = append(lines, DiscountLine{Type: d.Type, Amount: pricing.FormatMoney(d.Amount)})
	}
	flags := append([]string{}, b.ReasonFlags...)
	return Result{
		Currency:           currency,
		Subtotal:           pricing.FormatMoney(b.Subtotal),
		Discounts:          lines,
		TotalDiscount:      pricing.FormatMoney(b.TotalDiscount),
		DiscountedSubtotal: pricing.FormatMoney(b.DiscountedSubtotal),
		Shipping:           pricing.FormatMoney(b.Shipping),
		Tax:                pricing.FormatMoney(b.Tax),
		Total:              pricing.FormatMoney(b.Total),
		ReasonFlags:        flags,
		RulesVersion:       rulesVersion,
	}
}

// BatchEntry is the outcome of one request inside a batch.
type BatchEntry struct {
	Index  int        `json:"index"`
	Result *Result    `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo mirrors common.ErrorBody for per-entry batch failures.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RulesView renders the engine configuration for clients.
type RulesView struct {
	Version               string            `json:"version"`
	Currency              string            `json:"currency"`
	TaxByRegion           map[string]string `json:"tax_by_region"`
	ShippingByRegion      map[string]string `json:"shipping_by_region"`
	FallbackRegion        string            `json:"fallback_region"`
	FoodTaxRate           string            `json:"food_tax_rate"`
	FreeShippingThreshold string            `json:"free_shipping_threshold"`
	MaxDiscountPct        string            `json:"max_discount_pct"`
	StackingLimit         int               `json:"stacking_limit"`
	MinPayable            string            `json:"min_payable"`
	GoldDiscountPct       string            `json:"gold_discount_pct"`
	SilverDiscountPct     string            `json:"silver_discount_pct"`
	SilverMinSubtotal     string            `json:"silver_min_subtotal"`
	BOGOSKUPrefix         string            `json:"bogo_sku_prefix"`
}

// NewRulesView renders rules for clients.
func NewRulesView(r pricing.Rules, currency string) RulesView {
	render := func(table map[string]pricing.Money) map[string]string {
		out := make(map[string]string, len(table))
		for k, v := range table {
			out[k] = v.String()
		}
		return out
	}
	return RulesView{
		Version:               r.Fingerprint(),
		Currency:              currency,
		TaxByRegion:           render(r.TaxByRegion),
		ShippingByRegion:      render(r.ShippingByRegion),
		FallbackRegion:        r.FallbackRegion,
		FoodTaxRate:           r.FoodTaxRate.String(),
		FreeShippingThreshold: pricing.FormatMoney(r.FreeShippingThreshold),
		MaxDiscountPct:        r.MaxDiscountPct.String(),
		StackingLimit:         r.StackingLimit,
		MinPayable:            pricing.FormatMoney(r.MinPayable),
		GoldDiscountPct:       r.GoldDiscountPct.String(),
		SilverDiscountPct:     r.SilverDiscountPct.String(),
		SilverMinSubtotal:     pricing.FormatMoney(r.SilverMinSubtotal),
		BOGOSKUPrefix:         r.BOGOSKUPrefix,
	}
}
