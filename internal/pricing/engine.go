package pricing

import "github.com/shopspring/decimal"

// Engine prices orders against an immutable Rules value. It holds no other
// state, so a single Engine may be shared across goroutines.
type Engine struct {
	rules       Rules
	fingerprint string
}

// NewEngine validates rules and returns an engine bound to a private copy.
func NewEngine(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	owned := rules.Clone()
	return &Engine{rules: owned, fingerprint: owned.Fingerprint()}, nil
}

// MustNewEngine behaves like NewEngine but panics on invalid rules.
func MustNewEngine(rules Rules) *Engine {
	e, err := NewEngine(rules)
	if err != nil {
		panic(err)
	}
	return e
}

// Rules returns a copy of the engine configuration.
func (e *Engine) Rules() Rules {
	return e.rules.Clone()
}

// Fingerprint identifies the rule set the engine was built with.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Subtotal sums price times quantity over all items, rounded after summation.
func Subtotal(items []Item) Money {
	sum := zero
	for _, it := range items {
		sum = sum.Add(it.lineTotal())
	}
	return RoundMoney(sum)
}

// Quote computes the price breakdown for items under req. Stages run in a fixed
// order (subtotal, discounts, shipping, tax, total) and each appends its reason
// flags in that order. Quote never fails; malformed coupons and unknown
// regions degrade to their defaults.
func (e *Engine) Quote(items []Item, req QuoteRequest) Breakdown {
	subtotal := Subtotal(items)
	disc := e.resolveDiscounts(subtotal, items, req)
	flags := append([]string(nil), disc.flags...)

	discounted := decimal.Max(zero, RoundMoney(subtotal.Sub(disc.total)))

	shipping := e.shippingFee(req.Region, req.Membership, discounted)
	if shipping.IsZero() {
		flags = append(flags, FlagFreeShipping)
	}

	tax := e.tax(items, req.Region)

	total := RoundMoney(discounted.Add(shipping).Add(tax))
	if total.LessThan(e.rules.MinPayable) && subtotal.IsPositive() {
		flags = append(flags, FlagMinPayableEnforced)
		total = e.rules.MinPayable
	}

	discounts := disc.entries
	if discounts == nil {
		discounts = []Discount{}
	}
	if flags == nil {
		flags = []string{}
	}
	return Breakdown{
		Subtotal:           subtotal,
		Discounts:          discounts,
		TotalDiscount:      disc.total,
		DiscountedSubtotal: discounted,
		Shipping:           shipping,
		Tax:                tax,
		Total:              total,
		ReasonFlags:        flags,
	}
}
