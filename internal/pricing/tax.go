package pricing

func (e *Engine) taxRate(it Item, region string) Money {
	if it.TaxExempt {
		return zero
	}
	if it.Category == CategoryFood {
		return e.rules.FoodTaxRate
	}
	rate, ok := e.rules.TaxByRegion[region]
	if !ok {
		return zero
	}
	return rate
}

// tax sums unrounded per-item tax and rounds once at the end, unlike the other
// stages which round as they go.
func (e *Engine) tax(items []Item, region string) Money {
	total := zero
	for _, it := range items {
		total = total.Add(it.lineTotal().Mul(e.taxRate(it, region)))
	}
	return RoundMoney(total)
}
