package pricing

// shippingFee resolves the fee for the region. Gold members and orders at or
// above the free-shipping threshold ship free; unknown regions use the
// fallback region's fee.
func (e *Engine) shippingFee(region string, m Membership, discountedSubtotal Money) Money {
	if m == MembershipGold || discountedSubtotal.GreaterThanOrEqual(e.rules.FreeShippingThreshold) {
		return zero
	}
	fee, ok := e.rules.ShippingByRegion[region]
	if !ok {
		fee = e.rules.ShippingByRegion[e.rules.FallbackRegion]
	}
	return RoundMoney(fee)
}
