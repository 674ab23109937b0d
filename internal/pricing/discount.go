package pricing

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	couponPercentPrefix = "PCT"
	couponFlatPrefix    = "FLAT"
	couponBOGO          = "BOGO1"

	discountTypeMembership = "membership"
	discountTypeCoupon     = "coupon:"
)

type discountResult struct {
	entries []Discount
	total   Money
	flags   []string
}

// resolveDiscounts applies the membership discount first, then coupons in the
// given order until the stacking slots run out, and finally clamps the sum to
// the discount cap.
func (e *Engine) resolveDiscounts(subtotal Money, items []Item, req QuoteRequest) discountResult {
	res := discountResult{total: zero}
	remaining := e.rules.StackingLimit

	if memb := e.membershipDiscount(subtotal, req.Membership); memb.IsPositive() {
		res.total = res.total.Add(memb)
		res.entries = append(res.entries, Discount{Type: discountTypeMembership, Amount: memb})
		res.flags = append(res.flags, membershipFlag(req.Membership))
		remaining--
	}

	for _, raw := range req.CouponCodes {
		if remaining <= 0 {
			res.flags = append(res.flags, FlagStackingLimitReached)
			break
		}
		code := strings.ToUpper(raw)
		disc := e.couponDiscount(subtotal, items, code)
		if !disc.IsPositive() {
			continue
		}
		res.entries = append(res.entries, Discount{Type: discountTypeCoupon + code, Amount: disc})
		res.total = res.total.Add(disc)
		remaining--
	}

	maxAllowed := RoundMoney(subtotal.Mul(e.rules.MaxDiscountPct))
	if res.total.GreaterThan(maxAllowed) {
		res.flags = append(res.flags, FlagDiscountCapApplied)
		res.total = maxAllowed
	}
	return res
}

func (e *Engine) membershipDiscount(subtotal Money, m Membership) Money {
	switch m {
	case MembershipGold:
		return RoundMoney(subtotal.Mul(e.rules.GoldDiscountPct))
	case MembershipSilver:
		if subtotal.GreaterThanOrEqual(e.rules.SilverMinSubtotal) {
			return RoundMoney(subtotal.Mul(e.rules.SilverDiscountPct))
		}
	}
	return zero
}

// couponDiscount evaluates a single upper-cased code. Malformed or unknown
// codes yield zero rather than an error.
func (e *Engine) couponDiscount(subtotal Money, items []Item, code string) Money {
	switch {
	case strings.HasPrefix(code, couponPercentPrefix):
		// ParseInt saturates on overflow, so an oversized percentage still
		// lands on the discount cap.
		pct, err := strconv.ParseInt(strings.TrimPrefix(code, couponPercentPrefix), 10, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return zero
		}
		return RoundMoney(subtotal.Mul(decimal.NewFromInt(pct)).Div(hundred))
	case strings.HasPrefix(code, couponFlatPrefix):
		amt, err := decimal.NewFromString(strings.TrimPrefix(code, couponFlatPrefix))
		if err != nil || amt.Sign() <= 0 {
			return zero
		}
		// Compare orders of magnitude first: rescaling an amount such as
		// 1E50000000 is far too expensive to do per request.
		switch m := magnitude(amt); {
		case m > magnitude(subtotal):
			return RoundMoney(subtotal)
		case m < -2:
			return zero
		}
		return RoundMoney(decimal.Min(amt, subtotal))
	case code == couponBOGO:
		return e.bogoDiscount(items)
	}
	return zero
}

// bogoDiscount makes every second unit free for SKUs carrying the BOGO prefix.
func (e *Engine) bogoDiscount(items []Item) Money {
	discount := zero
	for _, it := range items {
		if !strings.HasPrefix(it.SKU, e.rules.BOGOSKUPrefix) {
			continue
		}
		free := int64(it.Quantity / 2)
		discount = discount.Add(it.UnitPrice.Mul(decimal.NewFromInt(free)))
	}
	return RoundMoney(discount)
}
