package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Category classifies an item for tax purposes.
type Category string

const (
	// CategoryGeneral items are taxed at the regional rate.
	CategoryGeneral Category = "general"
	// CategoryFood items are taxed at the food rate.
	CategoryFood Category = "food"
)

// Membership is the loyalty tier of the buyer.
type Membership string

const (
	MembershipNone   Membership = "none"
	MembershipGold   Membership = "gold"
	MembershipSilver Membership = "silver"
)

// ParseMembership maps a loosely formatted tier name to a Membership. Unknown
// or empty values resolve to MembershipNone.
func ParseMembership(v string) Membership {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "gold":
		return MembershipGold
	case "silver":
		return MembershipSilver
	default:
		return MembershipNone
	}
}

// Item describes a line item used for pricing calculation.
type Item struct {
	SKU       string
	UnitPrice Money
	Quantity  int
	Category  Category
	TaxExempt bool
}

func (it Item) lineTotal() Money {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// QuoteRequest carries the order context. The order of CouponCodes decides
// which coupons claim the remaining stacking slots.
type QuoteRequest struct {
	Region      string
	Membership  Membership
	CouponCodes []string
}

// Discount is one applied discount entry.
type Discount struct {
	Type   string
	Amount Money
}

// Breakdown is the itemised result of a quote.
type Breakdown struct {
	Subtotal           Money
	Discounts          []Discount
	TotalDiscount      Money
	DiscountedSubtotal Money
	Shipping           Money
	Tax                Money
	Total              Money
	ReasonFlags        []string
}
