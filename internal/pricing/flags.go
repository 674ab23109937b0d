package pricing

// Reason flags record which business rule fired while pricing a quote.
const (
	FlagMembershipGold       = "membership_gold"
	FlagMembershipSilver     = "membership_silver"
	FlagStackingLimitReached = "stacking_limit_reached"
	FlagDiscountCapApplied   = "discount_cap_applied"
	FlagFreeShipping         = "free_shipping"
	FlagMinPayableEnforced   = "min_payable_enforced"
)

func membershipFlag(m Membership) string {
	switch m {
	case MembershipGold:
		return FlagMembershipGold
	case MembershipSilver:
		return FlagMembershipSilver
	default:
		return ""
	}
}
