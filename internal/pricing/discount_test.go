package pricing_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-pricing/internal/pricing"
)

func TestCouponEvaluation(t *testing.T) {
	e := newEngine(t)
	items := []pricing.Item{item("A1", "40.00", 1), item("B1K", "5.00", 3)}

	cases := []struct {
		name     string
		codes    []string
		wantType []string
		wantAmt  []string
	}{
		{name: "percent", codes: []string{"PCT25"}, wantType: []string{"coupon:PCT25"}, wantAmt: []string{"13.75"}},
		{name: "lower case is normalised", codes: []string{"pct10"}, wantType: []string{"coupon:PCT10"}, wantAmt: []string{"5.50"}},
		{name: "flat", codes: []string{"FLAT7.5"}, wantType: []string{"coupon:FLAT7.5"}, wantAmt: []string{"7.50"}},
		{name: "flat above subtotal is clamped", codes: []string{"FLAT500"}, wantType: []string{"coupon:FLAT500"}, wantAmt: []string{"55.00"}},
		{name: "bogo", codes: []string{"BOGO1"}, wantType: []string{"coupon:BOGO1"}, wantAmt: []string{"5.00"}},
		{name: "malformed percent is skipped", codes: []string{"PCTTEN"}},
		{name: "empty percent is skipped", codes: []string{"PCT"}},
		{name: "malformed flat is skipped", codes: []string{"FLATfive"}},
		{name: "negative flat is skipped", codes: []string{"FLAT-5"}},
		{name: "unknown code is ignored", codes: []string{"WELCOME"}},
		{name: "bogo variant is unknown", codes: []string{"BOGO2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := e.Quote(items, pricing.QuoteRequest{Region: "CA", CouponCodes: tc.codes})
			require.Len(t, b.Discounts, len(tc.wantType))
			for i, d := range b.Discounts {
				require.Equal(t, tc.wantType[i], d.Type)
				requireMoney(t, tc.wantAmt[i], d.Amount)
			}
			require.NotContains(t, b.ReasonFlags, pricing.FlagStackingLimitReached)
		})
	}
}

func TestExtremeCouponAmounts(t *testing.T) {
	e := newEngine(t)
	items := []pricing.Item{item("A1", "40.00", 1), item("B1K", "5.00", 3)}

	cases := []struct {
		name      string
		code      string
		wantAmt   string
		wantTotal string
		capped    bool
	}{
		{name: "flat with huge exponent takes the subtotal", code: "FLAT1E50000000", wantAmt: "55.00", wantTotal: "33.00", capped: true},
		{name: "flat with long integer part", code: "FLAT" + strings.Repeat("9", 60), wantAmt: "55.00", wantTotal: "33.00", capped: true},
		{name: "flat with tiny exponent is skipped", code: "FLAT1E-50000000", wantTotal: "0.00"},
		{name: "zero flat with huge exponent is skipped", code: "FLAT0E50000000", wantTotal: "0.00"},
		{name: "flat below a cent rounds away", code: "FLAT0.004", wantTotal: "0.00"},
		{name: "flat of half a cent rounds up", code: "FLAT0.005", wantAmt: "0.01", wantTotal: "0.01"},
		{name: "overflowing percent hits the cap", code: "PCT99999999999999999999", wantAmt: "5072854620270126693.85", wantTotal: "33.00", capped: true},
		{name: "overflowing negative percent is skipped", code: "PCT-99999999999999999999", wantTotal: "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Now()
			b := e.Quote(items, pricing.QuoteRequest{Region: "CA", CouponCodes: []string{tc.code}})
			require.Less(t, time.Since(start), time.Second)

			if tc.wantAmt == "" {
				require.Empty(t, b.Discounts)
			} else {
				require.Len(t, b.Discounts, 1)
				requireMoney(t, tc.wantAmt, b.Discounts[0].Amount)
			}
			requireMoney(t, tc.wantTotal, b.TotalDiscount)
			if tc.capped {
				require.Contains(t, b.ReasonFlags, pricing.FlagDiscountCapApplied)
			} else {
				require.NotContains(t, b.ReasonFlags, pricing.FlagDiscountCapApplied)
			}
		})
	}
}

func TestZeroValueCouponsDoNotConsumeSlots(t *testing.T) {
	e := newEngine(t)
	b := e.Quote([]pricing.Item{item("A1", "100.00", 1)}, pricing.QuoteRequest{
		Region:      "CA",
		CouponCodes: []string{"PCTx", "NOPE", "BOGO1", "FLAT5", "PCT10"},
	})

	require.Len(t, b.Discounts, 2)
	require.Equal(t, "coupon:FLAT5", b.Discounts[0].Type)
	require.Equal(t, "coupon:PCT10", b.Discounts[1].Type)
	require.Empty(t, b.ReasonFlags)
}

func TestStackingFlagOnlyWhenCodesRemain(t *testing.T) {
	e := newEngine(t)
	b := e.Quote([]pricing.Item{item("A1", "100.00", 1)}, pricing.QuoteRequest{
		Region:      "CA",
		CouponCodes: []string{"PCT5", "PCT5"},
	})
	require.Len(t, b.Discounts, 2)
	require.NotContains(t, b.ReasonFlags, pricing.FlagStackingLimitReached)

	more := e.Quote([]pricing.Item{item("A1", "100.00", 1)}, pricing.QuoteRequest{
		Region:      "CA",
		CouponCodes: []string{"PCT5", "PCT5", "NOPE", "PCT5"},
	})
	require.Len(t, more.Discounts, 2)
	require.Equal(t, []string{pricing.FlagStackingLimitReached}, more.ReasonFlags)
}

func TestSilverMembershipThreshold(t *testing.T) {
	e := newEngine(t)

	below := e.Quote([]pricing.Item{item("A1", "49.99", 1)}, pricing.QuoteRequest{Region: "CA", Membership: pricing.MembershipSilver})
	require.Empty(t, below.Discounts)
	require.NotContains(t, below.ReasonFlags, pricing.FlagMembershipSilver)
	requireMoney(t, "6.99", below.Shipping)

	at := e.Quote([]pricing.Item{item("A1", "50.00", 1)}, pricing.QuoteRequest{Region: "CA", Membership: pricing.MembershipSilver})
	require.Len(t, at.Discounts, 1)
	require.Equal(t, "membership", at.Discounts[0].Type)
	requireMoney(t, "1.00", at.Discounts[0].Amount)
	require.Equal(t, []string{pricing.FlagMembershipSilver}, at.ReasonFlags)
	requireMoney(t, "6.99", at.Shipping)
}

func TestSilverBelowThresholdLeavesBothSlotsForCoupons(t *testing.T) {
	e := newEngine(t)
	b := e.Quote([]pricing.Item{item("A1", "40.00", 1)}, pricing.QuoteRequest{
		Region:      "CA",
		Membership:  pricing.MembershipSilver,
		CouponCodes: []string{"PCT10", "FLAT2"},
	})
	require.Len(t, b.Discounts, 2)
	require.Empty(t, b.ReasonFlags)
}

func TestGoldDiscountRoundsHalfAwayFromZero(t *testing.T) {
	e := newEngine(t)
	b := e.Quote([]pricing.Item{item("A1", "12.50", 1)}, pricing.QuoteRequest{Region: "CA", Membership: pricing.MembershipGold})

	require.Len(t, b.Discounts, 1)
	requireMoney(t, "0.63", b.Discounts[0].Amount)
	requireMoney(t, "11.87", b.DiscountedSubtotal)
}

func TestParseMembership(t *testing.T) {
	require.Equal(t, pricing.MembershipGold, pricing.ParseMembership(" GOLD "))
	require.Equal(t, pricing.MembershipSilver, pricing.ParseMembership("Silver"))
	require.Equal(t, pricing.MembershipNone, pricing.ParseMembership(""))
	require.Equal(t, pricing.MembershipNone, pricing.ParseMembership("platinum"))
}

func TestZeroStackingLimitFlagsFirstCoupon(t *testing.T) {
	rules := pricing.DefaultRules()
	rules.StackingLimit = 0
	e := pricing.MustNewEngine(rules)

	b := e.Quote([]pricing.Item{item("A1", "10.00", 1)}, pricing.QuoteRequest{Region: "CA", CouponCodes: []string{"PCT10"}})
	require.Empty(t, b.Discounts)
	require.Equal(t, []string{pricing.FlagStackingLimitReached}, b.ReasonFlags)
}
