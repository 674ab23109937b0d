package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the persisted trace of one served quote and the business rules
// that fired while pricing it.
type Record struct {
	QuoteID       string          `json:"quote_id"`
	RequestHash   string          `json:"request_hash"`
	RulesVersion  string          `json:"rules_version"`
	Region        string          `json:"region"`
	Membership    string          `json:"membership"`
	CouponCodes   []string        `json:"coupon_codes"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	Shipping      decimal.Decimal `json:"shipping"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	ReasonFlags   []string        `json:"reason_flags"`
	Cached        bool            `json:"cached"`
	QuotedAt      time.Time       `json:"quoted_at"`
	RecordedAt    *time.Time      `json:"recorded_at,omitempty"`
}
