package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads and writes the quote_audits table.
type Store struct {
	db DBTX
}

// NewStore wraps db.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const insertQuoteAudit = `
INSERT INTO quote_audits (
    quote_id, request_hash, rules_version, region, membership, coupon_codes,
    subtotal, total_discount, shipping, tax, total, reason_flags, cached, quoted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (quote_id) DO NOTHING`

// Insert stores rec. Re-delivered records are ignored.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	codes := rec.CouponCodes
	if codes == nil {
		codes = []string{}
	}
	flags := rec.ReasonFlags
	if flags == nil {
		flags = []string{}
	}
	_, err := s.db.Exec(ctx, insertQuoteAudit,
		rec.QuoteID, rec.RequestHash, rec.RulesVersion, rec.Region, rec.Membership, codes,
		rec.Subtotal, rec.TotalDiscount, rec.Shipping, rec.Tax, rec.Total, flags, rec.Cached, rec.QuotedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote audit %s: %w", rec.QuoteID, err)
	}
	return nil
}

const listRecentQuoteAudits = `
SELECT quote_id, request_hash, rules_version, region, membership, coupon_codes,
       subtotal, total_discount, shipping, tax, total, reason_flags, cached, quoted_at, recorded_at
FROM quote_audits
ORDER BY quoted_at DESC
LIMIT $1`

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, listRecentQuoteAudits, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list quote audits: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec        Record
			recordedAt time.Time
		)
		err := row.Scan(
			&rec.QuoteID, &rec.RequestHash, &rec.RulesVersion, &rec.Region, &rec.Membership, &rec.CouponCodes,
			&rec.Subtotal, &rec.TotalDiscount, &rec.Shipping, &rec.Tax, &rec.Total, &rec.ReasonFlags,
			&rec.Cached, &rec.QuotedAt, &recordedAt,
		)
		rec.RecordedAt = &recordedAt
		return rec, err
	})
}

// ClampLimit bounds a caller supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
