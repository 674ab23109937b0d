package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-pricing/internal/obs"
)

// Inserter persists audit records.
type Inserter interface {
	Insert(ctx context.Context, rec Record) error
}

// Processor is the asynq handler for TypeQuoteAudit tasks.
type Processor struct {
	Store   Inserter
	Logger  zerolog.Logger
	Metrics *obs.QuoteMetrics
}

// ProcessTask decodes and stores one record. Undecodable payloads are not
// retried.
func (p Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var rec Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		p.Metrics.ObserveAuditRecord("malformed")
		return fmt.Errorf("decode quote audit: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(rec.QuoteID) == "" {
		p.Metrics.ObserveAuditRecord("malformed")
		return fmt.Errorf("quote audit without quote id: %w", asynq.SkipRetry)
	}
	if p.Store == nil {
		p.Metrics.ObserveAuditRecord("error")
		return fmt.Errorf("%w: %w", errNoStore, asynq.SkipRetry)
	}
	if err := p.Store.Insert(ctx, rec); err != nil {
		p.Metrics.ObserveAuditRecord("error")
		p.Logger.Error().Err(err).Str("quote_id", rec.QuoteID).Msg("persist quote audit")
		return fmt.Errorf("insert quote audit: %w", err)
	}
	p.Metrics.ObserveAuditRecord("ok")
	p.Logger.Debug().
		Str("quote_id", rec.QuoteID).
		Strs("reason_flags", rec.ReasonFlags).
		Msg("quote audit stored")
	return nil
}

var errNoStore = errors.New("quote audit store not configured")

// NewServeMux routes audit task types to p.
func NewServeMux(p Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeQuoteAudit, p)
	return mux
}
