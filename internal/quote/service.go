package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/promo-pricing/internal/audit"
	"github.com/noah-isme/promo-pricing/internal/common"
	"github.com/noah-isme/promo-pricing/internal/obs"
	"github.com/noah-isme/promo-pricing/internal/pricing"
)

const (
	defaultBatchMax         = 50
	defaultBatchConcurrency = 4
)

var tracer = otel.Tracer("github.com/noah-isme/promo-pricing/internal/quote")

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Recorder receives an audit record for every served quote.
type Recorder interface {
	Record(ctx context.Context, rec audit.Record) error
}

// Service prices quote requests on top of the engine, with optional caching,
// metrics and audit hand-off.
type Service struct {
	Engine           *pricing.Engine
	Cache            *Cache
	Audit            Recorder
	Metrics          *obs.QuoteMetrics
	Logger           zerolog.Logger
	Currency         string
	BatchMax         int
	BatchConcurrency int
	Now              func() time.Time
	NewID            func() string
}

// Quote prices a single request.
func (s *Service) Quote(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "pricing.quote")
	defer span.End()
	span.SetAttributes(
		attribute.String("pricing.region", req.Region),
		attribute.Int("pricing.items", len(req.Items)),
		attribute.Int("pricing.coupons", len(req.CouponCodes)),
	)

	if s.Engine == nil {
		return Result{}, common.NewAppError(common.CodeUnavailable, "pricing engine not configured", http.StatusServiceUnavailable, nil)
	}
	if err := requestValidator.Struct(req); err != nil {
		s.Metrics.ObserveQuote("invalid", nil)
		span.SetStatus(codes.Error, "invalid request")
		return Result{}, requestError(err)
	}

	hash, err := requestHash(req)
	if err != nil {
		return Result{}, fmt.Errorf("hash quote request: %w", err)
	}
	version := s.Engine.Fingerprint()
	key := common.CacheKey("quote", version[:16], hash)

	var res Result
	hit, err := s.Cache.GetJSON(ctx, key, &res)
	switch {
	case err != nil:
		s.Metrics.ObserveCache("error")
		s.Logger.Warn().Err(err).Str("cache_key", key).Msg("quote cache read failed")
		hit = false
	case hit:
		s.Metrics.ObserveCache("hit")
	case s.Cache.enabled():
		s.Metrics.ObserveCache("miss")
	}

	if hit {
		res.Cached = true
	} else {
		b, err := s.Engine.QuoteFromMaps(req.Items, req.Region, req.Membership, req.CouponCodes)
		if err != nil {
			var verr *pricing.ValidationError
			if errors.As(err, &verr) {
				s.Metrics.ObserveQuote("invalid", nil)
				span.SetStatus(codes.Error, "invalid item")
				return Result{}, itemError(verr)
			}
			s.Metrics.ObserveQuote("error", nil)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		}
		res = NewResult(b, s.currency(), version)
		if err := s.Cache.SetJSON(ctx, key, res); err != nil {
			s.Metrics.ObserveCache("error")
			s.Logger.Warn().Err(err).Str("cache_key", key).Msg("quote cache write failed")
		}
	}

	res.QuoteID = s.newID()
	res.QuotedAt = s.now()
	s.Metrics.ObserveQuote("ok", res.ReasonFlags)
	span.SetAttributes(
		attribute.String("pricing.quote_id", res.QuoteID),
		attribute.String("pricing.total", res.Total),
		attribute.Bool("pricing.cached", res.Cached),
		attribute.StringSlice("pricing.reason_flags", res.ReasonFlags),
	)
	s.Logger.Debug().
		Str("quote_id", res.QuoteID).
		Str("region", req.Region).
		Str("total", res.Total).
		Bool("cached", res.Cached).
		Strs("reason_flags", res.ReasonFlags).
		Msg("quote priced")
	s.recordAudit(ctx, req, hash, res)
	return res, nil
}

// QuoteBatch prices several requests concurrently. Per-request failures are
// reported in the matching entry; anything else aborts the batch.
func (s *Service) QuoteBatch(ctx context.Context, reqs []Request) ([]BatchEntry, error) {
	if len(reqs) == 0 {
		return nil, common.BadRequest("quotes must not be empty")
	}
	if limit := s.batchMax(); len(reqs) > limit {
		return nil, common.BadRequest(fmt.Sprintf("at most %d quotes per batch", limit))
	}
	s.Metrics.ObserveBatch(len(reqs))

	entries := make([]BatchEntry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency())
	for i := range reqs {
		g.Go(func() error {
			entries[i].Index = i
			res, err := s.Quote(gctx, reqs[i])
			if err != nil {
				var appErr *common.AppError
				if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
					entries[i].Error = &ErrorInfo{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
					return nil
				}
				return err
			}
			entries[i].Result = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Rules describes the active pricing configuration.
func (s *Service) Rules() RulesView {
	return NewRulesView(s.Engine.Rules(), s.currency())
}

func (s *Service) recordAudit(ctx context.Context, req Request, hash string, res Result) {
	if s.Audit == nil {
		return
	}
	coupons := make([]string, 0, len(req.CouponCodes))
	for _, c := range req.CouponCodes {
		coupons = append(coupons, strings.ToUpper(strings.TrimSpace(c)))
	}
	rec := audit.Record{
		QuoteID:       res.QuoteID,
		RequestHash:   hash,
		RulesVersion:  res.RulesVersion,
		Region:        req.Region,
		Membership:    string(pricing.ParseMembership(req.Membership)),
		CouponCodes:   coupons,
		Subtotal:      parseMoney(res.Subtotal),
		TotalDiscount: parseMoney(res.TotalDiscount),
		Shipping:      parseMoney(res.Shipping),
		Tax:           parseMoney(res.Tax),
		Total:         parseMoney(res.Total),
		ReasonFlags:   res.ReasonFlags,
		Cached:        res.Cached,
		QuotedAt:      res.QuotedAt,
	}
	if err := s.Audit.Record(ctx, rec); err != nil {
		s.Metrics.ObserveAudit("error")
		s.Logger.Warn().Err(err).Str("quote_id", res.QuoteID).Msg("quote audit hand-off failed")
		return
	}
	s.Metrics.ObserveAudit("ok")
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "USD"
	}
	return s.Currency
}

func (s *Service) batchMax() int {
	if s.BatchMax <= 0 {
		return defaultBatchMax
	}
	return s.BatchMax
}

func (s *Service) batchConcurrency() int {
	if s.BatchConcurrency <= 0 {
		return defaultBatchConcurrency
	}
	return s.BatchConcurrency
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func requestHash(req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return common.Sha256Hex(string(data)), nil
}

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func itemError(verr *pricing.ValidationError) *common.AppError {
	appErr := common.NewAppError(common.CodeValidation, verr.Error(), http.StatusBadRequest, verr)
	appErr.Details = map[string]any{
		"index":  verr.Index,
		"field":  verr.Field,
		"reason": verr.Reason,
	}
	return appErr
}

func requestError(err error) *common.AppError {
	appErr := common.NewAppError(common.CodeValidation, "invalid quote request", http.StatusBadRequest, err)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		appErr.Details = fields
	}
	return appErr
}
