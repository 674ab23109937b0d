package quote_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-pricing/internal/audit"
	"github.com/noah-isme/promo-pricing/internal/common"
	"github.com/noah-isme/promo-pricing/internal/obs"
	"github.com/noah-isme/promo-pricing/internal/pricing"
	"github.com/noah-isme/promo-pricing/internal/quote"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, rec audit.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fixture struct {
	svc      *quote.Service
	recorder *fakeRecorder
	metrics  *obs.QuoteMetrics
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) fixture {
	t.Helper()
	engine, err := pricing.NewEngine(pricing.DefaultRules())
	require.NoError(t, err)

	var ids atomic.Int64
	f := fixture{recorder: &fakeRecorder{}, metrics: obs.NewQuoteMetrics("test", prometheus.NewRegistry())}
	f.svc = &quote.Service{
		Engine:   engine,
		Audit:    f.recorder,
		Metrics:  f.metrics,
		Logger:   zerolog.Nop(),
		Currency: "USD",
		BatchMax: 5,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID:    func() string { return fmt.Sprintf("q-%d", ids.Add(1)) },
	}
	if withCache {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		f.redis = mr
		f.svc.Cache = quote.NewCache(client, time.Minute)
	}
	return f
}

func goldRequest() quote.Request {
	return quote.Request{
		Items:       []map[string]any{{"sku": "A1", "price": "20.00", "qty": 3}},
		Region:      "CA",
		Membership:  "gold",
		CouponCodes: []string{"pct10"},
	}
}

func TestServiceQuote(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.svc.Quote(context.Background(), goldRequest())
	require.NoError(t, err)
	require.Equal(t, "q-1", res.QuoteID)
	require.Equal(t, "USD", res.Currency)
	require.Equal(t, "60.00", res.Subtotal)
	require.Equal(t, []quote.DiscountLine{
		{Type: "membership", Amount: "3.00"},
		{Type: "coupon:PCT10", Amount: "6.00"},
	}, res.Discounts)
	require.Equal(t, "9.00", res.TotalDiscount)
	require.Equal(t, "51.00", res.DiscountedSubtotal)
	require.Equal(t, "0.00", res.Shipping)
	require.Equal(t, "4.95", res.Tax)
	require.Equal(t, "55.95", res.Total)
	require.Equal(t, []string{"membership_gold", "free_shipping"}, res.ReasonFlags)
	require.Equal(t, f.svc.Engine.Fingerprint(), res.RulesVersion)
	require.False(t, res.Cached)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	require.Equal(t, "q-1", rec.QuoteID)
	require.Equal(t, "gold", rec.Membership)
	require.Equal(t, []string{"PCT10"}, rec.CouponCodes)
	require.Equal(t, "55.95", rec.Total.StringFixed(2))
	require.NotEmpty(t, rec.RequestHash)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QuotesTotal.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReasonFlags.WithLabelValues("free_shipping")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuditEnqueueTotal.WithLabelValues("ok")))
}

func TestServiceQuoteUsesCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.Quote(ctx, goldRequest())
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := f.svc.Quote(ctx, goldRequest())
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.NotEqual(t, first.QuoteID, second.QuoteID)
	require.Equal(t, first.Total, second.Total)
	require.Equal(t, first.ReasonFlags, second.ReasonFlags)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheTotal.WithLabelValues("miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheTotal.WithLabelValues("hit")))
	require.Len(t, f.recorder.records, 2)
	require.True(t, f.recorder.records[1].Cached)
	require.Len(t, f.redis.Keys(), 1)
}

func TestServiceQuoteSurvivesCacheOutage(t *testing.T) {
	f := newFixture(t, true)
	f.redis.Close()

	res, err := f.svc.Quote(context.Background(), goldRequest())
	require.NoError(t, err)
	require.Equal(t, "55.95", res.Total)
	// read and write both fail
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheTotal.WithLabelValues("error")))
}

func TestServiceQuoteRejectsInvalidItem(t *testing.T) {
	f := newFixture(t, false)
	req := quote.Request{
		Items: []map[string]any{
			{"sku": "A1", "price": "1.00"},
			{"sku": "A2", "qty": 2},
		},
		Region: "CA",
	}

	_, err := f.svc.Quote(context.Background(), req)
	require.Error(t, err)
	require.ErrorIs(t, err, pricing.ErrValidation)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	require.Equal(t, common.CodeValidation, appErr.Code)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1, details["index"])
	require.Equal(t, "price", details["field"])

	require.Empty(t, f.recorder.records)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QuotesTotal.WithLabelValues("invalid")))
}

func TestServiceQuoteRejectsOversizedRequest(t *testing.T) {
	f := newFixture(t, false)
	req := goldRequest()
	req.CouponCodes = make([]string, 21)
	for i := range req.CouponCodes {
		req.CouponCodes[i] = "PCT1"
	}

	_, err := f.svc.Quote(context.Background(), req)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestServiceQuoteIgnoresAuditFailure(t *testing.T) {
	f := newFixture(t, false)
	f.recorder.err = errors.New("queue unavailable")

	res, err := f.svc.Quote(context.Background(), goldRequest())
	require.NoError(t, err)
	require.Equal(t, "55.95", res.Total)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuditEnqueueTotal.WithLabelValues("error")))
}

func TestServiceQuoteBatch(t *testing.T) {
	f := newFixture(t, false)
	reqs := []quote.Request{
		goldRequest(),
		{Items: []map[string]any{{"sku": "X", "price": "-1"}}, Region: "CA"},
		{Items: []map[string]any{{"sku": "A1", "price": "10.00", "qty": 2}}, Region: "ZZ"},
	}

	entries, err := f.svc.QuoteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, 0, entries[0].Index)
	require.NotNil(t, entries[0].Result)
	require.Equal(t, "55.95", entries[0].Result.Total)

	require.Equal(t, 1, entries[1].Index)
	require.Nil(t, entries[1].Result)
	require.NotNil(t, entries[1].Error)
	require.Equal(t, common.CodeValidation, entries[1].Error.Code)

	require.Equal(t, 2, entries[2].Index)
	require.NotNil(t, entries[2].Result)
	// unknown region: INTL shipping, no tax
	require.Equal(t, "12.99", entries[2].Result.Shipping)
	require.Equal(t, "32.99", entries[2].Result.Total)
}

func TestServiceQuoteBatchLimits(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.QuoteBatch(context.Background(), nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeBadRequest, appErr.Code)

	reqs := make([]quote.Request, 6)
	for i := range reqs {
		reqs[i] = goldRequest()
	}
	_, err = f.svc.QuoteBatch(context.Background(), reqs)
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Message, "at most 5")
}

func TestServiceRules(t *testing.T) {
	f := newFixture(t, false)
	view := f.svc.Rules()
	require.Equal(t, "USD", view.Currency)
	require.Equal(t, 2, view.StackingLimit)
	require.Equal(t, "0.0825", view.TaxByRegion["CA"])
	require.Equal(t, "12.99", view.ShippingByRegion["INTL"])
	require.Equal(t, "75.00", view.FreeShippingThreshold)
	require.Equal(t, "1.00", view.MinPayable)
	require.Equal(t, f.svc.Engine.Fingerprint(), view.Version)
}
