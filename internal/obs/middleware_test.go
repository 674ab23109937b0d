package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-pricing/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("pricing", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/quotes"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/quotes", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("pricing", nil, registry)
	second := obs.NewHTTPMetrics("pricing", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestQuoteMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := obs.NewQuoteMetrics("pricing", registry)

	m.ObserveQuote("ok", []string{"free_shipping", "membership_gold", "free_shipping"})
	m.ObserveCache("hit")
	m.ObserveBatch(3)

	require.Equal(t, float64(1), testutil.ToFloat64(m.QuotesTotal.WithLabelValues("ok")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.ReasonFlags.WithLabelValues("free_shipping")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheTotal.WithLabelValues("hit")))

	var nilMetrics *obs.QuoteMetrics
	require.NotPanics(t, func() { nilMetrics.ObserveQuote("ok", []string{"x"}) })
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pricing/rules", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, float64(http.StatusTeapot), line["status"])
	require.Equal(t, "10.0.0.9", line["client_ip"])
}
