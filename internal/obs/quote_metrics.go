package obs

import "github.com/prometheus/client_golang/prometheus"

// QuoteMetrics groups collectors describing pricing activity.
type QuoteMetrics struct {
	// QuotesTotal counts quote outcomes (ok, invalid, error).
	QuotesTotal *prometheus.CounterVec
	// ReasonFlags counts every reason flag emitted by the engine.
	ReasonFlags *prometheus.CounterVec
	// CacheTotal counts quote cache lookups by result (hit, miss, error).
	CacheTotal *prometheus.CounterVec
	// AuditEnqueueTotal counts audit hand-offs by result.
	AuditEnqueueTotal *prometheus.CounterVec
	// BatchSize observes the number of quotes per batch request.
	BatchSize prometheus.Histogram
	// AuditRecordsTotal counts audit records persisted by the worker.
	AuditRecordsTotal *prometheus.CounterVec
}

// NewQuoteMetrics registers pricing collectors on reg (default registerer when nil).
func NewQuoteMetrics(namespace string, reg prometheus.Registerer) *QuoteMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &QuoteMetrics{
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of quote requests by outcome.",
		}, []string{"result"}),
		ReasonFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_reason_flags_total",
			Help:      "Count of reason flags emitted while pricing.",
		}, []string{"flag"}),
		CacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_total",
			Help:      "Quote cache lookups by result.",
		}, []string{"result"}),
		AuditEnqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_audit_enqueue_total",
			Help:      "Quote audit hand-offs by result.",
		}, []string{"result"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_batch_size",
			Help:      "Number of quotes per batch request.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		AuditRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_audit_records_total",
			Help:      "Quote audit records processed by the worker.",
		}, []string{"result"}),
	}
	m.QuotesTotal = register(reg, m.QuotesTotal)
	m.ReasonFlags = register(reg, m.ReasonFlags)
	m.CacheTotal = register(reg, m.CacheTotal)
	m.AuditEnqueueTotal = register(reg, m.AuditEnqueueTotal)
	m.BatchSize = register(reg, m.BatchSize)
	m.AuditRecordsTotal = register(reg, m.AuditRecordsTotal)
	return m
}

// ObserveQuote records the outcome of one quote and its reason flags. Nil
// receivers are ignored so callers need not guard optional metrics.
func (m *QuoteMetrics) ObserveQuote(result string, flags []string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(result).Inc()
	for _, f := range flags {
		m.ReasonFlags.WithLabelValues(f).Inc()
	}
}

// ObserveCache records a cache lookup result.
func (m *QuoteMetrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// ObserveAudit records an audit hand-off result.
func (m *QuoteMetrics) ObserveAudit(result string) {
	if m == nil {
		return
	}
	m.AuditEnqueueTotal.WithLabelValues(result).Inc()
}

// ObserveBatch records the size of a batch request.
func (m *QuoteMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// ObserveAuditRecord records a worker-side persistence result.
func (m *QuoteMetrics) ObserveAuditRecord(result string) {
	if m == nil {
		return
	}
	m.AuditRecordsTotal.WithLabelValues(result).Inc()
}
