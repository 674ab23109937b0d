package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-pricing/internal/obs"
)

type stubStore struct {
	inserted  []Record
	insertErr error
	limit     int
	records   []Record
}

func (s *stubStore) Insert(_ context.Context, rec Record) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func (s *stubStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.limit = limit
	return s.records, nil
}

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (c *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func sampleRecord() Record {
	return Record{
		QuoteID:       "q-1",
		RequestHash:   "abc",
		RulesVersion:  "v1",
		Region:        "CA",
		Membership:    "gold",
		CouponCodes:   []string{"PCT10"},
		Subtotal:      decimal.RequireFromString("51.68"),
		TotalDiscount: decimal.RequireFromString("12.92"),
		Shipping:      decimal.Zero,
		Tax:           decimal.RequireFromString("4.26"),
		Total:         decimal.RequireFromString("43.02"),
		ReasonFlags:   []string{"membership_gold", "free_shipping"},
		QuotedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnqueuerRecord(t *testing.T) {
	client := &stubClient{}
	e := Enqueuer{Client: client, Queue: "audit", MaxRetry: 3}
	if err := e.Record(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(client.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(client.tasks))
	}
	task := client.tasks[0]
	if task.Type() != TypeQuoteAudit {
		t.Fatalf("unexpected task type %q", task.Type())
	}
	var got Record
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !got.Total.Equal(decimal.RequireFromString("43.02")) || got.QuoteID != "q-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestEnqueuerIgnoresDuplicateTask(t *testing.T) {
	e := Enqueuer{Client: &stubClient{err: asynq.ErrTaskIDConflict}}
	if err := e.Record(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("expected duplicate to be ignored, got %v", err)
	}
	e = Enqueuer{Client: &stubClient{err: errors.New("redis down")}}
	if err := e.Record(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestNewQuoteAuditTaskRequiresID(t *testing.T) {
	rec := sampleRecord()
	rec.QuoteID = " "
	if _, err := NewQuoteAuditTask(rec); err == nil {
		t.Fatal("expected error for missing quote id")
	}
}

func TestProcessorStoresRecord(t *testing.T) {
	store := &stubStore{}
	reg := prometheus.NewRegistry()
	metrics := obs.NewQuoteMetrics("test", reg)
	p := Processor{Store: store, Logger: zerolog.Nop(), Metrics: metrics}

	task, err := NewQuoteAuditTask(sampleRecord())
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := p.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].Region != "CA" {
		t.Fatalf("unexpected inserts: %+v", store.inserted)
	}
	if got := testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected ok counter 1, got %v", got)
	}
}

func TestProcessorSkipsMalformedPayload(t *testing.T) {
	store := &stubStore{}
	p := Processor{Store: store, Logger: zerolog.Nop()}

	err := p.ProcessTask(context.Background(), asynq.NewTask(TypeQuoteAudit, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	err = p.ProcessTask(context.Background(), asynq.NewTask(TypeQuoteAudit, []byte(`{"region":"CA"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for missing id, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("malformed payloads must not be stored")
	}
}

func TestProcessorRetriesStoreFailure(t *testing.T) {
	p := Processor{Store: &stubStore{insertErr: errors.New("db down")}, Logger: zerolog.Nop()}
	task, _ := NewQuoteAuditTask(sampleRecord())
	err := p.ProcessTask(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestProcessorWithoutStoreSkipsRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewQuoteMetrics("test", reg)
	p := Processor{Logger: zerolog.Nop(), Metrics: metrics}
	task, _ := NewQuoteAuditTask(sampleRecord())

	err := p.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) || !errors.Is(err, errNoStore) {
		t.Fatalf("expected non-retryable missing store error, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected error counter 1, got %v", got)
	}
}

func TestAdminHandlerList(t *testing.T) {
	store := &stubStore{records: []Record{sampleRecord()}}
	h := AdminHandler{Store: store}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/quote-audits?limit=500", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.limit != maxListLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxListLimit, store.limit)
	}
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data) != 1 || payload.Data[0]["total"] != "43.02" {
		t.Fatalf("unexpected payload: %+v", payload.Data)
	}
}

func TestAdminHandlerRejectsBadLimit(t *testing.T) {
	h := AdminHandler{Store: &stubStore{}}
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/quote-audits?limit=ten", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	AdminHandler{}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/quote-audits", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %d", rr.Code)
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 1: 1, 200: 200, 201: 200}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestMigrationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/pricing?sslmode=disable": "pgx5://u:p@db:5432/pricing?sslmode=disable",
		"postgresql://db/pricing":                        "pgx5://db/pricing",
		"pgx5://db/pricing":                              "pgx5://db/pricing",
	}
	for in, want := range cases {
		if got := MigrationURL(in); got != want {
			t.Fatalf("MigrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected up and down migration, got %d files", len(entries))
	}
}
