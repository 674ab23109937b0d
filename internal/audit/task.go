package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeQuoteAudit is the asynq task type carrying a Record.
const TypeQuoteAudit = "pricing:quote_audit"

// NewQuoteAuditTask encodes rec as an asynq task.
func NewQuoteAuditTask(rec Record, opts ...asynq.Option) (*asynq.Task, error) {
	if strings.TrimSpace(rec.QuoteID) == "" {
		return nil, errors.New("audit: quote id is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: encode record: %w", err)
	}
	return asynq.NewTask(TypeQuoteAudit, payload, opts...), nil
}

// TaskClient is the subset of *asynq.Client used by Enqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands audit records to the worker through asynq.
type Enqueuer struct {
	Client   TaskClient
	Queue    string
	MaxRetry int
	Retain   time.Duration
}

// Record enqueues rec. The quote id doubles as the task id so a record is
// queued at most once.
func (e Enqueuer) Record(ctx context.Context, rec Record) error {
	if e.Client == nil {
		return errors.New("audit: task client not configured")
	}
	opts := []asynq.Option{asynq.TaskID(rec.QuoteID)}
	if q := strings.TrimSpace(e.Queue); q != "" {
		opts = append(opts, asynq.Queue(q))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retain > 0 {
		opts = append(opts, asynq.Retention(e.Retain))
	}
	task, err := NewQuoteAuditTask(rec, opts...)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("audit: enqueue: %w", err)
	}
	return nil
}
