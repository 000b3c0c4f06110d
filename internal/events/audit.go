package events

import (
	"context"
	"time"

	"github.com/nerrad567/tophat-core/internal/audit"
)

// DefaultAuditTimeout bounds each audit insert.
const DefaultAuditTimeout = 5 * time.Second

// AuditRecorder stores one audit record per outcome.
type AuditRecorder struct {
	repo    audit.Repository
	timeout time.Duration
	logger  Logger
}

// NewAuditRecorder returns an observer writing to repo.
func NewAuditRecorder(repo audit.Repository) *AuditRecorder {
	return &AuditRecorder{repo: repo, timeout: DefaultAuditTimeout, logger: noopLogger{}}
}

// SetLogger sets the logger for insert failures.
func (r *AuditRecorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Observe implements Observer.
func (r *AuditRecorder) Observe(o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.Create(ctx, NewRecord(o)); err != nil {
		r.logger.Warn("writing audit record failed",
			"request_id", o.RequestID,
			"device", o.Device,
			"error", err,
		)
	}
}

// NewRecord converts an outcome to an audit record.
func NewRecord(o Outcome) *audit.Record {
	rec := &audit.Record{
		RequestID:   o.RequestID,
		Device:      o.Device,
		Command:     string(o.Command),
		Status:      o.Status.String(),
		Error:       o.ErrorText(),
		SubmittedAt: o.Submitted,
		StartedAt:   o.Started,
		FinishedAt:  o.Finished,
		Duration:    o.Duration().Milliseconds(),
	}
	if o.Kind != 0 {
		rec.Kind = o.Kind.String()
	}
	return rec
}
