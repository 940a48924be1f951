package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/taskdesk/taskdesk/internal/jobs"
	"github.com/taskdesk/taskdesk/internal/shared"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// FilterAuditJob writes filter change events into the audit log.
type FilterAuditJob struct {
	recorder AuditRecorder
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewFilterAuditJob builds the job handler.
func NewFilterAuditJob(recorder AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *FilterAuditJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilterAuditJob{recorder: recorder, logger: logger, metrics: metrics}
}

// Handle processes TaskFilterAudit tasks.
func (j *FilterAuditJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskFilterAudit)
	defer func() { err = tracker.End(err) }()

	var payload FilterAuditPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode filter audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Action == "" || payload.FilterID <= 0 {
		return fmt.Errorf("incomplete filter audit payload: %w", asynq.SkipRetry)
	}

	entry := shared.AuditLog{
		EventID:  payload.EventID,
		Actor:    payload.Actor,
		Tenant:   payload.Tenant,
		Action:   payload.Action,
		Entity:   "filter",
		EntityID: strconv.FormatInt(payload.FilterID, 10),
		At:       payload.At,
	}
	if err := j.recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("record filter audit: %w", err)
	}
	j.logger.Debug("filter audit recorded",
		slog.String("event_id", payload.EventID),
		slog.String("action", payload.Action),
		slog.Int64("filter_id", payload.FilterID))
	return nil
}
