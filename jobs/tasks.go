package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFilterAudit records a filter change in the audit log.
	TaskFilterAudit = "filters:audit"
)

// FilterAuditPayload describes a single filter change.
type FilterAuditPayload struct {
	EventID  string    `json:"event_id"`
	Action   string    `json:"action"`
	FilterID int64     `json:"filter_id"`
	Actor    string    `json:"actor"`
	Tenant   string    `json:"tenant,omitempty"`
	At       time.Time `json:"at"`
}

// NewFilterAuditTask constructs an Asynq task. A fresh event id is assigned
// when the payload carries none.
func NewFilterAuditTask(payload FilterAuditPayload) (*asynq.Task, error) {
	if payload.Action == "" || payload.FilterID <= 0 {
		return nil, errors.New("filter audit payload requires action and filter id")
	}
	if payload.EventID == "" {
		payload.EventID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFilterAudit, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}
