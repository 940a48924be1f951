package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	EventID  string
	Actor    string
	Tenant   string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is the subset of pgxpool.Pool used by AuditLogger.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry. Replayed events with an already stored
// event id are ignored.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At.UTC()
	}
	var eventID any
	if log.EventID != "" {
		eventID = log.EventID
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (event_id, actor, tenant, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, COALESCE($8::timestamptz, NOW()))
ON CONFLICT (event_id) DO NOTHING`, eventID, log.Actor, log.Tenant, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
