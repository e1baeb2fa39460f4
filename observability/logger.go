// CLAUDE:SUMMARY SQLite business-event log: analysis outcomes per landing page, queryable and retention-cleaned.
// Package observability records domain events (analysis started, done,
// failed) in SQLite so operators can audit what the pipeline did without
// parsing logs.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lplens/idgen"
)

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	ID          string        `json:"id"`
	EventType   string        `json:"event_type"`
	ServiceName string        `json:"service_name"`
	EntityType  string        `json:"entity_type,omitempty"`
	EntityID    string        `json:"entity_id,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
	Action      string        `json:"action"`
	Details     string        `json:"details,omitempty"` // optional JSON
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration_ms"`
	CreatedAt   int64         `json:"created_at"`
}

// EventLogger writes business events to the observability database.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used to report write failures.
func WithEventLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger backed by db. Call Init(db) first.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a business event. Write errors are logged and swallowed:
// a failing observability store never blocks the pipeline.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			user_id, action, details, success, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.ServiceName, event.EntityType, event.EntityID,
		event.UserID, event.Action, event.Details, event.Success,
		event.Duration.Milliseconds(), time.Now().UnixMilli())
	if err != nil {
		l.logger.Error("observability: event log failed", "error", err, "event_type", event.EventType)
	}
}

// Events returns the most recent events for entityID, newest first.
func (l *EventLogger) Events(ctx context.Context, entityID string, limit int) ([]BusinessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, service_name, COALESCE(entity_type,''), COALESCE(entity_id,''),
		       COALESCE(user_id,''), action, COALESCE(details,''), success, duration_ms, created_at
		FROM business_event_logs WHERE entity_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var out []BusinessEvent
	for rows.Next() {
		var e BusinessEvent
		var durMs int64
		if err := rows.Scan(&e.ID, &e.EventType, &e.ServiceName, &e.EntityType, &e.EntityID,
			&e.UserID, &e.Action, &e.Details, &e.Success, &durMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention. Zero keeps everything.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM business_event_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}
