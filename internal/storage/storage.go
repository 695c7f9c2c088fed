// Package storage defines Storage, the persistence contract the
// observation core reads and writes through (spec.md "Persisted
// state the core reads/writes through Storage"). A SQLite-backed
// implementation lives in internal/storage/sqlitestore; the interface
// exists so ObservationRuntime and the Cleanup engine never import a
// concrete driver directly.
package storage

import (
	"context"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// AuditAction is one row of the audit_actions table: an operator- or
// IPC-triggered action taken against a pane.
type AuditAction struct {
	PaneID     string
	Action     string
	Detail     string
	OccurredAt time.Time
}

// UsageMetric is one row of the usage_metrics table: a counter sample
// recorded by the runtime (e.g. bytes captured, captures attempted).
type UsageMetric struct {
	Name       string
	Value      float64
	PaneID     string
	OccurredAt time.Time
}

// NotificationRecord is one row of the notification_history table.
type NotificationRecord struct {
	Channel    string
	Subject    string
	Body       string
	EventID    int64
	SentAt     time.Time
}

// MaintenanceRecord is one row of the maintenance_events table,
// written by the Cleanup engine and other periodic maintenance tasks.
type MaintenanceRecord struct {
	EventType  string
	Detail     string
	OccurredAt time.Time
}

// Storage is the persistence contract for the observation core.
type Storage interface {
	UpsertPane(ctx context.Context, entry model.PaneEntry) error
	ClosePane(ctx context.Context, paneID string, closedAt time.Time) error
	GetMaxSeq(ctx context.Context, paneID string) (int64, error)

	RecordSegment(ctx context.Context, seg model.CapturedSegment) (assignedSeq int64, err error)
	RecordEvent(ctx context.Context, ev model.StoredEvent) (id int64, deduped bool, err error)
	RecordAudit(ctx context.Context, action AuditAction) error
	RecordUsageMetric(ctx context.Context, metric UsageMetric) error
	RecordNotification(ctx context.Context, notif NotificationRecord) error
	RecordMaintenance(ctx context.Context, rec MaintenanceRecord) error

	CountSegmentsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteSegmentsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	CountEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool) (int64, error)
	DeleteEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool, batchSize int) (int64, error)

	// CountEventsUnmatchedBefore and DeleteEventsUnmatchedBefore cover
	// events that match none of tiers: the global-retention catch-all
	// for events with no configured tier, or with tiers that don't
	// cover them (spec.md §4.7 "otherwise the global retention applies").
	CountEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier) (int64, error)
	DeleteEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier, batchSize int) (int64, error)

	CountAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	CountUsageMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUsageMetricsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	CountNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	Checkpoint(ctx context.Context) error
	Close() error
}
