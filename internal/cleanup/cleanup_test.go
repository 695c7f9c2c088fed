package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/storage"
)

// fakeEvent is a minimal row shape sufficient to drive tiered count/delete.
type fakeEvent struct {
	occurredAt time.Time
	severity   string
	eventType  string
	handled    bool
}

// fakeStore is an in-memory storage.Storage double scoped to exactly
// what the cleanup engine touches.
type fakeStore struct {
	segments      []time.Time
	audit         []time.Time
	usageMetrics  []time.Time
	notifications []time.Time
	events        []fakeEvent
	maintenance   []storage.MaintenanceRecord
}

func (f *fakeStore) UpsertPane(context.Context, model.PaneEntry) error          { return nil }
func (f *fakeStore) ClosePane(context.Context, string, time.Time) error        { return nil }
func (f *fakeStore) GetMaxSeq(context.Context, string) (int64, error)          { return 0, nil }
func (f *fakeStore) RecordSegment(context.Context, model.CapturedSegment) (int64, error) {
	return 0, nil
}
func (f *fakeStore) RecordEvent(context.Context, model.StoredEvent) (int64, bool, error) {
	return 0, false, nil
}
func (f *fakeStore) RecordAudit(ctx context.Context, a storage.AuditAction) error {
	f.audit = append(f.audit, a.OccurredAt)
	return nil
}
func (f *fakeStore) RecordUsageMetric(ctx context.Context, m storage.UsageMetric) error {
	f.usageMetrics = append(f.usageMetrics, m.OccurredAt)
	return nil
}
func (f *fakeStore) RecordNotification(ctx context.Context, n storage.NotificationRecord) error {
	f.notifications = append(f.notifications, n.SentAt)
	return nil
}
func (f *fakeStore) RecordMaintenance(ctx context.Context, r storage.MaintenanceRecord) error {
	f.maintenance = append(f.maintenance, r)
	return nil
}

func countBefore(times []time.Time, cutoff time.Time) int64 {
	var n int64
	for _, t := range times {
		if t.Before(cutoff) {
			n++
		}
	}
	return n
}

func deleteBeforeBatched(times *[]time.Time, cutoff time.Time, batchSize int) (int64, error) {
	var kept []time.Time
	var deleted int64
	for _, t := range *times {
		if t.Before(cutoff) && deleted < int64(batchSize) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	*times = kept
	return deleted, nil
}

func (f *fakeStore) CountSegmentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return countBefore(f.segments, cutoff), nil
}
func (f *fakeStore) DeleteSegmentsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return deleteBeforeBatched(&f.segments, cutoff, batchSize)
}
func (f *fakeStore) CountAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return countBefore(f.audit, cutoff), nil
}
func (f *fakeStore) DeleteAuditBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return deleteBeforeBatched(&f.audit, cutoff, batchSize)
}
func (f *fakeStore) CountUsageMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return countBefore(f.usageMetrics, cutoff), nil
}
func (f *fakeStore) DeleteUsageMetricsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return deleteBeforeBatched(&f.usageMetrics, cutoff, batchSize)
}
func (f *fakeStore) CountNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return countBefore(f.notifications, cutoff), nil
}
func (f *fakeStore) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return deleteBeforeBatched(&f.notifications, cutoff, batchSize)
}

func matchesTier(e fakeEvent, severities, eventTypes []string, handled *bool) bool {
	if len(severities) > 0 && !contains(severities, e.severity) {
		return false
	}
	if len(eventTypes) > 0 && !contains(eventTypes, e.eventType) {
		return false
	}
	if handled != nil && *handled != e.handled {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeStore) CountEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool) (int64, error) {
	var n int64
	for _, e := range f.events {
		if e.occurredAt.Before(cutoff) && matchesTier(e, severities, eventTypes, handled) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool, batchSize int) (int64, error) {
	var kept []fakeEvent
	var deleted int64
	for _, e := range f.events {
		if e.occurredAt.Before(cutoff) && matchesTier(e, severities, eventTypes, handled) && deleted < int64(batchSize) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func matchesAnyTier(e fakeEvent, tiers []model.RetentionTier) bool {
	for _, t := range tiers {
		if matchesTier(e, t.Severities, t.EventTypes, t.Handled) {
			return true
		}
	}
	return false
}

func (f *fakeStore) CountEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier) (int64, error) {
	var n int64
	for _, e := range f.events {
		if e.occurredAt.Before(cutoff) && !matchesAnyTier(e, tiers) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier, batchSize int) (int64, error) {
	var kept []fakeEvent
	var deleted int64
	for _, e := range f.events {
		if e.occurredAt.Before(cutoff) && !matchesAnyTier(e, tiers) && deleted < int64(batchSize) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeStore) Checkpoint(context.Context) error { return nil }
func (f *fakeStore) Close() error                     { return nil }

var _ storage.Storage = (*fakeStore)(nil)

func TestPreviewMatchesApplyEligibility(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{segments: []time.Time{now.Add(-40 * 24 * time.Hour), now.Add(-5 * 24 * time.Hour)}}
	engine := New(store, 0)
	policy := Policy{GlobalRetentionDays: 30}

	preview, err := engine.Preview(context.Background(), policy, now)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.TotalEligible != 1 || preview.TotalDeleted != 0 {
		t.Fatalf("got eligible=%d deleted=%d, want eligible=1 deleted=0", preview.TotalEligible, preview.TotalDeleted)
	}

	applied, err := engine.Apply(context.Background(), policy, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.TotalEligible != preview.TotalEligible {
		t.Fatalf("apply eligible %d != preview eligible %d", applied.TotalEligible, preview.TotalEligible)
	}
	if applied.TotalDeleted != 1 {
		t.Fatalf("got deleted=%d, want 1", applied.TotalDeleted)
	}
	if len(store.segments) != 1 {
		t.Fatalf("got %d segments remaining, want 1", len(store.segments))
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{segments: []time.Time{now.Add(-40 * 24 * time.Hour)}}
	engine := New(store, 0)
	policy := Policy{GlobalRetentionDays: 30}

	if _, err := engine.Apply(context.Background(), policy, now); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := engine.Apply(context.Background(), policy, now)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.TotalDeleted != 0 || second.TotalEligible != 0 {
		t.Fatalf("second apply should be a no-op, got eligible=%d deleted=%d", second.TotalEligible, second.TotalDeleted)
	}
}

func TestZeroRetentionKeepsForever(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{segments: []time.Time{now.Add(-1000 * 24 * time.Hour)}}
	engine := New(store, 0)
	policy := Policy{GlobalRetentionDays: 0}

	plan, err := engine.Apply(context.Background(), policy, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if plan.TotalEligible != 0 || len(store.segments) != 1 {
		t.Fatalf("zero retention should keep everything, got eligible=%d remaining=%d", plan.TotalEligible, len(store.segments))
	}
}

// TestTieredCleanupScenario grounds the documented worked example:
// global 30d retention, tiers critical=90d and info=7d; seeded with one
// old-critical (100d), one recent-critical (50d), one old-info (15d),
// one recent-info (3d) event. Expect exactly the old-critical and
// old-info rows deleted, two remain.
func TestTieredCleanupScenario(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		events: []fakeEvent{
			{occurredAt: now.Add(-100 * 24 * time.Hour), severity: "critical"},
			{occurredAt: now.Add(-50 * 24 * time.Hour), severity: "critical"},
			{occurredAt: now.Add(-15 * 24 * time.Hour), severity: "info"},
			{occurredAt: now.Add(-3 * 24 * time.Hour), severity: "info"},
		},
	}
	engine := New(store, 0)
	policy := Policy{
		GlobalRetentionDays: 30,
		EventTiers: []model.RetentionTier{
			{Name: "critical", RetentionDays: 90, Severities: []string{"critical"}},
			{Name: "info", RetentionDays: 7, Severities: []string{"info"}},
		},
	}

	plan, err := engine.Apply(context.Background(), policy, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if plan.TotalDeleted != 2 {
		t.Fatalf("got deleted=%d, want 2", plan.TotalDeleted)
	}
	if len(store.events) != 2 {
		t.Fatalf("got %d events remaining, want 2", len(store.events))
	}
	if len(store.maintenance) != 1 || store.maintenance[0].EventType != "tiered_cleanup" {
		t.Fatalf("expected one tiered_cleanup maintenance record, got %+v", store.maintenance)
	}
}

func TestPreviewNeverRecordsMaintenanceEvent(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{segments: []time.Time{now.Add(-40 * 24 * time.Hour)}}
	engine := New(store, 0)
	if _, err := engine.Preview(context.Background(), Policy{GlobalRetentionDays: 30}, now); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(store.maintenance) != 0 {
		t.Fatalf("preview must not write a maintenance record, got %d", len(store.maintenance))
	}
}
