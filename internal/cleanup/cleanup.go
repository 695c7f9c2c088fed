// Package cleanup implements the tiered retention engine of spec.md
// §4.7: preview/apply passes that count and batch-delete rows older
// than tier-specific cutoffs, recording a maintenance event when applied.
// Grounded on wardeck's own storage.Storage interface plus the teacher's
// retention sweep in internal/db (batched delete loop, log-then-act shape).
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/storage"
)

// DELETE_BATCH_SIZE bounds how many rows a single DELETE statement
// removes per round, so a large backlog doesn't hold a long-running
// transaction (spec.md §4.7).
const DELETE_BATCH_SIZE = 5000

// Policy is the configured retention rules for one cleanup pass.
type Policy struct {
	// GlobalRetentionDays applies to segments, audit actions, usage
	// metrics and notification history. Zero means keep forever.
	GlobalRetentionDays uint32
	// EventTiers are evaluated in order; events are deleted per their
	// matching tier's RetentionDays instead of the global value.
	EventTiers []model.RetentionTier
}

func (p Policy) globalCutoff(now time.Time) (time.Time, bool) {
	if p.GlobalRetentionDays == 0 {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(p.GlobalRetentionDays) * 24 * time.Hour), true
}

func tierCutoff(t model.RetentionTier, now time.Time) (time.Time, bool) {
	if t.KeepsForever() {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(t.RetentionDays) * 24 * time.Hour), true
}

// Engine runs preview and apply passes against a Storage backend.
type Engine struct {
	store     storage.Storage
	batchSize int
}

// New creates a cleanup Engine. batchSize defaults to
// DELETE_BATCH_SIZE when zero or negative.
func New(store storage.Storage, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DELETE_BATCH_SIZE
	}
	return &Engine{store: store, batchSize: batchSize}
}

// Preview reports what a cleanup pass would delete without deleting
// anything (spec.md §4.7 "dry-run preview").
func (e *Engine) Preview(ctx context.Context, policy Policy, now time.Time) (model.CleanupPlan, error) {
	return e.run(ctx, policy, now, true)
}

// Apply deletes eligible rows per policy and records a maintenance
// event summarizing the pass.
func (e *Engine) Apply(ctx context.Context, policy Policy, now time.Time) (model.CleanupPlan, error) {
	plan, err := e.run(ctx, policy, now, false)
	if err != nil {
		return plan, err
	}
	detail := fmt.Sprintf("deleted=%d eligible=%d tables=%d", plan.TotalDeleted, plan.TotalEligible, len(plan.Tables))
	if err := e.store.RecordMaintenance(ctx, storage.MaintenanceRecord{
		EventType:  "tiered_cleanup",
		Detail:     detail,
		OccurredAt: now,
	}); err != nil {
		return plan, fmt.Errorf("record maintenance event: %w", err)
	}
	return plan, nil
}

func (e *Engine) run(ctx context.Context, policy Policy, now time.Time, dryRun bool) (model.CleanupPlan, error) {
	plan := model.CleanupPlan{DryRun: dryRun}

	if cutoff, ok := policy.globalCutoff(now); ok {
		if err := e.sweepTable(ctx, &plan, "output_segments", policy.GlobalRetentionDays, dryRun,
			func() (int64, error) { return e.store.CountSegmentsBefore(ctx, cutoff) },
			func() (int64, error) { return e.store.DeleteSegmentsBefore(ctx, cutoff, e.batchSize) },
		); err != nil {
			return plan, err
		}
		if err := e.sweepTable(ctx, &plan, "audit_actions", policy.GlobalRetentionDays, dryRun,
			func() (int64, error) { return e.store.CountAuditBefore(ctx, cutoff) },
			func() (int64, error) { return e.store.DeleteAuditBefore(ctx, cutoff, e.batchSize) },
		); err != nil {
			return plan, err
		}
		if err := e.sweepTable(ctx, &plan, "usage_metrics", policy.GlobalRetentionDays, dryRun,
			func() (int64, error) { return e.store.CountUsageMetricsBefore(ctx, cutoff) },
			func() (int64, error) { return e.store.DeleteUsageMetricsBefore(ctx, cutoff, e.batchSize) },
		); err != nil {
			return plan, err
		}
		if err := e.sweepTable(ctx, &plan, "notification_history", policy.GlobalRetentionDays, dryRun,
			func() (int64, error) { return e.store.CountNotificationsBefore(ctx, cutoff) },
			func() (int64, error) { return e.store.DeleteNotificationsBefore(ctx, cutoff, e.batchSize) },
		); err != nil {
			return plan, err
		}
	}

	for _, tier := range policy.EventTiers {
		cutoff, ok := tierCutoff(tier, now)
		if !ok {
			continue
		}
		table := fmt.Sprintf("events[%s]", tier.Name)
		if err := e.sweepTable(ctx, &plan, table, tier.RetentionDays, dryRun,
			func() (int64, error) {
				return e.store.CountEventsByTier(ctx, cutoff, tier.Severities, tier.EventTypes, tier.Handled)
			},
			func() (int64, error) {
				return e.store.DeleteEventsByTier(ctx, cutoff, tier.Severities, tier.EventTypes, tier.Handled, e.batchSize)
			},
		); err != nil {
			return plan, err
		}
	}

	// Events with no tier configured, or not covered by any configured
	// tier, fall through to the global cutoff (spec.md §4.7 "otherwise
	// the global retention applies").
	if cutoff, ok := policy.globalCutoff(now); ok {
		if err := e.sweepTable(ctx, &plan, "events[global]", policy.GlobalRetentionDays, dryRun,
			func() (int64, error) { return e.store.CountEventsUnmatchedBefore(ctx, cutoff, policy.EventTiers) },
			func() (int64, error) {
				return e.store.DeleteEventsUnmatchedBefore(ctx, cutoff, policy.EventTiers, e.batchSize)
			},
		); err != nil {
			return plan, err
		}
	}

	return plan, nil
}

func (e *Engine) sweepTable(ctx context.Context, plan *model.CleanupPlan, table string, retentionDays uint32, dryRun bool,
	count func() (int64, error), deleteBatch func() (int64, error)) error {
	eligible, err := count()
	if err != nil {
		return fmt.Errorf("count eligible rows in %s: %w", table, err)
	}

	summary := model.CleanupTableSummary{Table: table, EligibleRows: eligible, RetentionDays: retentionDays}
	plan.TotalEligible += eligible

	if !dryRun {
		var deleted int64
		for {
			n, err := deleteBatch()
			if err != nil {
				return fmt.Errorf("delete batch from %s: %w", table, err)
			}
			deleted += n
			if n == 0 || n < int64(e.batchSize) {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		summary.DeletedRows = deleted
		plan.TotalDeleted += deleted
	}

	plan.Tables = append(plan.Tables, summary)
	return nil
}
