package runtime

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wardeck/wardeck/internal/cleanup"
	"github.com/wardeck/wardeck/internal/config"
	"github.com/wardeck/wardeck/internal/model"
)

// BACKPRESSURE_WARN_RATIO_DEFAULT is the recommended default named in
// spec.md §6; callers should prefer Config.BackpressureWarnRatio.
const BACKPRESSURE_WARN_RATIO_DEFAULT = 0.75

// maintenanceLoop is the Maintenance task (spec.md §4.5): it polls for
// a hot-reloaded config, runs the tiered cleanup pass hourly, checkpoints
// storage on its own interval, and publishes a health snapshot every
// 30 seconds.
func (rt *Runtime) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	reloadEvery := rt.cfg.MaintenanceTick
	if reloadEvery <= 0 {
		reloadEvery = time.Minute
	}
	cleanupEvery := rt.cfg.CleanupInterval
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	checkpointEvery := rt.cfg.CheckpointIntervalSecs
	if checkpointEvery <= 0 {
		checkpointEvery = 5 * time.Minute
	}
	const healthEvery = 30 * time.Second

	now := time.Now()
	nextReload, nextCleanup, nextCheckpoint, nextHealth := now, now.Add(cleanupEvery), now.Add(checkpointEvery), now

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now = time.Now()

		if !now.Before(nextReload) {
			rt.drainReload()
			nextReload = now.Add(reloadEvery)
		}
		if !now.Before(nextCleanup) {
			rt.runCleanup(ctx)
			nextCleanup = now.Add(cleanupEvery)
		}
		if !now.Before(nextCheckpoint) {
			if err := rt.store.Checkpoint(ctx); err != nil {
				rt.logger.Error("maintenance: checkpoint failed", "error", err)
			} else {
				rt.recordDBWrite(now)
			}
			nextCheckpoint = now.Add(checkpointEvery)
		}
		if !now.Before(nextHealth) {
			rt.publishHealth(now)
			nextHealth = now.Add(healthEvery)
		}
	}
}

func (rt *Runtime) drainReload() {
	select {
	case cfg := <-rt.reloadCh:
		rt.applyReload(cfg)
	default:
	}
}

func (rt *Runtime) applyReload(cfg config.Config) {
	rt.logger.Info("maintenance: applying reloaded config")
	rt.cfg = cfg
}

func (rt *Runtime) runCleanup(ctx context.Context) {
	if rt.cleaner == nil {
		return
	}
	policy := cleanup.Policy{
		GlobalRetentionDays: rt.cfg.GlobalRetentionDays,
		EventTiers:          rt.cfg.RetentionTiers,
	}
	plan, err := rt.cleaner.Apply(ctx, policy, time.Now())
	if err != nil {
		rt.logger.Error("maintenance: cleanup apply failed", "error", err)
		return
	}
	rt.logger.Info("maintenance: cleanup applied",
		"deleted", plan.TotalDeleted,
		"eligible", plan.TotalEligible,
		"bytes_approx", humanize.Comma(plan.TotalDeleted))
}

func (rt *Runtime) publishHealth(now time.Time) {
	warnRatio := rt.cfg.BackpressureWarnRatio
	if warnRatio <= 0 {
		warnRatio = BACKPRESSURE_WARN_RATIO_DEFAULT
	}

	captureDepth := len(rt.tail.Events())
	captureCap := cap(rt.tail.Events())

	var warnings []string
	tier := "normal"
	if captureCap > 0 && float64(captureDepth)/float64(captureCap) >= warnRatio {
		warnings = append(warnings, "capture_queue_near_capacity")
		tier = "warn"
	}

	lagAvg, lagMax := rt.ingestLagAvgMax()

	rt.activityMu.Lock()
	lastActivity := make(map[string]time.Time, len(rt.lastActivity))
	for k, v := range rt.lastActivity {
		lastActivity[k] = v
	}
	rt.activityMu.Unlock()

	rt.lastSeqMu.Lock()
	lastSeq := make(map[string]int64, len(rt.lastSeq))
	for k, v := range rt.lastSeq {
		lastSeq[k] = v
	}
	rt.lastSeqMu.Unlock()

	rt.dbMu.Lock()
	dbLastWrite := rt.dbLastWrite
	rt.dbMu.Unlock()

	snap := model.HealthSnapshot{
		Timestamp:             now,
		ObservedPanes:         len(rt.reg.Observed()),
		CaptureQueueDepth:     captureDepth,
		WriteQueueDepth:       0,
		LastSeqByPane:         lastSeq,
		Warnings:              warnings,
		IngestLagAvgMs:        lagAvg,
		IngestLagMaxMs:        lagMax,
		DBWritable:            true,
		DBLastWriteAt:         dbLastWrite,
		PanePriorityOverrides: rt.reg.PriorityOverrideViews(),
		Scheduler:             rt.schedulerSnapshot(now),
		BackpressureTier:      tier,
		LastActivityByPane:    lastActivity,
		RestartCount:          int(rt.restartCount.Load()),
	}

	rt.healthMu.Lock()
	rt.health = snap
	rt.healthMu.Unlock()

	if rt.bus != nil {
		rt.bus.PublishHealth(snap)
	}
}

func (rt *Runtime) schedulerSnapshot(now time.Time) *model.SchedulerSnapshot {
	if rt.sched == nil {
		return nil
	}
	snap := rt.sched.Snapshot(now)
	return &snap
}

// Health returns the most recently published health snapshot.
func (rt *Runtime) Health() model.HealthSnapshot {
	rt.healthMu.RLock()
	defer rt.healthMu.RUnlock()
	return rt.health
}
