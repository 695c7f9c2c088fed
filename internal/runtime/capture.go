package runtime

import (
	"context"
	"time"

	"github.com/wardeck/wardeck/internal/scheduler"
	"github.com/wardeck/wardeck/internal/tailer"
)

// captureLoop is the Capture task (spec.md §4.5): on each short tick
// it asks the tailer which panes are ready to poll, ranks them through
// the scheduler's priority/budget gate, and spawns a capture for each
// selected pane. Actual concurrency is bounded inside the tailer's own
// semaphore; this loop only decides *which* panes get a slot this
// tick, not how many run at once.
func (rt *Runtime) captureLoop(ctx context.Context) {
	interval := rt.cfg.CaptureTick
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.runCaptureTick(ctx)
		}
	}
}

func (rt *Runtime) runCaptureTick(ctx context.Context) {
	now := time.Now()
	rt.reg.PurgeExpiredPriorityOverrides(now)

	ready := rt.tail.Ready(now)
	if len(ready) == 0 {
		return
	}

	candidates := make([]scheduler.Candidate, 0, len(ready))
	for _, id := range ready {
		candidates = append(candidates, scheduler.Candidate{
			PaneID:   id,
			Priority: rt.reg.EffectivePriority(id, DefaultBasePriority),
		})
	}

	permits := rt.cfg.MaxConcurrentCaptures
	if permits <= 0 {
		permits = len(candidates)
	}
	selected := rt.sched.SelectPanes(candidates, permits, now)

	for _, c := range selected {
		paneID := c.PaneID
		go func() {
			outcome := rt.tail.SpawnCapture(ctx, paneID, rt.source, time.Now())
			if outcome == tailer.OutcomeError {
				rt.logger.Warn("capture: attempt failed", "pane_id", paneID)
			}
		}()
	}
}
