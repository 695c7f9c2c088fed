package runtime

import (
	"context"
	"time"
)

// discoveryLoop is the Discovery task (spec.md §4.5): on each tick it
// lists panes from the backend, diffs them into the registry, upserts
// new panes and resumes their cursor's sequence numbering from
// storage, closes panes no longer observed, and reconciles the
// tailer's per-pane state against the new observed set.
func (rt *Runtime) discoveryLoop(ctx context.Context) {
	interval := rt.cfg.DiscoveryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.runDiscoveryTick(ctx)
		}
	}
}

func (rt *Runtime) runDiscoveryTick(ctx context.Context) {
	now := time.Now()
	discovered, err := rt.source.ListPanes(ctx)
	if err != nil {
		rt.logger.Warn("discovery: list panes failed", "error", err)
		return
	}

	diff := rt.reg.Diff(discovered, now)

	startSeq := make(map[string]int64, len(diff.NewPanes))
	for _, id := range diff.NewPanes {
		entry, ok := rt.reg.Get(id)
		if !ok {
			continue
		}
		if err := rt.store.UpsertPane(ctx, entry); err != nil {
			rt.logger.Error("discovery: upsert pane failed", "pane_id", id, "error", err)
		}
		// Resume sequence numbering from the max persisted seq so a
		// restart or a reused pane id (generation bump) never resets
		// the monotonic sequence (spec.md §3 "Pane cursor" lifecycle).
		maxSeq, err := rt.store.GetMaxSeq(ctx, id)
		if err != nil {
			rt.logger.Warn("discovery: get max seq failed", "pane_id", id, "error", err)
			maxSeq = -1
		}
		startSeq[id] = maxSeq + 1
	}
	for _, id := range diff.NewGenerations {
		rt.logger.Info("discovery: pane generation bumped", "pane_id", id)
	}

	for _, id := range diff.ClosedPanes {
		if err := rt.store.ClosePane(ctx, id, now); err != nil {
			rt.logger.Warn("discovery: close pane failed", "pane_id", id, "error", err)
		}
		rt.dropDetectionContext(id)
	}

	observed := rt.reg.Observed()
	observedIDs := make([]string, 0, len(observed))
	for _, e := range observed {
		observedIDs = append(observedIDs, e.PaneID)
	}
	rt.tail.Reconcile(observedIDs, startSeq, now)
}
