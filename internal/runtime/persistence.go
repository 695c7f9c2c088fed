package runtime

import (
	"context"
	"strconv"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// persistenceLoop is the Persistence task (spec.md §4.5): it drains the
// tailer's capture channel, writes every segment to storage (resyncing
// the cursor on a sequence conflict), runs detection over its content,
// persists and publishes any resulting events, and tracks ingest lag.
func (rt *Runtime) persistenceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-rt.tail.Events():
			if !ok {
				return
			}
			rt.handleSegment(ctx, seg)
		}
	}
}

func (rt *Runtime) handleSegment(ctx context.Context, seg model.CapturedSegment) {
	now := time.Now()
	rt.recordIngestLag(float64(now.Sub(seg.CapturedAt).Milliseconds()))

	assignedSeq, err := rt.store.RecordSegment(ctx, seg)
	if err != nil {
		rt.logger.Error("persistence: record segment failed", "pane_id", seg.PaneID, "error", err)
		return
	}
	rt.recordDBWrite(now)
	rt.segmentsPersisted.Add(1)
	rt.recordLastSeq(seg.PaneID, assignedSeq)
	rt.recordActivity(seg.PaneID, now)

	if assignedSeq != seg.Seq {
		// Storage and the cursor disagree about the next sequence
		// number; realign the cursor forward (spec.md §7 "Sequence
		// conflict") rather than losing or duplicating a segment.
		rt.tail.ResyncSeq(seg.PaneID, assignedSeq)
	}

	if !seg.IsGap() && rt.sched != nil {
		rt.sched.RecordCapture(seg.PaneID, uint64(len(seg.Content)), now)
	}

	if rt.router != nil {
		rt.router.Route(seg)
	}

	dctx := rt.detectionContext(seg.PaneID)
	if seg.IsGap() {
		// A gap breaks continuity; any buffered tail spans a
		// discontinuity and would produce spurious cross-gap matches.
		dctx.ClearTail()
	}

	if rt.detector == nil {
		return
	}
	detections, err := rt.detector.DetectWithContext(ctx, seg.Content, dctx)
	if err != nil {
		rt.logger.Warn("persistence: detection failed", "pane_id", seg.PaneID, "error", err)
		return
	}
	for _, d := range detections {
		rt.persistDetection(ctx, seg, d, now)
	}
}

func (rt *Runtime) persistDetection(ctx context.Context, seg model.CapturedSegment, d model.Detection, now time.Time) {
	entry, _ := rt.reg.Get(seg.PaneID)
	generation := strconv.FormatInt(entry.Generation, 10)

	ev := model.StoredEvent{
		Detection:  d,
		PaneID:     seg.PaneID,
		DetectedAt: now,
		SegmentID:  seg.Seq,
		DedupeKey:  model.DedupeKey(d.RuleID, seg.PaneID, generation, d.EventType, now),
	}

	id, deduped, err := rt.store.RecordEvent(ctx, ev)
	if err != nil {
		rt.logger.Error("persistence: record event failed", "pane_id", seg.PaneID, "rule_id", d.RuleID, "error", err)
		return
	}
	if deduped {
		return
	}
	ev.ID = id
	rt.eventsPersisted.Add(1)

	if rt.bus != nil {
		rt.bus.PublishEvent(ev)
	}
}
