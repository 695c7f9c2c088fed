// Package cursor implements PaneCursor, the per-pane delta-extraction
// state machine described in spec.md §4.1. It is grounded on the
// overlap/suffix-splice algorithm in wa-core's tailer.rs, written in an
// idiom of small structs, explicit constructors, no hidden globals.
package cursor

import (
	"strings"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// Cursor holds the per-pane ingestion state described in spec.md §3
// "Pane cursor".
type Cursor struct {
	PaneID      string
	nextSeq     int64
	lastTail    string
	inAltScreen bool
	inGap       bool
}

// New creates a cursor for a pane that becomes observed, resuming
// sequence numbering from startSeq (spec.md §3 lifecycle: "sequence
// continues from max persisted seq + 1 when a restart is detected").
func New(paneID string, startSeq int64) *Cursor {
	return &Cursor{PaneID: paneID, nextSeq: startSeq}
}

// NextSeq returns the sequence number the cursor will assign to the
// next emitted segment.
func (c *Cursor) NextSeq() int64 { return c.nextSeq }

// InAltScreen reports the cursor's last-known alt-screen state.
func (c *Cursor) InAltScreen() bool { return c.inAltScreen }

// InGap reports whether a gap has been emitted with no delta since.
func (c *Cursor) InGap() bool { return c.inGap }

func (c *Cursor) take(kind model.SegmentKind, gapReason, content string, now time.Time) model.CapturedSegment {
	seg := model.CapturedSegment{
		PaneID:     c.PaneID,
		Seq:        c.nextSeq,
		CapturedAt: now,
		Kind:       kind,
		GapReason:  gapReason,
		Content:    content,
	}
	c.nextSeq++
	return seg
}

// CaptureSnapshot implements spec.md §4.1's algorithm. Given a full
// text snapshot of a pane, an overlap window size, and the registry's
// current alt-screen flag, it returns at most one segment: nothing
// (nil) when nothing changed, a Delta with the new suffix, or a Gap
// marking a discontinuity (overlap lost, or an alt-screen transition).
func (c *Cursor) CaptureSnapshot(snapshot string, overlapSize int, externalAltScreen bool, now time.Time) *model.CapturedSegment {
	if externalAltScreen != c.inAltScreen {
		reason := "alt_screen_entered"
		if c.inAltScreen && !externalAltScreen {
			reason = "alt_screen_exited"
		}
		c.inAltScreen = externalAltScreen
		c.lastTail = tail(snapshot, overlapSize)
		c.inGap = true
		seg := c.take(model.SegmentGap, reason, "", now)
		return &seg
	}

	if c.lastTail == "" {
		c.lastTail = tail(snapshot, overlapSize)
		if snapshot == "" {
			return nil
		}
		c.inGap = false
		seg := c.take(model.SegmentDelta, "", snapshot, now)
		return &seg
	}

	idx := strings.Index(snapshot, c.lastTail)
	if idx < 0 {
		// The trailing window can't be located anywhere in the new
		// snapshot: a discontinuity (scrollback truncation, clear,
		// full-screen redraw). Rebaseline on the next cycle.
		c.lastTail = ""
		c.inGap = true
		seg := c.take(model.SegmentGap, "overlap_lost", "", now)
		return &seg
	}

	splicePoint := idx + len(c.lastTail)
	if splicePoint >= len(snapshot) {
		// Exact overlap, no new content.
		c.lastTail = tail(snapshot, overlapSize)
		return nil
	}
	delta := snapshot[splicePoint:]
	c.lastTail = tail(snapshot, overlapSize)
	c.inGap = false
	seg := c.take(model.SegmentDelta, "", delta, now)
	return &seg
}

// EmitOverflowGap is the scheduler-driven escape valve used by the
// tailer supervisor under sustained backpressure (spec.md §4.1 step 5).
func (c *Cursor) EmitOverflowGap(reason string, now time.Time) model.CapturedSegment {
	c.inGap = true
	return c.take(model.SegmentGap, reason, "", now)
}

// ResyncSeq realigns nextSeq to match a storage-reported value after
// the persistence writer observes a sequence conflict (spec.md §4.1).
func (c *Cursor) ResyncSeq(storageSeq int64) {
	if storageSeq >= c.nextSeq {
		c.nextSeq = storageSeq + 1
	}
}

// ClearTail drops the overlap window without touching sequence state;
// the runtime calls this before re-running detection over a gap
// segment (spec.md §4.5 persistence task).
func (c *Cursor) ClearTail() {
	c.lastTail = ""
}

func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
