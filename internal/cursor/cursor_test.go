package cursor_test

import (
	"testing"
	"time"

	"github.com/wardeck/wardeck/internal/cursor"
	"github.com/wardeck/wardeck/internal/model"
)

func TestCaptureSnapshotOverlapDelta(t *testing.T) {
	// Scenario A — spec.md §8.
	c := cursor.New("%1", 0)
	now := time.Now()

	seg := c.CaptureSnapshot("hello", 8, false, now)
	if seg == nil || seg.Seq != 0 || seg.Kind != model.SegmentDelta || seg.Content != "hello" {
		t.Fatalf("step1: got %+v", seg)
	}

	seg = c.CaptureSnapshot("hello world", 8, false, now)
	if seg == nil || seg.Seq != 1 || seg.Content != " world" {
		t.Fatalf("step2: got %+v", seg)
	}

	seg = c.CaptureSnapshot("hello world!!", 8, false, now)
	if seg == nil || seg.Seq != 2 || seg.Content != "!!" {
		t.Fatalf("step3: got %+v", seg)
	}
}

func TestCaptureSnapshotGapOnOverlapLoss(t *testing.T) {
	// Scenario B — spec.md §8.
	c := cursor.New("%1", 0)
	now := time.Now()

	seg := c.CaptureSnapshot("abcdefgh", 8, false, now)
	if seg == nil || seg.Seq != 0 || seg.Content != "abcdefgh" {
		t.Fatalf("step1: got %+v", seg)
	}

	seg = c.CaptureSnapshot("XYZ", 8, false, now)
	if seg == nil || seg.Seq != 1 || !seg.IsGap() || seg.GapReason != "overlap_lost" {
		t.Fatalf("step2: expected overlap_lost gap, got %+v", seg)
	}

	seg = c.CaptureSnapshot("XYZ", 8, false, now)
	if seg == nil || seg.Seq != 2 || seg.Kind != model.SegmentDelta || seg.Content != "XYZ" {
		t.Fatalf("step3: expected fresh baseline delta, got %+v", seg)
	}
}

func TestCaptureSnapshotNoChangeReturnsNil(t *testing.T) {
	c := cursor.New("%1", 0)
	now := time.Now()
	c.CaptureSnapshot("steady state", 8, false, now)
	seg := c.CaptureSnapshot("steady state", 8, false, now)
	if seg != nil {
		t.Fatalf("expected nil for unchanged snapshot, got %+v", seg)
	}
}

func TestCaptureSnapshotAltScreenTransitionEmitsGapNoDelta(t *testing.T) {
	c := cursor.New("%1", 0)
	now := time.Now()
	c.CaptureSnapshot("hello", 8, false, now)

	seg := c.CaptureSnapshot("some full screen ui content", 8, true, now)
	if seg == nil || !seg.IsGap() || seg.GapReason != "alt_screen_entered" {
		t.Fatalf("expected alt_screen_entered gap, got %+v", seg)
	}
	if !c.InAltScreen() {
		t.Fatalf("expected cursor to record alt screen state")
	}

	seg = c.CaptureSnapshot("normal shell prompt", 8, false, now)
	if seg == nil || !seg.IsGap() || seg.GapReason != "alt_screen_exited" {
		t.Fatalf("expected alt_screen_exited gap, got %+v", seg)
	}
}

func TestSequenceMonotonicity(t *testing.T) {
	c := cursor.New("%1", 0)
	now := time.Now()
	snapshots := []string{"a", "ab", "abc", "abcd", "abcde"}
	var lastSeq int64 = -1
	for _, s := range snapshots {
		seg := c.CaptureSnapshot(s, 2, false, now)
		if seg == nil {
			continue
		}
		if seg.Seq <= lastSeq {
			t.Fatalf("sequence not strictly increasing: %d after %d", seg.Seq, lastSeq)
		}
		lastSeq = seg.Seq
	}
}

func TestEmitOverflowGapAdvancesSeqAndSetsInGap(t *testing.T) {
	c := cursor.New("%1", 5)
	seg := c.EmitOverflowGap("backpressure_overflow", time.Now())
	if seg.Seq != 5 || seg.GapReason != "backpressure_overflow" || seg.Content != "" {
		t.Fatalf("unexpected overflow gap: %+v", seg)
	}
	if c.NextSeq() != 6 || !c.InGap() {
		t.Fatalf("expected nextSeq=6 and inGap=true, got nextSeq=%d inGap=%v", c.NextSeq(), c.InGap())
	}
}

func TestResyncSeqRealignsForward(t *testing.T) {
	c := cursor.New("%1", 3)
	c.ResyncSeq(10)
	if c.NextSeq() != 11 {
		t.Fatalf("expected resync to 11, got %d", c.NextSeq())
	}
	c.ResyncSeq(2) // storage seq behind cursor: no-op
	if c.NextSeq() != 11 {
		t.Fatalf("resync should not move backwards, got %d", c.NextSeq())
	}
}
