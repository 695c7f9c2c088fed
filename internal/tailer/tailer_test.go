package tailer_test

import (
	"context"
	"testing"
	"time"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/registry"
	"github.com/wardeck/wardeck/internal/tailer"
)

type fixedSource struct{ text string }

func (f fixedSource) FetchText(ctx context.Context, paneID string) (string, error) {
	return f.text, nil
}

func newTestSupervisor(channelSize int) (*tailer.Supervisor, *registry.Registry) {
	reg := registry.New(registry.FilterConfig{})
	cfg := tailer.Config{
		MinInterval:       time.Millisecond,
		MaxInterval:       100 * time.Millisecond,
		BackoffMultiplier: 2,
		OverflowThreshold: 5,
		MaxConcurrent:     4,
		SendTimeout:       10 * time.Millisecond,
		OverlapSize:       8,
	}
	sup := tailer.New(cfg, reg, channelSize)
	return sup, reg
}

func TestOverflowGapScenario(t *testing.T) {
	// Scenario C — spec.md §8.
	sup, reg := newTestSupervisor(1)
	now := time.Now()
	reg.Diff([]model.DiscoveredPane{{PaneID: "%1"}}, now)
	sup.Reconcile([]string{"%1"}, nil, now)
	ctx := context.Background()

	// First capture fills the one-slot channel with a real delta and
	// is never drained, so every subsequent reservation attempt blocks
	// on a full channel until SendTimeout elapses.
	outcome := sup.SpawnCapture(ctx, "%1", fixedSource{text: "hello"}, now)
	if outcome != tailer.OutcomeChanged {
		t.Fatalf("expected baseline capture to succeed, got %v", outcome)
	}

	for i := 0; i < 5; i++ {
		outcome := sup.SpawnCapture(ctx, "%1", fixedSource{text: "hello world"}, now.Add(time.Duration(i+1)*time.Millisecond))
		if outcome != tailer.OutcomeBackpressure {
			t.Fatalf("attempt %d: expected Backpressure, got %v", i, outcome)
		}
	}
	if sup.ConsecutiveBackpressure("%1") != 5 {
		t.Fatalf("expected consecutive_backpressure=5, got %d", sup.ConsecutiveBackpressure("%1"))
	}
	if !sup.OverflowGapPending("%1") {
		t.Fatalf("expected overflow_gap_pending=true after threshold reached")
	}

	// Drain the channel, then the next attempt should emit the gap.
	<-sup.Events()
	outcome = sup.SpawnCapture(ctx, "%1", fixedSource{text: "hello world"}, now.Add(10*time.Millisecond))
	if outcome != tailer.OutcomeOverflowGapEmitted {
		t.Fatalf("expected OverflowGapEmitted, got %v", outcome)
	}
	if sup.ConsecutiveBackpressure("%1") != 0 {
		t.Fatalf("expected consecutive_backpressure reset to 0, got %d", sup.ConsecutiveBackpressure("%1"))
	}
	gap := <-sup.Events()
	if !gap.IsGap() || gap.GapReason != "backpressure_overflow" || gap.Content != "" {
		t.Fatalf("expected backpressure_overflow gap with empty content, got %+v", gap)
	}
}

func TestAdaptiveIntervalBacksOffOnNoChange(t *testing.T) {
	sup, reg := newTestSupervisor(8)
	now := time.Now()
	reg.Diff([]model.DiscoveredPane{{PaneID: "%1"}}, now)
	sup.Reconcile([]string{"%1"}, nil, now)

	src := fixedSource{text: "same"}
	ctx := context.Background()
	sup.SpawnCapture(ctx, "%1", src, now) // first capture: Changed (baseline)

	before, _ := sup.CurrentInterval("%1")
	outcome := sup.SpawnCapture(ctx, "%1", src, now.Add(5*time.Millisecond))
	if outcome != tailer.OutcomeNoChange {
		t.Fatalf("expected NoChange for steady text, got %v", outcome)
	}
	after, _ := sup.CurrentInterval("%1")
	if after <= before {
		t.Fatalf("expected interval to back off after no-change poll: before=%v after=%v", before, after)
	}
}

func TestAdaptiveIntervalResetsOnChange(t *testing.T) {
	sup, reg := newTestSupervisor(8)
	now := time.Now()
	reg.Diff([]model.DiscoveredPane{{PaneID: "%1"}}, now)
	sup.Reconcile([]string{"%1"}, nil, now)
	ctx := context.Background()

	src := fixedSource{text: "same"}
	sup.SpawnCapture(ctx, "%1", src, now)
	sup.SpawnCapture(ctx, "%1", src, now.Add(time.Millisecond))
	backedOff, _ := sup.CurrentInterval("%1")

	src2 := fixedSource{text: "same and more"}
	sup.SpawnCapture(ctx, "%1", src2, now.Add(2*time.Millisecond))
	reset, _ := sup.CurrentInterval("%1")
	if reset >= backedOff {
		t.Fatalf("expected interval to reset to min on change: backedOff=%v reset=%v", backedOff, reset)
	}
}

func TestReconcileDropsStateForUnobservedPanes(t *testing.T) {
	sup, reg := newTestSupervisor(8)
	now := time.Now()
	reg.Diff([]model.DiscoveredPane{{PaneID: "%1"}, {PaneID: "%2"}}, now)
	sup.Reconcile([]string{"%1", "%2"}, nil, now)

	sup.Reconcile([]string{"%1"}, nil, now.Add(time.Second))
	if _, err := sup.CurrentInterval("%2"); err == nil {
		t.Fatalf("expected %%2's state to be dropped after reconcile")
	}
	if _, err := sup.CurrentInterval("%1"); err != nil {
		t.Fatalf("expected %%1's state to survive reconcile: %v", err)
	}
}
