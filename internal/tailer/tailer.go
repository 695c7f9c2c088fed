// Package tailer implements TailerSupervisor, spec.md §4.4: the
// component that owns per-pane polling state and spawns concurrency-
// and budget-gated capture tasks. Grounded on g960059-agtmux's
// reconciler (internal/reconcile/reconciler.go) for the
// reconcile-against-registry shape, and target/executor.go for the
// bounded-concurrency task-spawning pattern.
package tailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardeck/wardeck/internal/cursor"
	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/registry"
)

// OVERFLOW_BACKPRESSURE_THRESHOLD_DEFAULT is the recommended default
// named in spec.md §4.4; callers should prefer Config.OverflowThreshold.
const OVERFLOW_BACKPRESSURE_THRESHOLD_DEFAULT = 5

// Outcome is the result of one capture attempt for one pane.
type Outcome int

const (
	OutcomeChanged Outcome = iota
	OutcomeNoChange
	OutcomeBackpressure
	OutcomeOverflowGapEmitted
	OutcomeNoCursor
	OutcomeChannelClosed
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "Changed"
	case OutcomeNoChange:
		return "NoChange"
	case OutcomeBackpressure:
		return "Backpressure"
	case OutcomeOverflowGapEmitted:
		return "OverflowGapEmitted"
	case OutcomeNoCursor:
		return "NoCursor"
	case OutcomeChannelClosed:
		return "ChannelClosed"
	default:
		return "Error"
	}
}

// PaneSource fetches a pane's current full-screen text snapshot. The
// tmux-backed implementation lives in internal/panesource.
type PaneSource interface {
	FetchText(ctx context.Context, paneID string) (string, error)
}

// Config bounds the adaptive polling interval and the supervisor's
// concurrency/backpressure behavior (spec.md §4.4).
type Config struct {
	MinInterval       time.Duration
	MaxInterval       time.Duration
	BackoffMultiplier float64
	OverflowThreshold int
	MaxConcurrent     int
	SendTimeout       time.Duration
	OverlapSize       int
}

// paneState is the supervisor's per-pane adaptive-polling bookkeeping.
type paneState struct {
	currentInterval        time.Duration
	lastPoll                time.Time
	hadChanges              bool
	consecutiveBackpressure int
	overflowGapPending      bool
}

// Supervisor owns every pane's PaneTailer state and cursor, and drives
// capture tasks onto a shared output channel.
type Supervisor struct {
	cfg Config
	reg *registry.Registry

	mu             sync.Mutex
	states         map[string]*paneState
	cursors        map[string]*cursor.Cursor
	capturingPanes map[string]bool

	sem      chan struct{}
	captureCh chan model.CapturedSegment
}

// New creates a supervisor bound to reg, emitting captured segments on
// a channel of the given size (spec.md's CAPTURE_CHANNEL_SIZE).
func New(cfg Config, reg *registry.Registry, channelSize int) *Supervisor {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Millisecond
	}
	if cfg.OverflowThreshold <= 0 {
		cfg.OverflowThreshold = OVERFLOW_BACKPRESSURE_THRESHOLD_DEFAULT
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Supervisor{
		cfg:            cfg,
		reg:            reg,
		states:         map[string]*paneState{},
		cursors:        map[string]*cursor.Cursor{},
		capturingPanes: map[string]bool{},
		sem:            make(chan struct{}, cfg.MaxConcurrent),
		captureCh:      make(chan model.CapturedSegment, channelSize),
	}
}

// Events returns the channel capture segments are delivered on.
func (s *Supervisor) Events() <-chan model.CapturedSegment { return s.captureCh }

// Reconcile adds PaneTailer state for newly observed panes and drops
// it for panes no longer observed, per a sync tick (spec.md §4.4).
func (s *Supervisor) Reconcile(observedPaneIDs []string, startSeq map[string]int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := make(map[string]bool, len(observedPaneIDs))
	for _, id := range observedPaneIDs {
		observed[id] = true
		if _, ok := s.states[id]; !ok {
			s.states[id] = &paneState{currentInterval: s.cfg.MinInterval, lastPoll: now}
			seq := startSeq[id]
			s.cursors[id] = cursor.New(id, seq)
		}
	}
	for id := range s.states {
		if !observed[id] {
			delete(s.states, id)
			delete(s.cursors, id)
			delete(s.capturingPanes, id)
		}
	}
}

// Ready returns the pane ids whose current_interval has elapsed since
// last_poll and which are not already mid-capture, for the scheduler
// to rank and select from.
func (s *Supervisor) Ready(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, st := range s.states {
		if s.capturingPanes[id] {
			continue
		}
		if now.Sub(st.lastPoll) >= st.currentInterval {
			out = append(out, id)
		}
	}
	return out
}

// beginCapture marks a pane as mid-capture; returns false if it was
// already capturing (spec.md's "never scheduled twice concurrently").
func (s *Supervisor) beginCapture(paneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturingPanes[paneID] {
		return false
	}
	s.capturingPanes[paneID] = true
	return true
}

func (s *Supervisor) endCapture(paneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.capturingPanes, paneID)
}

// RecordPoll applies spec.md's adaptive-interval rule and updates the
// per-pane state after any outcome.
func (s *Supervisor) RecordPoll(paneID string, hadChanges bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return
	}
	st.lastPoll = now
	st.hadChanges = hadChanges
	if hadChanges {
		st.currentInterval = s.cfg.MinInterval
	} else {
		next := time.Duration(float64(st.currentInterval) * s.cfg.BackoffMultiplier)
		if next > s.cfg.MaxInterval {
			next = s.cfg.MaxInterval
		}
		if next < s.cfg.MinInterval {
			next = s.cfg.MinInterval
		}
		st.currentInterval = next
	}
}

// SpawnCapture runs one capture attempt for paneID: acquire a
// concurrency permit, then either emit a pending overflow gap or fetch
// and diff the pane's text, per spec.md §4.4 steps 1-3.
func (s *Supervisor) SpawnCapture(ctx context.Context, paneID string, source PaneSource, now time.Time) Outcome {
	if !s.beginCapture(paneID) {
		return OutcomeNoCursor
	}
	defer s.endCapture(paneID)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return OutcomeError
	}

	s.mu.Lock()
	st, okState := s.states[paneID]
	cur, okCursor := s.cursors[paneID]
	s.mu.Unlock()
	if !okState || !okCursor {
		return OutcomeNoCursor
	}

	if st.overflowGapPending {
		seg := cur.EmitOverflowGap("backpressure_overflow", now)
		switch s.send(ctx, seg) {
		case sendOK:
			s.onOverflowGapEmitted(paneID, now)
			return OutcomeOverflowGapEmitted
		case sendTimedOut:
			s.onBackpressure(paneID, now)
			return OutcomeBackpressure
		default:
			return OutcomeChannelClosed
		}
	}

	text, err := source.FetchText(ctx, paneID)
	if err != nil {
		s.RecordPoll(paneID, false, now)
		return OutcomeError
	}

	entry, _ := s.reg.Get(paneID)
	seg := cur.CaptureSnapshot(text, s.cfg.OverlapSize, entry.InAltScreen, now)
	if seg == nil {
		s.RecordPoll(paneID, false, now)
		return OutcomeNoChange
	}
	switch s.send(ctx, *seg) {
	case sendOK:
		s.RecordPoll(paneID, true, now)
		s.mu.Lock()
		st.consecutiveBackpressure = 0
		s.mu.Unlock()
		return OutcomeChanged
	case sendTimedOut:
		s.onBackpressure(paneID, now)
		return OutcomeBackpressure
	default:
		return OutcomeChannelClosed
	}
}

// sendResult classifies one attempt to hand a segment to captureCh.
type sendResult int

const (
	sendOK sendResult = iota
	sendTimedOut
	sendCanceled
)

// send delivers seg to captureCh, bounded by SendTimeout. A consumer
// that's fallen behind blocks this send until the timeout fires, at
// which point the caller treats it as backpressure; there is no
// placeholder write to captureCh at any point, only the real segment.
func (s *Supervisor) send(ctx context.Context, seg model.CapturedSegment) sendResult {
	select {
	case s.captureCh <- seg:
		return sendOK
	case <-time.After(s.cfg.SendTimeout):
		return sendTimedOut
	case <-ctx.Done():
		return sendCanceled
	}
}

func (s *Supervisor) onBackpressure(paneID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return
	}
	st.consecutiveBackpressure++
	if st.consecutiveBackpressure >= s.cfg.OverflowThreshold {
		st.overflowGapPending = true
	}
	st.lastPoll = now
	st.hadChanges = false
}

func (s *Supervisor) onOverflowGapEmitted(paneID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return
	}
	st.overflowGapPending = false
	st.consecutiveBackpressure = 0
	st.lastPoll = now
}

// ConsecutiveBackpressure exposes a pane's current streak, for tests
// and health reporting.
func (s *Supervisor) ConsecutiveBackpressure(paneID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return 0
	}
	return st.consecutiveBackpressure
}

// OverflowGapPending reports whether paneID is waiting to emit a
// synthetic gap on its next successful reservation.
func (s *Supervisor) OverflowGapPending(paneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return false
	}
	return st.overflowGapPending
}

// CurrentInterval exposes a pane's adaptive interval, for tests.
func (s *Supervisor) CurrentInterval(paneID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[paneID]
	if !ok {
		return 0, fmt.Errorf("unknown pane id: %s", paneID)
	}
	return st.currentInterval, nil
}

// ResyncSeq realigns a pane's cursor to a storage-reported sequence
// after the persistence task observes a (pane_id, seq) conflict
// (spec.md §7 "Sequence conflict"). A no-op if the pane has no cursor,
// e.g. it closed between capture and persistence.
func (s *Supervisor) ResyncSeq(paneID string, storageSeq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[paneID]; ok {
		cur.ResyncSeq(storageSeq)
	}
}
