// Package scheduler implements CaptureScheduler, the budget and
// priority-ordered pane selector described in spec.md §4.3. Grounded
// on g960059-agtmux's reconciler tick loop for the fixed-window
// refill shape, generalized to the two independent capture/byte
// budgets the spec requires. A fixed 1-second window was chosen over
// golang.org/x/time/rate's smooth token-bucket refill because the
// spec's "window elapses, tokens reset to max" semantics are not a
// continuous refill (see DESIGN.md).
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// Budget configures the two independent per-second rate limits.
// Zero means unlimited.
type Budget struct {
	MaxCapturesPerSec uint32
	MaxBytesPerSec    uint64
}

// Candidate is a pane eligible for capture this tick, pre-sorted by
// the caller on (Priority, PaneID).
type Candidate struct {
	PaneID   string
	Priority uint32
}

type paneTracker struct {
	windowStart time.Time
	bytes       uint64
}

// Scheduler enforces CaptureScheduler's two fixed-window budgets and
// selects which ready panes get a capture slot this tick.
type Scheduler struct {
	mu sync.Mutex

	budget Budget

	captureWindowStart time.Time
	remainingCaptures  int64

	byteWindowStart time.Time
	remainingBytes  int64

	globalRateLimited int64
	throttleEvents    int64

	paneTrackers map[string]*paneTracker
}

// New creates a scheduler with the given initial budget.
func New(budget Budget) *Scheduler {
	return &Scheduler{
		budget:       budget,
		paneTrackers: map[string]*paneTracker{},
	}
}

func (s *Scheduler) refillLocked(now time.Time) {
	if s.captureWindowStart.IsZero() || now.Sub(s.captureWindowStart) >= time.Second {
		s.captureWindowStart = now
		s.remainingCaptures = int64(s.budget.MaxCapturesPerSec)
	}
	if s.byteWindowStart.IsZero() || now.Sub(s.byteWindowStart) >= time.Second {
		s.byteWindowStart = now
		s.remainingBytes = int64(s.budget.MaxBytesPerSec)
	}
}

// SelectPanes returns the first min(permits, remaining_capture_tokens)
// panes from ready (assumed pre-sorted on (priority, pane_id)) and
// debits the global capture budget by that count. When the configured
// capture budget is 0 (unlimited), all permits are honored without
// debiting. When nothing can be scheduled under an active rate limit,
// the throttle counters are incremented.
func (s *Scheduler) SelectPanes(ready []Candidate, permits int, now time.Time) []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refillLocked(now)

	if permits <= 0 || len(ready) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(ready))
	copy(sorted, ready)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].PaneID < sorted[j].PaneID
	})

	n := permits
	if s.budget.MaxCapturesPerSec > 0 {
		if int64(n) > s.remainingCaptures {
			n = int(s.remainingCaptures)
		}
	}
	if n <= 0 {
		s.globalRateLimited++
		s.throttleEvents++
		return nil
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	if s.budget.MaxCapturesPerSec > 0 {
		s.remainingCaptures -= int64(n)
	}
	return sorted[:n]
}

// RecordCapture debits the global byte budget (saturating at zero) and
// updates the per-pane sliding-window byte tracker.
func (s *Scheduler) RecordCapture(paneID string, bytes uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refillLocked(now)

	if s.budget.MaxBytesPerSec > 0 {
		s.remainingBytes -= int64(bytes)
		if s.remainingBytes < 0 {
			s.remainingBytes = 0
		}
	}

	t, ok := s.paneTrackers[paneID]
	if !ok || now.Sub(t.windowStart) >= time.Second {
		t = &paneTracker{windowStart: now}
		s.paneTrackers[paneID] = t
	}
	t.bytes += bytes
}

// IsByteBudgetExhausted reports whether the configured byte budget is
// active and fully spent for the current window.
func (s *Scheduler) IsByteBudgetExhausted(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refillLocked(now)
	return s.budget.MaxBytesPerSec > 0 && s.remainingBytes <= 0
}

// UpdateBudget hot-reloads the configured maxima; the window in
// progress drains with whatever remaining tokens it already has.
func (s *Scheduler) UpdateBudget(budget Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = budget
}

// Snapshot exports the scheduler's current budget state for health
// reporting (spec.md §6).
func (s *Scheduler) Snapshot(now time.Time) model.SchedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refillLocked(now)

	tracked := 0
	for _, t := range s.paneTrackers {
		if now.Sub(t.windowStart) < time.Second {
			tracked++
		}
	}

	return model.SchedulerSnapshot{
		BudgetActive:      s.budget.MaxCapturesPerSec > 0 || s.budget.MaxBytesPerSec > 0,
		RemainingCaptures: s.remainingCaptures,
		RemainingBytes:    s.remainingBytes,
		GlobalRateLimited: s.globalRateLimited,
		ThrottleEvents:    s.throttleEvents,
		TrackedPanes:      tracked,
	}
}
