// Package polling implements the generic external-source polling
// template of spec.md §4.9: a cursor carrying a server-side delivery
// marker, a fetch/apply loop with recoverable-error backoff, and a
// terminal outcome record on fatal error or shutdown. Grounded on
// wardeck's own tailer.Supervisor adaptive-interval loop (internal/tailer),
// generalized from tmux pane capture to an arbitrary fetch(offset) source.
package polling

import (
	"context"
	"time"
)

// Cursor is a connector's position in its upstream source: an
// optional server-side delivery marker (e.g. a Telegram update_id)
// plus poll timing bookkeeping.
type Cursor struct {
	Offset        *int64
	LastPollAt    time.Time
	LastSuccessAt time.Time
}

// FetchOutcome classifies one fetch attempt (spec.md §4.9).
type FetchOutcome int

const (
	FetchSuccess FetchOutcome = iota
	FetchRecoverable
	FetchFatal
)

// FetchResult is what a connector's Fetch function returns.
type FetchResult[Item any] struct {
	Outcome FetchOutcome
	Items   []Item
	Message string
}

// Recoverable builds a FetchResult reporting a transient failure.
func Recoverable[Item any](msg string) FetchResult[Item] {
	return FetchResult[Item]{Outcome: FetchRecoverable, Message: msg}
}

// Fatal builds a FetchResult reporting an unrecoverable failure.
func Fatal[Item any](msg string) FetchResult[Item] {
	return FetchResult[Item]{Outcome: FetchFatal, Message: msg}
}

// Success builds a FetchResult carrying fetched items.
func Success[Item any](items []Item) FetchResult[Item] {
	return FetchResult[Item]{Outcome: FetchSuccess, Items: items}
}

// Fetch retrieves the next batch of items at the cursor's offset.
type Fetch[Item any] func(ctx context.Context, offset *int64) FetchResult[Item]

// Apply consumes fetched items and advances the cursor (e.g. to
// max(update_id)+1); it is only called after a successful fetch.
type Apply[Item any] func(items []Item, cursor *Cursor) error

// StopReason names why a Supervisor's loop terminated.
type StopReason string

const (
	StopShutdown    StopReason = "shutdown"
	StopFatal       StopReason = "fatal"
	StopApplyFailed StopReason = "apply_failed"
)

// Outcome is the terminal record produced when a Supervisor's loop exits.
type Outcome struct {
	Reason       StopReason
	Message      string
	FetchCount   int64
	RecoverCount int64
}

// BackoffPolicy controls the delay between retries after a recoverable
// fetch error.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffPolicy mirrors the tailer's own adaptive-interval
// defaults (internal/tailer.Config).
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: 250 * time.Millisecond, Max: 30 * time.Second, Multiplier: 1.6}
}

func (p BackoffPolicy) next(current time.Duration) time.Duration {
	if current <= 0 {
		current = p.Initial
	}
	next := time.Duration(float64(current) * p.Multiplier)
	if next > p.Max {
		next = p.Max
	}
	return next
}

// Supervisor drives a Fetch/Apply loop for one external-source
// connector until shutdown, a fatal fetch result, or an Apply error.
type Supervisor[Item any] struct {
	fetch   Fetch[Item]
	apply   Apply[Item]
	backoff BackoffPolicy
	pollGap time.Duration
	sleep   func(ctx context.Context, d time.Duration) bool
}

// NewSupervisor creates a Supervisor. pollGap is the delay between
// successful polls; backoff governs the delay after recoverable errors.
func NewSupervisor[Item any](fetch Fetch[Item], apply Apply[Item], pollGap time.Duration, backoff BackoffPolicy) *Supervisor[Item] {
	return &Supervisor[Item]{fetch: fetch, apply: apply, pollGap: pollGap, backoff: backoff, sleep: realSleep}
}

func realSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run drives the fetch/apply loop from cursor's current position until
// ctx is canceled (StopShutdown), a Fetch reports Fatal (StopFatal),
// or Apply returns an error (StopApplyFailed).
func (s *Supervisor[Item]) Run(ctx context.Context, cursor *Cursor) Outcome {
	var outcome Outcome
	currentBackoff := s.backoff.Initial

	for {
		if ctx.Err() != nil {
			outcome.Reason = StopShutdown
			return outcome
		}

		cursor.LastPollAt = time.Now()
		result := s.fetch(ctx, cursor.Offset)
		outcome.FetchCount++

		switch result.Outcome {
		case FetchFatal:
			outcome.Reason = StopFatal
			outcome.Message = result.Message
			return outcome

		case FetchRecoverable:
			outcome.RecoverCount++
			if !s.sleep(ctx, currentBackoff) {
				outcome.Reason = StopShutdown
				return outcome
			}
			currentBackoff = s.backoff.next(currentBackoff)
			continue

		case FetchSuccess:
			currentBackoff = s.backoff.Initial
			if len(result.Items) > 0 {
				if err := s.apply(result.Items, cursor); err != nil {
					outcome.Reason = StopApplyFailed
					outcome.Message = err.Error()
					return outcome
				}
				cursor.LastSuccessAt = time.Now()
			}
			if !s.sleep(ctx, s.pollGap) {
				outcome.Reason = StopShutdown
				return outcome
			}
		}
	}
}
