// Package panesource implements the tmux-backed PaneSource used by
// TailerSupervisor and ObservationRuntime's discovery task. Grounded
// on g960059-agtmux's internal/observer/tmux.go (list-panes parsing)
// and internal/target/executor.go (retryable command execution with
// backoff).
package panesource

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/tmuxfmt"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner shells out via os/exec.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Source is the tmux-backed PaneSource. It implements both
// tailer.PaneSource (FetchText) and the discovery-side ListPanes used
// by ObservationRuntime.
type Source struct {
	runner         Runner
	commandTimeout time.Duration
	retryBackoff   []time.Duration
}

// New creates a tmux Source with sensible retry defaults, grounded on
// the teacher's executor (bounded retries on read-only list/capture
// commands, never on mutating ones).
func New(commandTimeout time.Duration) *Source {
	return &Source{
		runner:         OSRunner{},
		commandTimeout: commandTimeout,
		retryBackoff:   []time.Duration{50 * time.Millisecond, 150 * time.Millisecond},
	}
}

// WithRunner overrides the command runner, for tests.
func (s *Source) WithRunner(r Runner) *Source {
	s.runner = r
	return s
}

func (s *Source) run(ctx context.Context, retryable bool, name string, args ...string) (string, error) {
	attempts := 1
	if retryable {
		attempts += len(s.retryBackoff)
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, s.commandTimeout)
		out, err := s.runner.Run(runCtx, name, args...)
		cancel()
		if err == nil {
			return string(out), nil
		}
		lastErr = fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, string(out))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.retryBackoff[attempt-1]):
			}
		}
	}
	return "", lastErr
}

// ListPanes discovers every tmux pane across every session, the
// PaneSource.list_panes of spec.md §4.5.
func (s *Source) ListPanes(ctx context.Context) ([]model.DiscoveredPane, error) {
	out, err := s.run(ctx, true, "tmux", "list-panes", "-a", "-F",
		tmuxfmt.Join("#{pane_id}", "#{session_name}", "#{window_id}", "#{window_name}", "#{pane_current_path}", "#{pane_title}"))
	if err != nil {
		return nil, fmt.Errorf("list panes: %w", err)
	}
	return parseListPanes(out)
}

func parseListPanes(output string) ([]model.DiscoveredPane, error) {
	var panes []model.DiscoveredPane
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		parts := tmuxfmt.SplitLine(line, 6)
		if len(parts) != 6 {
			return nil, fmt.Errorf("invalid tmux list-panes line: %q", line)
		}
		panes = append(panes, model.DiscoveredPane{
			PaneID:   parts[0],
			Domain:   parts[1],
			TabID:    parts[2],
			WindowID: parts[2],
			Title:    parts[5],
			CWD:      parts[4],
		})
		_ = parts[3] // window name, not currently surfaced on DiscoveredPane
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan list-panes output: %w", err)
	}
	return panes, nil
}

// FetchText captures a pane's full visible buffer text, satisfying
// tailer.PaneSource.
func (s *Source) FetchText(ctx context.Context, paneID string) (string, error) {
	out, err := s.run(ctx, true, "tmux", "capture-pane", "-p", "-J", "-t", paneID)
	if err != nil {
		return "", fmt.Errorf("capture pane %s: %w", paneID, err)
	}
	return out, nil
}

// AltScreenState reports whether a pane currently has its alternate
// screen buffer active, consulted by the runtime before each
// cursor.capture_snapshot call (spec.md §4.1, §4.4).
func (s *Source) AltScreenState(ctx context.Context, paneID string) (bool, error) {
	out, err := s.run(ctx, true, "tmux", "display-message", "-p", "-t", paneID, "#{alternate_on}")
	if err != nil {
		return false, fmt.Errorf("query alt screen state %s: %w", paneID, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return false, nil
	}
	return v != 0, nil
}
