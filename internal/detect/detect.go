// Package detect defines Detector, the external collaborator
// ObservationRuntime's persistence task calls against each captured
// segment's content (spec.md §4.5). Detector is modeled as a
// pluggable boundary — detection logic is not specified beyond its
// input/output shape — so this package also ships a minimal
// reference rule-based implementation, grounded on g960059-agtmux's
// stateengine heuristics (regex-over-tail-buffer matching) but
// restated as independent rules rather than an agent-state machine.
package detect

import (
	"context"
	"regexp"
	"sync"

	"github.com/wardeck/wardeck/internal/model"
)

// TAIL_BUFFER_MAX_BYTES bounds the rolling context window rules can
// match across, so a detector that needs cross-segment context never
// grows without bound.
const TAIL_BUFFER_MAX_BYTES = 8192

// Context is a per-pane detection scratchpad: a bounded tail buffer
// carried across calls so a rule can match text split across two
// segments. The runtime clears it whenever the accompanying segment
// is a gap (spec.md §4.5).
type Context struct {
	mu   sync.Mutex
	tail []byte
}

// NewContext creates an empty detection context for one pane.
func NewContext() *Context { return &Context{} }

// ClearTail drops any buffered tail text, called by the runtime before
// detection runs over a gap segment.
func (c *Context) ClearTail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tail = nil
}

func (c *Context) appendAndWindow(content string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	combined := append(c.tail, content...)
	if len(combined) > TAIL_BUFFER_MAX_BYTES {
		combined = combined[len(combined)-TAIL_BUFFER_MAX_BYTES:]
	}
	c.tail = append([]byte(nil), combined...)
	return string(combined)
}

// Detector matches pane output content for operationally interesting
// patterns, returning zero or more Detections.
type Detector interface {
	DetectWithContext(ctx context.Context, content string, dctx *Context) ([]model.Detection, error)
}

// Rule is one regex-based detection rule for the reference Detector.
type Rule struct {
	RuleID     string
	AgentType  string
	EventType  string
	Severity   model.Severity
	Confidence float64
	Pattern    *regexp.Regexp
}

// RuleDetector is a minimal reference Detector: it matches each rule's
// pattern against the pane's rolling tail-buffered content.
type RuleDetector struct {
	rules []Rule
}

// NewRuleDetector creates a Detector from a static rule set.
func NewRuleDetector(rules []Rule) *RuleDetector {
	return &RuleDetector{rules: rules}
}

func (d *RuleDetector) DetectWithContext(ctx context.Context, content string, dctx *Context) ([]model.Detection, error) {
	window := content
	if dctx != nil {
		window = dctx.appendAndWindow(content)
	}

	var out []model.Detection
	for _, r := range d.rules {
		loc := r.Pattern.FindStringIndex(window)
		if loc == nil {
			continue
		}
		out = append(out, model.Detection{
			RuleID:      r.RuleID,
			AgentType:   r.AgentType,
			EventType:   r.EventType,
			Severity:    r.Severity,
			Confidence:  r.Confidence,
			MatchedText: window[loc[0]:loc[1]],
			Extracted:   map[string]any{},
			SpanStart:   loc[0],
			SpanEnd:     loc[1],
		})
	}
	return out, nil
}

var _ Detector = (*RuleDetector)(nil)
