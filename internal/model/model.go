// Package model holds the data types shared across the observation core:
// captured segments, pane registry entries, detections, stored events,
// recording frames and retention tiers. See spec.md §3.
package model

import "time"

// SegmentKind distinguishes a real content delta from a synthesized gap.
type SegmentKind string

const (
	SegmentDelta SegmentKind = "delta"
	SegmentGap   SegmentKind = "gap"
)

// CapturedSegment is a unit of pane output produced by the tailer.
type CapturedSegment struct {
	PaneID     string
	Seq        int64
	CapturedAt time.Time
	Kind       SegmentKind
	GapReason  string
	Content    string
}

// IsGap reports whether the segment carries no content, only a reason.
func (s CapturedSegment) IsGap() bool {
	return s.Kind == SegmentGap
}

// Observation is the filter-policy verdict attached to a discovered pane.
type Observation string

const (
	ObservationObserved Observation = "observed"
	ObservationIgnored  Observation = "ignored"
)

// PriorityOverride is a runtime-set scheduling priority with optional TTL.
type PriorityOverride struct {
	Priority  uint32
	SetAt     time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the override's TTL has elapsed as of now.
func (o PriorityOverride) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// PaneEntry is the registry's authoritative record for one observed pane.
type PaneEntry struct {
	PaneID          string
	TabID           string
	WindowID        string
	Title           string
	CWD             string
	Domain          string
	Observation      Observation
	IgnoreReason     string
	Generation       int64
	InAltScreen      bool
	PriorityOverride *PriorityOverride
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
}

// BasePriority returns the configured (non-override) priority for a pane;
// callers combine this with any active PriorityOverride.
type DiscoveredPane struct {
	PaneID   string
	TabID    string
	WindowID string
	Title    string
	CWD      string
	Domain   string
}

// RegistryDiff is the result of comparing a discovery snapshot to the
// registry's current set of panes.
type RegistryDiff struct {
	NewPanes       []string
	ClosedPanes    []string
	NewGenerations []string
}

// Severity classifies a detection's operational importance.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Detection is a single pattern match surfaced by the external Detector.
type Detection struct {
	RuleID      string
	AgentType   string
	EventType   string
	Severity    Severity
	Confidence  float64
	MatchedText string
	Extracted   map[string]any
	SpanStart   int
	SpanEnd     int
}

// StoredEvent augments a Detection with persistence and dedupe metadata.
type StoredEvent struct {
	ID          int64
	Detection   Detection
	PaneID      string
	DetectedAt  time.Time
	SegmentID   int64
	DedupeKey   string
	Handled     bool
	HandledBy   string
	HandledAt   *time.Time
}

// DedupeBucketMs is the bucket width used to collapse bursts of identical
// detections (spec.md §3 "Stored event").
const DedupeBucketMs = 5 * 60 * 1000

// DedupeKey derives the identity key of a detection salted with a
// 5-minute bucket of detectedAt, so repeated identical detections within
// the same bucket collapse to one stored event.
func DedupeKey(ruleID, paneID, paneUUID, eventType string, detectedAt time.Time) string {
	bucket := detectedAt.UnixMilli() / DedupeBucketMs
	return ruleIDBucketKey(ruleID, paneID, paneUUID, eventType, bucket)
}

func ruleIDBucketKey(ruleID, paneID, paneUUID, eventType string, bucket int64) string {
	return ruleID + ":" + paneID + ":" + paneUUID + ":" + eventType + ":" + itoa(bucket)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RetentionTier is a predicate (severity/event-type/handled) plus a
// retention-days value applied to events during cleanup.
type RetentionTier struct {
	Name          string
	RetentionDays uint32
	Severities    []string
	EventTypes    []string
	Handled       *bool
}

// KeepsForever reports whether this tier's retention is infinite.
func (t RetentionTier) KeepsForever() bool {
	return t.RetentionDays == 0
}

// CleanupTableSummary is the per-table line of a cleanup plan.
type CleanupTableSummary struct {
	Table         string
	EligibleRows  int64
	DeletedRows   int64
	RetentionDays uint32
}

// CleanupPlan is the dry-run preview or applied result of a cleanup pass.
type CleanupPlan struct {
	Tables        []CleanupTableSummary
	TotalEligible int64
	TotalDeleted  int64
	DryRun        bool
}

// IPCScope is a permission bucket associated with an IPC auth token.
type IPCScope string

const (
	ScopeRead  IPCScope = "read"
	ScopeWrite IPCScope = "write"
	ScopeAll   IPCScope = "all"
)

// HasScope reports whether a token's configured scopes satisfy a request
// that requires `required`.
func HasScope(granted []IPCScope, required IPCScope) bool {
	for _, g := range granted {
		if g == ScopeAll || g == required {
			return true
		}
	}
	return false
}

// AuthToken is a configured IPC credential.
type AuthToken struct {
	Token     string
	Scopes    []IPCScope
	ExpiresAt *time.Time
}

// Expired reports whether the token's TTL has elapsed as of now.
func (t AuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// FrameType is the single-byte tag in a recording frame header (spec.md §3).
type FrameType uint8

const (
	FrameOutput FrameType = 1
	FrameResize FrameType = 2
	FrameEvent  FrameType = 3
	FrameMarker FrameType = 4
	FrameInput  FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case FrameOutput:
		return "output"
	case FrameResize:
		return "resize"
	case FrameEvent:
		return "event"
	case FrameMarker:
		return "marker"
	case FrameInput:
		return "input"
	default:
		return "unknown"
	}
}

// FrameHeaderLen is the fixed size, in bytes, of a recording frame header.
const FrameHeaderLen = 14

// HealthSnapshot is the process-global immutable runtime liveness record
// published at ~30s cadence (spec.md §6).
type HealthSnapshot struct {
	Timestamp               time.Time
	ObservedPanes           int
	CaptureQueueDepth       int
	WriteQueueDepth         int
	LastSeqByPane           map[string]int64
	Warnings                []string
	IngestLagAvgMs          float64
	IngestLagMaxMs          float64
	DBWritable              bool
	DBLastWriteAt           *time.Time
	PanePriorityOverrides   []PanePriorityView
	Scheduler               *SchedulerSnapshot
	BackpressureTier        string
	LastActivityByPane      map[string]time.Time
	RestartCount            int
	LastCrashAt             *time.Time
	ConsecutiveCrashes      int
	CurrentBackoffMs        int64
	InCrashLoop             bool
}

// PanePriorityView is the read-only projection of a pane's active
// priority override, for health reporting.
type PanePriorityView struct {
	PaneID    string
	Priority  uint32
	ExpiresAt *time.Time
}

// SchedulerSnapshot exports the capture scheduler's budget state for
// health reporting (spec.md §4.3).
type SchedulerSnapshot struct {
	BudgetActive          bool
	RemainingCaptures     int64
	RemainingBytes        int64
	GlobalRateLimited     int64
	ThrottleEvents        int64
	TrackedPanes          int
}

// ShutdownSummary is produced when the runtime finishes a clean or
// timed-out shutdown (spec.md §4.5).
type ShutdownSummary struct {
	Clean          bool
	FinalSeqByPane map[string]int64
	SegmentsPersisted int64
	EventsPersisted   int64
}
