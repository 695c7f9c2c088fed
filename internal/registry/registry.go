// Package registry implements PaneRegistry, the authoritative set of
// observed panes described in spec.md §4.2. Grounded on
// g960059-agtmux's observer/registry-adjacent patterns (a single
// coarse lock over a map, per spec.md §9 "Ownership of cursors and
// registry").
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// ErrUnknownPane is returned by operations addressed to a pane id the
// registry has never seen.
var ErrUnknownPane = errors.New("unknown pane id")

// FilterConfig decides Observed vs Ignored for a newly discovered pane.
// Empty slices mean "no restriction" for that dimension.
type FilterConfig struct {
	AllowDomains   []string
	DenyTitleGlobs []string
	DenyCWDGlobs   []string
}

func (f FilterConfig) classify(d model.DiscoveredPane) (model.Observation, string) {
	if len(f.AllowDomains) > 0 && !contains(f.AllowDomains, d.Domain) {
		return model.ObservationIgnored, "domain_not_allowed"
	}
	for _, g := range f.DenyTitleGlobs {
		if matchGlob(g, d.Title) {
			return model.ObservationIgnored, "title_denied"
		}
	}
	for _, g := range f.DenyCWDGlobs {
		if matchGlob(g, d.CWD) {
			return model.ObservationIgnored, "cwd_denied"
		}
	}
	return model.ObservationObserved, ""
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func matchGlob(pattern, value string) bool {
	ok, err := filepath.Match(pattern, value)
	return err == nil && ok
}

// Registry holds the authoritative, observable set of panes.
type Registry struct {
	mu                sync.RWMutex
	filter            FilterConfig
	panes             map[string]*model.PaneEntry
	closedGenerations map[string]int64
}

// New creates an empty registry with the given filter policy.
func New(filter FilterConfig) *Registry {
	return &Registry{
		filter:            filter,
		panes:             map[string]*model.PaneEntry{},
		closedGenerations: map[string]int64{},
	}
}

// Diff compares a fresh discovery snapshot against the registry's
// current set, applying the filter policy to new panes, detecting
// generation bumps on reused ids, and returning the three disjoint
// id lists spec.md §4.2 describes.
func (r *Registry) Diff(discovered []model.DiscoveredPane, now time.Time) model.RegistryDiff {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(discovered))
	var diff model.RegistryDiff

	for _, d := range discovered {
		seen[d.PaneID] = true
		if existing, ok := r.panes[d.PaneID]; ok {
			existing.Title = d.Title
			existing.CWD = d.CWD
			existing.Domain = d.Domain
			existing.WindowID = d.WindowID
			existing.TabID = d.TabID
			existing.LastSeenAt = now
			continue
		}

		obs, reason := r.filter.classify(d)
		gen := int64(1)
		if prior, wasClosed := r.closedGenerations[d.PaneID]; wasClosed {
			gen = prior + 1
			diff.NewGenerations = append(diff.NewGenerations, d.PaneID)
		}
		r.panes[d.PaneID] = &model.PaneEntry{
			PaneID:       d.PaneID,
			TabID:        d.TabID,
			WindowID:     d.WindowID,
			Title:        d.Title,
			CWD:          d.CWD,
			Domain:       d.Domain,
			Observation:  obs,
			IgnoreReason: reason,
			Generation:   gen,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		}
		diff.NewPanes = append(diff.NewPanes, d.PaneID)
	}

	for id, entry := range r.panes {
		if !seen[id] {
			diff.ClosedPanes = append(diff.ClosedPanes, id)
			r.closedGenerations[id] = entry.Generation
			delete(r.panes, id)
		}
	}

	return diff
}

// Get returns a copy of the current entry for a pane, if known.
func (r *Registry) Get(paneID string) (model.PaneEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.panes[paneID]
	if !ok {
		return model.PaneEntry{}, false
	}
	return *e, true
}

// Observed returns the subset of known panes with Observation==Observed.
func (r *Registry) Observed() []model.PaneEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PaneEntry, 0, len(r.panes))
	for _, e := range r.panes {
		if e.Observation == model.ObservationObserved {
			out = append(out, *e)
		}
	}
	return out
}

// SetAltScreen records the external alt-screen flag for a pane.
func (r *Registry) SetAltScreen(paneID string, inAlt bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.panes[paneID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPane, paneID)
	}
	e.InAltScreen = inAlt
	return nil
}

// SetPriorityOverride attaches a runtime scheduling priority override,
// optionally expiring after ttl (spec.md §4.2).
func (r *Registry) SetPriorityOverride(paneID string, priority uint32, now time.Time, ttl *time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.panes[paneID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPane, paneID)
	}
	override := &model.PriorityOverride{Priority: priority, SetAt: now}
	if ttl != nil {
		exp := now.Add(*ttl)
		override.ExpiresAt = &exp
	}
	e.PriorityOverride = override
	return nil
}

// ClearPriorityOverride removes any active override on a pane.
func (r *Registry) ClearPriorityOverride(paneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.panes[paneID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPane, paneID)
	}
	e.PriorityOverride = nil
	return nil
}

// PurgeExpiredPriorityOverrides clears any override whose TTL has
// elapsed as of now; called before each scheduling tick (spec.md §4.2).
func (r *Registry) PurgeExpiredPriorityOverrides(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.panes {
		if e.PriorityOverride != nil && e.PriorityOverride.Expired(now) {
			e.PriorityOverride = nil
		}
	}
}

// EffectivePriority combines a base priority (from config rules) with
// any active override, lower always winning precedence-wise.
func (r *Registry) EffectivePriority(paneID string, base uint32) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.panes[paneID]
	if !ok || e.PriorityOverride == nil {
		return base
	}
	return e.PriorityOverride.Priority
}

// PriorityOverrideViews lists every pane with a currently active
// override, for health reporting (spec.md §6).
func (r *Registry) PriorityOverrideViews() []model.PanePriorityView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.PanePriorityView
	for id, e := range r.panes {
		if e.PriorityOverride != nil {
			out = append(out, model.PanePriorityView{
				PaneID:    id,
				Priority:  e.PriorityOverride.Priority,
				ExpiresAt: e.PriorityOverride.ExpiresAt,
			})
		}
	}
	return out
}
