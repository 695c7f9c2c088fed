// Package runtime implements ObservationRuntime, the orchestrator that
// owns the four periodic tasks described in spec.md §4.5 — discovery,
// capture, persistence, maintenance — and wires together registry,
// scheduler, tailer, storage, detect and eventbus. Follows a daemon
// run-loop shape: a handful of goroutines driven by their own tickers,
// a shutdown signal polled at task boundaries, and a bounded join
// timeout on stop.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wardeck/wardeck/internal/cleanup"
	"github.com/wardeck/wardeck/internal/config"
	"github.com/wardeck/wardeck/internal/detect"
	"github.com/wardeck/wardeck/internal/eventbus"
	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/registry"
	"github.com/wardeck/wardeck/internal/scheduler"
	"github.com/wardeck/wardeck/internal/storage"
	"github.com/wardeck/wardeck/internal/tailer"
)

// DefaultBasePriority is the uniform scheduling priority assigned to a
// pane with no active PriorityOverride. The spec names a priority
// override mechanism but no per-pane base-priority configuration
// surface, so every observed pane starts at the same base and only
// diverges via SetPanePriority.
const DefaultBasePriority uint32 = 100

// PaneSource is everything the runtime's discovery and capture tasks
// need from a terminal-multiplexer backend. internal/panesource.Source
// satisfies this.
type PaneSource interface {
	ListPanes(ctx context.Context) ([]model.DiscoveredPane, error)
	FetchText(ctx context.Context, paneID string) (string, error)
	AltScreenState(ctx context.Context, paneID string) (bool, error)
}

// SegmentRouter optionally receives every captured segment after it is
// persisted, e.g. to append it to an active recording. A nil router
// is fine; Route is only called when non-nil.
type SegmentRouter interface {
	Route(seg model.CapturedSegment)
}

// Runtime is ObservationRuntime: it owns no state of its own beyond
// bookkeeping for health/shutdown reporting, deferring all durable
// and scheduling state to the collaborators it's constructed with.
type Runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	reg      *registry.Registry
	sched    *scheduler.Scheduler
	tail     *tailer.Supervisor
	store    storage.Storage
	source   PaneSource
	detector detect.Detector
	cleaner  *cleanup.Engine
	bus      *eventbus.Bus
	router   SegmentRouter

	detMu   sync.Mutex
	detCtxs map[string]*detect.Context

	reloadCh chan config.Config

	startedAt    time.Time
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	segmentsPersisted atomic.Int64
	eventsPersisted   atomic.Int64
	restartCount      atomic.Int32

	lastSeqMu sync.Mutex
	lastSeq   map[string]int64

	activityMu sync.Mutex
	lastActivity map[string]time.Time

	lagMu    sync.Mutex
	lagSumMs float64
	lagMaxMs float64
	lagN     int64

	dbMu        sync.Mutex
	dbLastWrite *time.Time

	healthMu sync.RWMutex
	health   model.HealthSnapshot
}

// New constructs a Runtime. cleaner may be nil to disable the
// maintenance task's tiered cleanup pass.
func New(cfg config.Config, logger *slog.Logger, reg *registry.Registry, sched *scheduler.Scheduler,
	tail *tailer.Supervisor, store storage.Storage, source PaneSource, detector detect.Detector,
	cleaner *cleanup.Engine, bus *eventbus.Bus) *Runtime {
	return &Runtime{
		cfg:          cfg,
		logger:       logger,
		reg:          reg,
		sched:        sched,
		tail:         tail,
		store:        store,
		source:       source,
		detector:     detector,
		cleaner:      cleaner,
		bus:          bus,
		detCtxs:      map[string]*detect.Context{},
		reloadCh:     make(chan config.Config, 1),
		shutdownCh:   make(chan struct{}),
		lastSeq:      map[string]int64{},
		lastActivity: map[string]time.Time{},
	}
}

// WithSegmentRouter attaches an optional recording router; returns the
// Runtime for chaining at construction time.
func (rt *Runtime) WithSegmentRouter(r SegmentRouter) *Runtime {
	rt.router = r
	return rt
}

// ReloadConfig replaces the live configuration. Only the knobs the
// running tasks actually re-read each tick take effect without a
// restart (scheduler budget, retention policy); interval changes take
// effect on the task's next tick.
func (rt *Runtime) ReloadConfig(cfg config.Config) {
	rt.sched.UpdateBudget(scheduler.Budget{MaxCapturesPerSec: cfg.MaxCapturesPerSec, MaxBytesPerSec: cfg.MaxBytesPerSec})
	select {
	case rt.reloadCh <- cfg:
	default:
		<-rt.reloadCh
		rt.reloadCh <- cfg
	}
}

// Run starts the four periodic tasks and blocks until ctx is canceled
// or Shutdown is called, then joins them (bounded to 5s) and returns a
// summary of the stop. Storage is checkpointed last, after every task
// has stopped touching it.
func (rt *Runtime) Run(ctx context.Context) model.ShutdownSummary {
	rt.startedAt = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := []func(context.Context){rt.discoveryLoop, rt.captureLoop, rt.persistenceLoop, rt.maintenanceLoop}
	for _, task := range tasks {
		rt.wg.Add(1)
		go func(f func(context.Context)) {
			defer rt.wg.Done()
			f(runCtx)
		}(task)
	}

	done := make(chan struct{})
	go func() {
		rt.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-rt.shutdownCh:
	}
	cancel()

	clean := true
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		clean = false
		rt.logger.Warn("runtime shutdown: task join timed out after 5s")
	}

	if err := rt.store.Checkpoint(context.Background()); err != nil {
		rt.logger.Error("runtime shutdown: final checkpoint failed", "error", err)
	}
	return rt.buildShutdownSummary(clean)
}

// Shutdown requests a graceful stop; safe to call more than once and
// from any goroutine.
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(func() { close(rt.shutdownCh) })
}

func (rt *Runtime) buildShutdownSummary(clean bool) model.ShutdownSummary {
	rt.lastSeqMu.Lock()
	final := make(map[string]int64, len(rt.lastSeq))
	for k, v := range rt.lastSeq {
		final[k] = v
	}
	rt.lastSeqMu.Unlock()
	return model.ShutdownSummary{
		Clean:             clean,
		FinalSeqByPane:    final,
		SegmentsPersisted: rt.segmentsPersisted.Load(),
		EventsPersisted:   rt.eventsPersisted.Load(),
	}
}

func (rt *Runtime) detectionContext(paneID string) *detect.Context {
	rt.detMu.Lock()
	defer rt.detMu.Unlock()
	dctx, ok := rt.detCtxs[paneID]
	if !ok {
		dctx = detect.NewContext()
		rt.detCtxs[paneID] = dctx
	}
	return dctx
}

func (rt *Runtime) dropDetectionContext(paneID string) {
	rt.detMu.Lock()
	defer rt.detMu.Unlock()
	delete(rt.detCtxs, paneID)
}

func (rt *Runtime) recordActivity(paneID string, at time.Time) {
	rt.activityMu.Lock()
	rt.lastActivity[paneID] = at
	rt.activityMu.Unlock()
}

func (rt *Runtime) recordLastSeq(paneID string, seq int64) {
	rt.lastSeqMu.Lock()
	rt.lastSeq[paneID] = seq
	rt.lastSeqMu.Unlock()
}

func (rt *Runtime) recordIngestLag(ms float64) {
	rt.lagMu.Lock()
	defer rt.lagMu.Unlock()
	rt.lagSumMs += ms
	rt.lagN++
	if ms > rt.lagMaxMs {
		rt.lagMaxMs = ms
	}
}

func (rt *Runtime) ingestLagAvgMax() (avg, max float64) {
	rt.lagMu.Lock()
	defer rt.lagMu.Unlock()
	if rt.lagN == 0 {
		return 0, 0
	}
	return rt.lagSumMs / float64(rt.lagN), rt.lagMaxMs
}

func (rt *Runtime) recordDBWrite(at time.Time) {
	rt.dbMu.Lock()
	rt.dbLastWrite = &at
	rt.dbMu.Unlock()
}
