package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/wardeck/wardeck/internal/ipc"
	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/storage"
)

// Backend adapts a Runtime to ipc.Backend, so the IPC server can
// dispatch requests against live registry/scheduler state without
// internal/ipc ever importing this package.
type Backend struct {
	rt *Runtime
}

// NewBackend wraps rt as an ipc.Backend.
func NewBackend(rt *Runtime) *Backend { return &Backend{rt: rt} }

var _ ipc.Backend = (*Backend)(nil)

func (b *Backend) Ping(ctx context.Context) error { return nil }

func (b *Backend) Status(ctx context.Context) (ipc.StatusData, error) {
	health := b.rt.Health()
	return ipc.StatusData{
		UptimeMs:        time.Since(b.rt.startedAt).Milliseconds(),
		EventsQueued:    len(b.rt.tail.Events()),
		SubscriberCount: b.rt.subscriberCount(),
		Health:          &health,
	}, nil
}

func (b *Backend) PaneState(ctx context.Context, paneID string) (model.PaneEntry, error) {
	entry, ok := b.rt.reg.Get(paneID)
	if !ok {
		return model.PaneEntry{}, ipc.NewBackendError(ipc.ErrCodePaneNotFound, fmt.Sprintf("no such pane: %s", paneID), fmt.Errorf("pane not found"))
	}
	return entry, nil
}

func (b *Backend) SetPanePriority(ctx context.Context, paneID string, priority uint32, ttl *time.Duration) error {
	if err := b.rt.reg.SetPriorityOverride(paneID, priority, time.Now(), ttl); err != nil {
		return ipc.NewBackendError(ipc.ErrCodePaneNotFound, fmt.Sprintf("no such pane: %s", paneID), err)
	}
	return b.rt.store.RecordAudit(ctx, storage.AuditAction{
		PaneID:     paneID,
		Action:     "set_pane_priority",
		Detail:     fmt.Sprintf("priority=%d", priority),
		OccurredAt: time.Now(),
	})
}

func (b *Backend) ClearPanePriority(ctx context.Context, paneID string) error {
	if err := b.rt.reg.ClearPriorityOverride(paneID); err != nil {
		return ipc.NewBackendError(ipc.ErrCodePaneNotFound, fmt.Sprintf("no such pane: %s", paneID), err)
	}
	return b.rt.store.RecordAudit(ctx, storage.AuditAction{
		PaneID:     paneID,
		Action:     "clear_pane_priority",
		OccurredAt: time.Now(),
	})
}

// SetUserVar records a tmux-style user-variable assignment against a
// pane as an audit action; the observation core has no use for the
// variable's value itself beyond the audit trail (spec.md §4.8).
func (b *Backend) SetUserVar(ctx context.Context, paneID, name, value string) error {
	if _, ok := b.rt.reg.Get(paneID); !ok {
		return ipc.NewBackendError(ipc.ErrCodePaneNotFound, fmt.Sprintf("no such pane: %s", paneID), fmt.Errorf("pane not found"))
	}
	return b.rt.store.RecordAudit(ctx, storage.AuditAction{
		PaneID:     paneID,
		Action:     "set_user_var",
		Detail:     fmt.Sprintf("%s=%s", name, value),
		OccurredAt: time.Now(),
	})
}

// Rpc is the generic escape hatch request.md's Rpc variant describes
// (send/approve/workflow/accounts/reservations verbs belong to a
// control-plane domain this observation core does not implement).
// Scope classification for these verbs still happens at the protocol
// layer (internal/ipc.rpcScope); this handler only records the call.
func (b *Backend) Rpc(ctx context.Context, args []string) (any, error) {
	if len(args) == 0 {
		return map[string]any{"status": "noop"}, nil
	}
	if err := b.rt.store.RecordAudit(ctx, storage.AuditAction{
		Action:     "rpc",
		Detail:     fmt.Sprintf("%v", args),
		OccurredAt: time.Now(),
	}); err != nil {
		return nil, ipc.NewBackendError(ipc.ErrCodeInternal, "failed to record rpc call", err)
	}
	return map[string]any{"status": "not_implemented", "args": args}, nil
}

func (rt *Runtime) subscriberCount() int {
	if rt.bus == nil {
		return 0
	}
	return rt.bus.SubscriberCount()
}
