package ipc

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

type fakeBackend struct {
	pane model.PaneEntry
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }
func (f *fakeBackend) Status(ctx context.Context) (StatusData, error) {
	return StatusData{UptimeMs: 1000, SubscriberCount: 2}, nil
}
func (f *fakeBackend) PaneState(ctx context.Context, paneID string) (model.PaneEntry, error) {
	if paneID != f.pane.PaneID {
		return model.PaneEntry{}, NewBackendError(ErrCodePaneNotFound, "check the pane id", fmt.Errorf("pane %q not found", paneID))
	}
	return f.pane, nil
}
func (f *fakeBackend) SetPanePriority(ctx context.Context, paneID string, priority uint32, ttl *time.Duration) error {
	return nil
}
func (f *fakeBackend) ClearPanePriority(ctx context.Context, paneID string) error { return nil }
func (f *fakeBackend) SetUserVar(ctx context.Context, paneID, name, value string) error {
	return nil
}
func (f *fakeBackend) Rpc(ctx context.Context, args []string) (any, error) {
	return map[string]any{"args": args}, nil
}

func startTestServer(t *testing.T, auth *Authenticator, backend Backend) (*Server, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "wardeckd.sock")
	srv := NewServer(socketPath, 0, auth, backend)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.mu.Lock()
		ready := srv.listener != nil
		srv.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return srv, func() {
		cancel()
		srv.Shutdown()
		<-errCh
	}
}

func TestScopedAuthRoundTrip(t *testing.T) {
	auth := NewAuthenticator([]model.AuthToken{{Token: "T", Scopes: []model.IPCScope{model.ScopeRead}}}, nil)
	srv, stop := startTestServer(t, auth, &fakeBackend{pane: model.PaneEntry{PaneID: "%1"}})
	defer stop()

	client := NewClient(srv.socketPath, "T")

	resp, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !resp.OK {
		t.Fatalf("Ping: got ok=false, error=%q", resp.Error)
	}

	resp, err = client.SetUserVar("%1", "k", "v")
	if err != nil {
		t.Fatalf("SetUserVar: %v", err)
	}
	if resp.OK {
		t.Fatal("expected ok=false for Write request with Read-only token")
	}
	if resp.ErrorCode != ErrCodeInsufficientScope {
		t.Fatalf("got error_code %q, want %q", resp.ErrorCode, ErrCodeInsufficientScope)
	}

	noTokenClient := NewClient(srv.socketPath, "")
	resp, err = noTokenClient.Ping()
	if err != nil {
		t.Fatalf("Ping with no token: %v", err)
	}
	if resp.OK {
		t.Fatal("expected ok=false for missing token")
	}
	if resp.ErrorCode != ErrCodeMissingToken {
		t.Fatalf("got error_code %q, want %q", resp.ErrorCode, ErrCodeMissingToken)
	}
}

func TestPaneStateNotFoundReturnsBackendErrorCode(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	srv, stop := startTestServer(t, auth, &fakeBackend{pane: model.PaneEntry{PaneID: "%1"}})
	defer stop()

	client := NewClient(srv.socketPath, "")
	resp, err := client.PaneState("%missing")
	if err != nil {
		t.Fatalf("PaneState: %v", err)
	}
	if resp.OK {
		t.Fatal("expected ok=false for unknown pane")
	}
	if resp.ErrorCode != ErrCodePaneNotFound {
		t.Fatalf("got error_code %q, want %q", resp.ErrorCode, ErrCodePaneNotFound)
	}
}

func TestStatusReturnsBackendData(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	srv, stop := startTestServer(t, auth, &fakeBackend{})
	defer stop()

	client := NewClient(srv.socketPath, "")
	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !resp.OK {
		t.Fatalf("Status: got ok=false, error=%q", resp.Error)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("got data type %T", resp.Data)
	}
	if data["subscriber_count"].(float64) != 2 {
		t.Fatalf("got subscriber_count=%v, want 2", data["subscriber_count"])
	}
}

func TestOversizeMessageRejectedWithoutParsing(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	srv, stop := startTestServer(t, auth, &fakeBackend{})
	defer stop()

	client := NewClient(srv.socketPath, "")
	client.dialTimeout = time.Second
	big := Request{Kind: KindRpc, Args: []string{string(make([]byte, MAX_MESSAGE_SIZE+1))}}
	resp, err := client.Call(big)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.OK || resp.ErrorCode != ErrCodeMessageTooLarge {
		t.Fatalf("got ok=%v code=%q, want ok=false code=%q", resp.OK, resp.ErrorCode, ErrCodeMessageTooLarge)
	}
}

func TestRpcRoundTrip(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	srv, stop := startTestServer(t, auth, &fakeBackend{})
	defer stop()

	client := NewClient(srv.socketPath, "")
	resp, err := client.Rpc([]string{"status"})
	if err != nil {
		t.Fatalf("Rpc: %v", err)
	}
	if !resp.OK {
		t.Fatalf("Rpc: got ok=false, error=%q", resp.Error)
	}
}
