package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wardeck/wardeck/internal/eventbus"
)

// shutdownGrace bounds how long the websocket bridge waits for
// in-flight connections to drain on shutdown.
const shutdownGrace = 5 * time.Second

// newWSServer builds the HTTP server that exposes bus over a websocket
// at /ws, the live-tail transport spec.md's IPC Status response counts
// subscribers for. Returns nil if addr is empty (the bridge is
// optional; wardeckd remains fully usable over the Unix socket alone).
func newWSServer(addr string, bus *eventbus.Bus, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := eventbus.ServeWS(bus, w, r); err != nil {
			logger.Debug("ws connection closed", "remote", r.RemoteAddr, "error", err)
		}
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// runWSServer starts srv and blocks until it exits or ctx is canceled,
// in which case it shuts srv down gracefully.
func runWSServer(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
