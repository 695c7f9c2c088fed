// Command wardeckd is the observation daemon: it discovers tmux
// panes, tails their output, detects operationally interesting
// patterns, and serves an IPC control plane over a Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardeck/wardeck/internal/cleanup"
	"github.com/wardeck/wardeck/internal/config"
	"github.com/wardeck/wardeck/internal/detect"
	"github.com/wardeck/wardeck/internal/eventbus"
	"github.com/wardeck/wardeck/internal/ipc"
	"github.com/wardeck/wardeck/internal/logging"
	"github.com/wardeck/wardeck/internal/panesource"
	"github.com/wardeck/wardeck/internal/registry"
	"github.com/wardeck/wardeck/internal/runtime"
	"github.com/wardeck/wardeck/internal/scheduler"
	"github.com/wardeck/wardeck/internal/storage/sqlitestore"
	"github.com/wardeck/wardeck/internal/tailer"
)

func main() {
	cfg := config.DefaultConfig()

	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "optional path to also append logs to")
	configFile := flag.String("config", "", "optional JSON file of hot-reloadable budget/retention overrides")
	wsAddr := flag.String("ws-addr", "", "optional listen address (e.g. :8089) serving the live event websocket at /ws")
	flag.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for wardeckd's IPC server")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.RecordingsDir, "recordings-dir", cfg.RecordingsDir, "directory for recorded sessions")
	flag.Parse()

	logger, err := logging.Init(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wardeckd: init logging:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *configFile != "" {
		loaded, err := applyReloadableFile(*configFile, cfg)
		if err != nil {
			logger.Error("load config file", "path", *configFile, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	store, err := sqlitestore.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := registry.New(registry.FilterConfig{})
	sched := scheduler.New(scheduler.Budget{MaxCapturesPerSec: cfg.MaxCapturesPerSec, MaxBytesPerSec: cfg.MaxBytesPerSec})
	tail := tailer.New(tailer.Config{
		MinInterval:       cfg.MinPollInterval,
		MaxInterval:       cfg.MaxPollInterval,
		BackoffMultiplier: cfg.BackoffMultiplier,
		OverflowThreshold: cfg.OverflowBackpressureThreshold,
		MaxConcurrent:     cfg.MaxConcurrentCaptures,
		SendTimeout:       cfg.SendTimeout,
		OverlapSize:       cfg.OverlapSize,
	}, reg, cfg.CaptureChannelSize)
	source := panesource.New(10 * time.Second)
	detector := detect.NewRuleDetector(defaultRules())
	cleaner := cleanup.New(store, cfg.DeleteBatchSize)
	bus := eventbus.New(64)

	rt := runtime.New(cfg, logger, reg, sched, tail, store, source, detector, cleaner, bus)
	backend := runtime.NewBackend(rt)

	var verifier *ipc.Verifier
	if secret := os.Getenv("WA_IPC_SIGNING_SECRET"); secret != "" {
		verifier, err = ipc.NewVerifier(secret)
		if err != nil {
			logger.Error("init ipc verifier", "error", err)
			os.Exit(1)
		}
	}
	auth := ipc.NewAuthenticator(cfg.IPCTokens, verifier)
	server := ipc.NewServer(cfg.SocketPath, cfg.IPCMaxMessageSize, auth, backend)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(ctx) }()

	if *configFile != "" {
		go watchConfigFile(*configFile, logger, rt.ReloadConfig, cfg, ctx.Done())
	}

	wsErr := make(chan error, 1)
	if wsSrv := newWSServer(*wsAddr, bus, logger); wsSrv != nil {
		logger.Info("ws bridge listening", "addr", *wsAddr)
		go func() { wsErr <- runWSServer(ctx, wsSrv, logger) }()
	} else {
		wsErr <- nil
	}

	logger.Info("wardeckd started", "socket", cfg.SocketPath, "db", cfg.DBPath)
	summary := rt.Run(ctx)
	logger.Info("wardeckd stopped", "clean", summary.Clean, "segments_persisted", summary.SegmentsPersisted, "events_persisted", summary.EventsPersisted)

	if err := server.Shutdown(); err != nil {
		logger.Warn("ipc server shutdown", "error", err)
	}
	if err := <-serverErr; err != nil && ctx.Err() == nil {
		logger.Warn("ipc server exited with error", "error", err)
	}
	if err := <-wsErr; err != nil {
		logger.Warn("ws bridge exited with error", "error", err)
	}
}

// defaultRules is a minimal starter rule set; operators are expected
// to supply their own via a future config-driven rule loader (see
// DESIGN.md Open Questions).
func defaultRules() []detect.Rule {
	return nil
}
