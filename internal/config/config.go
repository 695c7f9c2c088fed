// Package config holds the plain configuration struct for wardeckd.
// Per spec.md §1 Non-goals, configuration *file* loading lives outside
// this core (the CLI layer owns that); this package only defines the
// struct and its defaults, the same shape as the teacher's
// internal/config/config.go.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/wardeck/wardeck/internal/model"
)

// Config is the full set of knobs the observation core reads. Every
// field here maps to a component in SPEC_FULL.md §13.
type Config struct {
	SocketPath    string
	DBPath        string
	RecordingsDir string

	// CaptureScheduler (spec.md §4.3)
	MaxCapturesPerSec uint32
	MaxBytesPerSec    uint64

	// TailerSupervisor (spec.md §4.4)
	MinPollInterval               time.Duration
	MaxPollInterval               time.Duration
	BackoffMultiplier             float64
	OverflowBackpressureThreshold int
	MaxConcurrentCaptures         int
	CaptureChannelSize            int
	SendTimeout                   time.Duration
	OverlapSize                   int

	// ObservationRuntime (spec.md §4.5)
	DiscoveryInterval      time.Duration
	CaptureTick            time.Duration
	MaintenanceTick        time.Duration
	CheckpointIntervalSecs time.Duration
	BackpressureWarnRatio  float64

	// Recording (spec.md §4.6)
	KeyframeInterval int

	// Cleanup (spec.md §4.7)
	GlobalRetentionDays uint32
	RetentionTiers      []model.RetentionTier
	DeleteBatchSize     int
	CleanupInterval     time.Duration

	// IPC (spec.md §4.8)
	IPCTokens         []model.AuthToken
	IPCMaxMessageSize int
	IPCTokenEnvVar    string
}

// DefaultConfig returns the core's baseline configuration, mirroring
// every constant named in spec.md (OVERFLOW_BACKPRESSURE_THRESHOLD,
// KEYFRAME_INTERVAL, DELETE_BATCH_SIZE, MAX_MESSAGE_SIZE, ...).
func DefaultConfig() Config {
	return Config{
		SocketPath:    defaultSocketPath(),
		DBPath:        defaultDBPath(),
		RecordingsDir: defaultRecordingsDir(),

		MaxCapturesPerSec: 0,
		MaxBytesPerSec:    0,

		MinPollInterval:               250 * time.Millisecond,
		MaxPollInterval:               5 * time.Second,
		BackoffMultiplier:             1.6,
		OverflowBackpressureThreshold: 5,
		MaxConcurrentCaptures:         8,
		CaptureChannelSize:            256,
		SendTimeout:                   50 * time.Millisecond,
		OverlapSize:                   64,

		DiscoveryInterval:      2 * time.Second,
		CaptureTick:            200 * time.Millisecond,
		MaintenanceTick:        time.Minute,
		CheckpointIntervalSecs: 5 * time.Minute,
		BackpressureWarnRatio:  0.75,

		KeyframeInterval: 50,

		GlobalRetentionDays: 30,
		DeleteBatchSize:     5000,
		CleanupInterval:     time.Hour,

		IPCMaxMessageSize: 131072,
		IPCTokenEnvVar:    "WA_IPC_TOKEN",
	}
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "wardeck", "wardeckd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wardeckd.sock"
	}
	return filepath.Join(home, ".local", "state", "wardeck", "wardeckd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wardeck.db"
	}
	return filepath.Join(home, ".local", "state", "wardeck", "state.db")
}

func defaultRecordingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recordings"
	}
	return filepath.Join(home, ".local", "state", "wardeck", "recordings")
}
