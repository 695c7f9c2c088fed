package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/wardeck/wardeck/internal/config"
	"github.com/wardeck/wardeck/internal/model"
)

// reloadableFields is the subset of config.Config an operator can
// change without restarting wardeckd: scheduling budgets and
// retention policy. Everything else (socket path, DB path, interval
// tuning) only takes effect at process start.
type reloadableFields struct {
	MaxCapturesPerSec   *uint32                `json:"max_captures_per_sec"`
	MaxBytesPerSec      *uint64                `json:"max_bytes_per_sec"`
	GlobalRetentionDays *uint32                `json:"global_retention_days"`
	RetentionTiers      []model.RetentionTier  `json:"retention_tiers"`
}

func applyReloadableFile(path string, base config.Config) (config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	var fields reloadableFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}
	if fields.MaxCapturesPerSec != nil {
		base.MaxCapturesPerSec = *fields.MaxCapturesPerSec
	}
	if fields.MaxBytesPerSec != nil {
		base.MaxBytesPerSec = *fields.MaxBytesPerSec
	}
	if fields.GlobalRetentionDays != nil {
		base.GlobalRetentionDays = *fields.GlobalRetentionDays
	}
	if fields.RetentionTiers != nil {
		base.RetentionTiers = fields.RetentionTiers
	}
	return base, nil
}

// watchConfigFile reloads path's reloadable fields into apply on every
// write, logging and ignoring parse failures so a bad edit doesn't
// tear down the daemon. Runs until stop is closed.
func watchConfigFile(path string, logger *slog.Logger, apply func(config.Config), base config.Config, stop <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watch: init failed, hot reload disabled", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		logger.Warn("config watch: add path failed, hot reload disabled", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			updated, err := applyReloadableFile(path, base)
			if err != nil {
				logger.Warn("config watch: reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			base = updated
			apply(updated)
			logger.Info("config watch: reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watch: watcher error", "error", err)
		}
	}
}
