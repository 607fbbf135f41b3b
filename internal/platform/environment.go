package platform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type EnvironmentConfig struct {
	// MaintenanceFile is the marker whose presence puts the site in
	// maintenance mode for every process that shares the filesystem.
	MaintenanceFile  string
	PublicStorageDir string
	CacheDir         string
}

// Environment is the running site as seen by backup tooling: its
// maintenance switch, its public file tree and its caches.
type Environment struct {
	logger zerolog.Logger
	cfg    EnvironmentConfig
	now    func() time.Time
}

func NewEnvironment(logger zerolog.Logger, cfg EnvironmentConfig) *Environment {
	return &Environment{
		logger: logger.With().Str("component", "environment").Logger(),
		cfg:    cfg,
		now:    time.Now,
	}
}

type maintenanceMarker struct {
	Time   int64  `json:"time"`
	Reason string `json:"reason"`
	Retry  int    `json:"retry"`
}

func (e *Environment) IsMaintenance() bool {
	_, err := os.Stat(e.cfg.MaintenanceFile)
	return err == nil
}

// MaintenanceReason returns the reason stored in the marker, or "" when the
// site is up or the marker is unreadable.
func (e *Environment) MaintenanceReason() string {
	data, err := os.ReadFile(e.cfg.MaintenanceFile)
	if err != nil {
		return ""
	}
	var m maintenanceMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Reason
}

func (e *Environment) EnterMaintenance(reason string) error {
	if err := os.MkdirAll(filepath.Dir(e.cfg.MaintenanceFile), 0o755); err != nil {
		return fmt.Errorf("create maintenance directory: %w", err)
	}
	data, err := json.Marshal(maintenanceMarker{Time: e.now().Unix(), Reason: reason, Retry: 60})
	if err != nil {
		return fmt.Errorf("encode maintenance marker: %w", err)
	}
	if err := os.WriteFile(e.cfg.MaintenanceFile, data, 0o644); err != nil {
		return fmt.Errorf("write maintenance marker: %w", err)
	}
	e.logger.Info().Str("reason", reason).Msg("maintenance mode enabled")
	return nil
}

func (e *Environment) ExitMaintenance() error {
	if err := os.Remove(e.cfg.MaintenanceFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove maintenance marker: %w", err)
	}
	e.logger.Info().Msg("maintenance mode disabled")
	return nil
}

func (e *Environment) LiveTreePath() string {
	return e.cfg.PublicStorageDir
}

// ClearCache empties the cache directory, keeping the directory itself.
func (e *Environment) ClearCache() error {
	entries, err := os.ReadDir(e.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(e.cfg.CacheDir, entry.Name())); err != nil {
			return fmt.Errorf("clear cache entry %s: %w", entry.Name(), err)
		}
	}
	e.logger.Info().Int("entries", len(entries)).Msg("cache cleared")
	return nil
}
