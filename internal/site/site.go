// Package site assembles the backup components of one magazine installation
// from its configuration. Every binary builds the same graph.
package site

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/periodical/internal/backup"
	"github.com/edvin/periodical/internal/config"
	"github.com/edvin/periodical/internal/mysqlcli"
	"github.com/edvin/periodical/internal/offsite"
	"github.com/edvin/periodical/internal/platform"
	"github.com/edvin/periodical/internal/restore"
)

type Site struct {
	Storage     *backup.Storage
	Creator     *backup.Creator
	MySQL       *mysqlcli.Client
	Environment *platform.Environment
	// Offsite is nil unless an offsite bucket is configured.
	Offsite *offsite.Store
}

func New(logger zerolog.Logger, cfg *config.Config) (*Site, error) {
	conn, err := mysqlcli.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("parse MYSQL_DSN: %w", err)
	}

	storage := backup.NewStorage(cfg.BackupDir, cfg.BackupLegacyDir)
	mysql := mysqlcli.NewClient(logger, mysqlcli.Config{
		Conn:            conn,
		MySQLBinary:     cfg.MySQLBinary,
		MySQLDumpBinary: cfg.MySQLDumpBinary,
		TempDir:         cfg.WorkspaceDir,
	})

	s := &Site{
		Storage: storage,
		Creator: backup.NewCreator(logger, storage, mysql, backup.CreatorConfig{
			FileTreeDir: cfg.PublicStorageDir,
			WorkDir:     filepath.Join(cfg.WorkspaceDir, "create"),
		}),
		MySQL: mysql,
		Environment: platform.NewEnvironment(logger, platform.EnvironmentConfig{
			MaintenanceFile:  cfg.MaintenanceFile,
			PublicStorageDir: cfg.PublicStorageDir,
			CacheDir:         cfg.CacheDir,
		}),
	}
	if cfg.OffsiteEnabled() {
		s.Offsite = offsite.NewStore(logger, offsite.Config{
			Endpoint:  cfg.OffsiteS3Endpoint,
			Region:    cfg.OffsiteS3Region,
			Bucket:    cfg.OffsiteS3Bucket,
			AccessKey: cfg.OffsiteS3AccessKey,
			SecretKey: cfg.OffsiteS3SecretKey,
			Prefix:    cfg.SiteName,
		})
	}
	return s, nil
}

// Restorer returns an orchestrator that records its runs in ledger.
func (s *Site) Restorer(logger zerolog.Logger, cfg *config.Config, ledger restore.Ledger) *restore.Orchestrator {
	return restore.NewOrchestrator(logger, restore.Config{WorkspaceRoot: cfg.WorkspaceDir},
		s.Storage, s.Environment, s.Creator, s.MySQL, ledger)
}
