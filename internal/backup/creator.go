package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/periodical/internal/archive"
	"github.com/edvin/periodical/internal/model"
)

// Dumper writes a plain SQL dump of the content database.
type Dumper interface {
	Dump(ctx context.Context, outPath string) error
}

// CreatorConfig wires a Creator to its directories.
type CreatorConfig struct {
	// FileTreeDir is the live public tree included in full archives.
	FileTreeDir string
	// WorkDir receives the intermediate dump; it is cleaned up after each run.
	WorkDir string
	// DumpName is the file name of the dump inside the archive.
	DumpName string
}

// Creator produces new archives in a Storage.
type Creator struct {
	logger  zerolog.Logger
	storage *Storage
	dumper  Dumper
	cfg     CreatorConfig
	now     func() time.Time
}

func NewCreator(logger zerolog.Logger, storage *Storage, dumper Dumper, cfg CreatorConfig) *Creator {
	if cfg.DumpName == "" {
		cfg.DumpName = "database.sql"
	}
	return &Creator{
		logger:  logger.With().Str("component", "backup-creator").Logger(),
		storage: storage,
		dumper:  dumper,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ValidMode reports whether mode is a supported archive mode.
func ValidMode(mode string) bool {
	return mode == model.BackupModeFull || mode == model.BackupModeDB
}

// Create dumps the database and, in full mode, packs the public tree with it.
// The archive is named prefix plus a timestamp.
func (c *Creator) Create(ctx context.Context, mode, prefix string) (model.BackupArchive, error) {
	if !ValidMode(mode) {
		return model.BackupArchive{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err := os.MkdirAll(c.storage.Dir(), 0o750); err != nil {
		return model.BackupArchive{}, fmt.Errorf("create backup directory: %w", err)
	}
	if err := os.MkdirAll(c.cfg.WorkDir, 0o700); err != nil {
		return model.BackupArchive{}, fmt.Errorf("create work directory: %w", err)
	}

	work, err := os.MkdirTemp(c.cfg.WorkDir, "dump-")
	if err != nil {
		return model.BackupArchive{}, fmt.Errorf("create dump directory: %w", err)
	}
	defer os.RemoveAll(work)

	dumpPath := filepath.Join(work, c.cfg.DumpName)
	if err := c.dumper.Dump(ctx, dumpPath); err != nil {
		return model.BackupArchive{}, fmt.Errorf("dump database: %w", err)
	}

	var tree string
	if mode == model.BackupModeFull {
		if info, err := os.Stat(c.cfg.FileTreeDir); err == nil && info.IsDir() {
			tree = c.cfg.FileTreeDir
		} else {
			c.logger.Warn().Str("path", c.cfg.FileTreeDir).Msg("public file tree missing, archiving database only")
		}
	}

	name := c.nextName(prefix)
	if err := archive.Create(filepath.Join(c.storage.Dir(), name), dumpPath, tree); err != nil {
		return model.BackupArchive{}, err
	}

	a, err := c.storage.Stat(name)
	if err != nil {
		return model.BackupArchive{}, err
	}
	c.logger.Info().Str("file", a.FileName).Str("mode", mode).Int64("size", a.SizeBytes).Msg("backup archive created")
	return a, nil
}

// PreRestoreSnapshot takes the database-only safety archive taken before
// every restore and returns its file name.
func (c *Creator) PreRestoreSnapshot(ctx context.Context) (string, error) {
	a, err := c.Create(ctx, model.BackupModeDB, "pre-restore-")
	if err != nil {
		return "", err
	}
	return a.FileName, nil
}

func (c *Creator) nextName(prefix string) string {
	base := prefix + c.now().Format("2006-01-02-15-04-05")
	name := base + archive.Ext
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(c.storage.Dir(), name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, i, archive.Ext)
	}
}
