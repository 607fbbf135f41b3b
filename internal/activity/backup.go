package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/periodical/internal/model"
)

// ArchiveCreator produces a new archive in backup storage.
type ArchiveCreator interface {
	Create(ctx context.Context, mode, prefix string) (model.BackupArchive, error)
}

// ArchiveStore is the backup directory.
type ArchiveStore interface {
	List() ([]model.BackupArchive, error)
	Path(name string) (string, error)
	Remove(name string) error
}

// OffsiteStore mirrors archives to remote storage.
type OffsiteStore interface {
	PutArchive(ctx context.Context, path, name string) error
	DeleteArchive(ctx context.Context, name string) error
}

// EventHandler turns backup events into history records.
type EventHandler interface {
	Handle(ctx context.Context, ev model.BackupEvent) error
}

// BackupConfig holds the health and retention thresholds.
type BackupConfig struct {
	// Name identifies this site's backups in monitor messages.
	Name          string
	MaxAge        time.Duration
	RetentionDays int
}

// HealthReport is the outcome of CheckArchiveHealth.
type HealthReport struct {
	Healthy bool
	Reason  string
	Newest  string
}

// CleanupResult lists what CleanupArchives removed.
type CleanupResult struct {
	Removed    []string
	FreedBytes int64
}

// Backup contains the activities run by the backup worker.
type Backup struct {
	logger  zerolog.Logger
	creator ArchiveCreator
	store   ArchiveStore
	offsite OffsiteStore
	events  EventHandler
	cfg     BackupConfig
	now     func() time.Time
}

// NewBackup creates the backup activities. offsite may be nil when no
// remote copy is configured.
func NewBackup(logger zerolog.Logger, creator ArchiveCreator, store ArchiveStore, offsite OffsiteStore, events EventHandler, cfg BackupConfig) *Backup {
	return &Backup{
		logger:  logger.With().Str("component", "backup-activity").Logger(),
		creator: creator,
		store:   store,
		offsite: offsite,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateArchive writes a new archive in the requested mode.
func (a *Backup) CreateArchive(ctx context.Context, params model.CreateArchiveParams) (*model.BackupArchive, error) {
	archive, err := a.creator.Create(ctx, params.Mode, "")
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

// CopyArchiveOffsite uploads name to the offsite bucket. It is a no-op when
// offsite copies are disabled.
func (a *Backup) CopyArchiveOffsite(ctx context.Context, name string) error {
	if a.offsite == nil {
		return nil
	}
	path, err := a.store.Path(name)
	if err != nil {
		return fmt.Errorf("locate archive %s: %w", name, err)
	}
	return a.offsite.PutArchive(ctx, path, name)
}

// CheckArchiveHealth inspects the newest regular archive. Pre-restore
// snapshots are ignored.
func (a *Backup) CheckArchiveHealth(ctx context.Context) (*HealthReport, error) {
	archives, err := a.store.List()
	if err != nil {
		return nil, err
	}

	var newest *model.BackupArchive
	for i := range archives {
		if strings.HasPrefix(archives[i].FileName, "pre-restore-") {
			continue
		}
		newest = &archives[i]
		break
	}

	switch {
	case newest == nil:
		return &HealthReport{Reason: "No backups present."}, nil
	case newest.SizeBytes == 0:
		return &HealthReport{Newest: newest.FileName, Reason: fmt.Sprintf("The latest backup %s is empty.", newest.FileName)}, nil
	case a.cfg.MaxAge > 0 && a.now().Sub(newest.ModifiedAt) > a.cfg.MaxAge:
		age := a.now().Sub(newest.ModifiedAt).Round(time.Minute)
		return &HealthReport{Newest: newest.FileName, Reason: fmt.Sprintf("The latest backup %s is %s old.", newest.FileName, age)}, nil
	}
	return &HealthReport{Healthy: true, Newest: newest.FileName}, nil
}

// CleanupArchives removes archives older than the retention period. The
// newest regular archive and the newest pre-restore snapshot are always kept. Offsite copies of removed archives are
// deleted as well; failures there are logged only.
func (a *Backup) CleanupArchives(ctx context.Context) (*CleanupResult, error) {
	archives, err := a.store.List()
	if err != nil {
		return nil, err
	}

	cutoff := a.now().AddDate(0, 0, -a.cfg.RetentionDays)
	result := &CleanupResult{}
	// archives is sorted newest first.
	var keptRegular, keptSnapshot bool
	for _, arc := range archives {
		if strings.HasPrefix(arc.FileName, "pre-restore-") {
			if !keptSnapshot {
				keptSnapshot = true
				continue
			}
		} else if !keptRegular {
			keptRegular = true
			continue
		}
		if !arc.ModifiedAt.Before(cutoff) {
			continue
		}
		if err := a.store.Remove(arc.FileName); err != nil {
			return result, fmt.Errorf("remove %s: %w", arc.FileName, err)
		}
		result.Removed = append(result.Removed, arc.FileName)
		result.FreedBytes += arc.SizeBytes

		if a.offsite != nil {
			if err := a.offsite.DeleteArchive(ctx, arc.FileName); err != nil {
				a.logger.Warn().Err(err).Str("file", arc.FileName).Msg("failed to delete offsite copy")
			}
		}
	}

	a.logger.Info().Strs("removed", result.Removed).Int64("freed_bytes", result.FreedBytes).Msg("backup cleanup finished")
	return result, nil
}

// PublishBackupEvent hands ev to the history subscriber.
func (a *Backup) PublishBackupEvent(ctx context.Context, ev model.BackupEvent) error {
	return a.events.Handle(ctx, ev)
}
