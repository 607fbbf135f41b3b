package core

import (
	"context"
	"fmt"

	"github.com/edvin/periodical/internal/model"
)

// HistoryRecorder appends a record to the backup history ledger.
type HistoryRecorder interface {
	Record(ctx context.Context, rec *model.HistoryRecord) error
}

// BackupEventSubscriber records the outcome of background backup work in the
// history ledger.
type BackupEventSubscriber struct {
	history HistoryRecorder
}

func NewBackupEventSubscriber(history HistoryRecorder) *BackupEventSubscriber {
	return &BackupEventSubscriber{history: history}
}

// Handle writes the history record for ev.
func (s *BackupEventSubscriber) Handle(ctx context.Context, ev model.BackupEvent) error {
	rec, err := recordForEvent(ev)
	if err != nil {
		return err
	}
	return s.history.Record(ctx, rec)
}

func recordForEvent(ev model.BackupEvent) (*model.HistoryRecord, error) {
	rec := &model.HistoryRecord{UserID: optString(ev.UserID)}

	switch ev.Kind {
	case model.EventBackupSucceeded:
		rec.Type, rec.Status = model.HistoryTypeCreate, model.HistoryStatusSuccess
		rec.FileName = optString(ev.FileName)
		rec.FileSize = optInt64(ev.SizeBytes)
		rec.Message = "Backup created successfully."
	case model.EventBackupFailed:
		rec.Type, rec.Status = model.HistoryTypeCreate, model.HistoryStatusFailed
		rec.Message = ev.Error
	case model.EventCleanupSucceeded:
		rec.Type, rec.Status = model.HistoryTypeClean, model.HistoryStatusSuccess
		rec.Message = "Cleanup completed successfully."
	case model.EventCleanupFailed:
		rec.Type, rec.Status = model.HistoryTypeClean, model.HistoryStatusFailed
		rec.Message = ev.Error
	case model.EventHealthyBackup:
		rec.Type, rec.Status = model.HistoryTypeMonitor, model.HistoryStatusSuccess
		rec.Message = "Backup health check passed for: " + ev.BackupName
	case model.EventUnhealthyBackup:
		rec.Type, rec.Status = model.HistoryTypeMonitor, model.HistoryStatusFailed
		rec.Message = fmt.Sprintf("Unhealthy backup found: %s. Reason: %s", ev.BackupName, ev.Error)
	case model.EventOffsiteFailed:
		rec.Type, rec.Status = model.HistoryTypeCreate, model.HistoryStatusFailed
		rec.FileName = optString(ev.FileName)
		rec.Message = fmt.Sprintf("Offsite copy failed: %s", ev.Error)
	default:
		return nil, fmt.Errorf("unknown backup event %q", ev.Kind)
	}
	return rec, nil
}
