package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/periodical/internal/model"
)

func TestRecordForEvent(t *testing.T) {
	tests := []struct {
		name    string
		ev      model.BackupEvent
		typ     string
		status  string
		message string
	}{
		{
			name:    "backup succeeded",
			ev:      model.BackupEvent{Kind: model.EventBackupSucceeded, FileName: "periodical-2024.zip", SizeBytes: 2048},
			typ:     model.HistoryTypeCreate,
			status:  model.HistoryStatusSuccess,
			message: "Backup created successfully.",
		},
		{
			name:    "backup failed",
			ev:      model.BackupEvent{Kind: model.EventBackupFailed, Error: "database dump failed: access denied"},
			typ:     model.HistoryTypeCreate,
			status:  model.HistoryStatusFailed,
			message: "database dump failed: access denied",
		},
		{
			name:    "cleanup succeeded",
			ev:      model.BackupEvent{Kind: model.EventCleanupSucceeded},
			typ:     model.HistoryTypeClean,
			status:  model.HistoryStatusSuccess,
			message: "Cleanup completed successfully.",
		},
		{
			name:    "cleanup failed",
			ev:      model.BackupEvent{Kind: model.EventCleanupFailed, Error: "permission denied"},
			typ:     model.HistoryTypeClean,
			status:  model.HistoryStatusFailed,
			message: "permission denied",
		},
		{
			name:    "healthy",
			ev:      model.BackupEvent{Kind: model.EventHealthyBackup, BackupName: "periodical"},
			typ:     model.HistoryTypeMonitor,
			status:  model.HistoryStatusSuccess,
			message: "Backup health check passed for: periodical",
		},
		{
			name:    "unhealthy",
			ev:      model.BackupEvent{Kind: model.EventUnhealthyBackup, BackupName: "periodical", Error: "newest backup is 30h old"},
			typ:     model.HistoryTypeMonitor,
			status:  model.HistoryStatusFailed,
			message: "Unhealthy backup found: periodical. Reason: newest backup is 30h old",
		},
		{
			name:    "offsite failed",
			ev:      model.BackupEvent{Kind: model.EventOffsiteFailed, FileName: "a.zip", Error: "403 Forbidden"},
			typ:     model.HistoryTypeCreate,
			status:  model.HistoryStatusFailed,
			message: "Offsite copy failed: 403 Forbidden",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := recordForEvent(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, rec.Type)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.message, rec.Message)
		})
	}
}

func TestRecordForEvent_BackupSucceededCarriesFile(t *testing.T) {
	rec, err := recordForEvent(model.BackupEvent{
		Kind: model.EventBackupSucceeded, FileName: "periodical-2024.zip", SizeBytes: 2048, UserID: "editor-1",
	})
	require.NoError(t, err)
	require.NotNil(t, rec.FileName)
	assert.Equal(t, "periodical-2024.zip", *rec.FileName)
	require.NotNil(t, rec.FileSize)
	assert.Equal(t, int64(2048), *rec.FileSize)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, "editor-1", *rec.UserID)
}

func TestRecordForEvent_Unknown(t *testing.T) {
	_, err := recordForEvent(model.BackupEvent{Kind: "exploded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backup event")
}

func TestBackupEventSubscriber_Handle(t *testing.T) {
	ledger := &mockLedger{}
	sub := NewBackupEventSubscriber(ledger)
	ctx := context.Background()

	ledger.On("Record", ctx, recordWith(model.HistoryTypeClean, model.HistoryStatusSuccess)).Return(nil)
	require.NoError(t, sub.Handle(ctx, model.BackupEvent{Kind: model.EventCleanupSucceeded}))
	ledger.AssertExpectations(t)
}

func TestBackupEventSubscriber_Handle_LedgerError(t *testing.T) {
	ledger := &mockLedger{}
	sub := NewBackupEventSubscriber(ledger)
	ctx := context.Background()

	ledger.On("Record", ctx, mock.Anything).Return(errors.New("db down"))
	require.Error(t, sub.Handle(ctx, model.BackupEvent{Kind: model.EventCleanupSucceeded}))
}
