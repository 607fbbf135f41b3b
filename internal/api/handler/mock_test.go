package handler

import (
	"context"
	"io"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/restore"
)

// mockBackupService implements BackupService for handler tests.
type mockBackupService struct {
	mock.Mock
	uploaded string
}

func (m *mockBackupService) ListArchives() ([]model.BackupArchive, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupArchive), args.Error(1)
}

func (m *mockBackupService) OpenArchive(name string) (*os.File, model.BackupArchive, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, model.BackupArchive{}, args.Error(2)
	}
	return args.Get(0).(*os.File), args.Get(1).(model.BackupArchive), args.Error(2)
}

func (m *mockBackupService) ListHistory(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.HistoryRecord), args.Error(1)
}

func (m *mockBackupService) QueueCreate(ctx context.Context, mode, userID string) (string, error) {
	args := m.Called(ctx, mode, userID)
	return args.String(0), args.Error(1)
}

func (m *mockBackupService) Restore(ctx context.Context, name, userID string) (*restore.Result, error) {
	args := m.Called(ctx, name, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restore.Result), args.Error(1)
}

func (m *mockBackupService) UploadArchive(ctx context.Context, name string, r io.Reader, userID string) (model.BackupArchive, error) {
	b, _ := io.ReadAll(r)
	m.uploaded = string(b)
	args := m.Called(ctx, name, userID)
	return args.Get(0).(model.BackupArchive), args.Error(1)
}
