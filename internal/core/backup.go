package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/periodical/internal/backup"
	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/platform"
	"github.com/edvin/periodical/internal/restore"
)

// BackupTaskQueue is the Temporal task queue served by the backup worker.
const BackupTaskQueue = "backup-tasks"

// ArchiveStore is the backup directory.
type ArchiveStore interface {
	List() ([]model.BackupArchive, error)
	Open(name string) (*os.File, model.BackupArchive, error)
	Save(name string, r io.Reader) (model.BackupArchive, error)
}

// HistoryLedger reads and appends backup history.
type HistoryLedger interface {
	HistoryRecorder
	ListRecent(ctx context.Context, limit int) ([]model.HistoryRecord, error)
}

// Restorer runs a synchronous restore.
type Restorer interface {
	Restore(ctx context.Context, req restore.Request) (*restore.Result, error)
}

type BackupService struct {
	logger   zerolog.Logger
	store    ArchiveStore
	history  HistoryLedger
	tc       temporalclient.Client
	restorer Restorer
}

func NewBackupService(logger zerolog.Logger, store ArchiveStore, history HistoryLedger, tc temporalclient.Client, restorer Restorer) *BackupService {
	return &BackupService{
		logger:   logger.With().Str("component", "backup-service").Logger(),
		store:    store,
		history:  history,
		tc:       tc,
		restorer: restorer,
	}
}

func (s *BackupService) ListArchives() ([]model.BackupArchive, error) {
	archives, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return archives, nil
}

// OpenArchive opens name for download. The caller closes the file.
func (s *BackupService) OpenArchive(name string) (*os.File, model.BackupArchive, error) {
	return s.store.Open(name)
}

func (s *BackupService) ListHistory(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	return s.history.ListRecent(ctx, limit)
}

// QueueCreate records the request and starts CreateArchiveWorkflow. An empty
// mode means a full backup. It returns the workflow ID.
func (s *BackupService) QueueCreate(ctx context.Context, mode, userID string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = model.BackupModeFull
	}
	if !backup.ValidMode(mode) {
		return "", backup.ErrInvalidMode
	}

	s.record(ctx, &model.HistoryRecord{
		Type:    model.HistoryTypeCreate,
		Status:  model.HistoryStatusQueued,
		Message: fmt.Sprintf("Manual backup (%s) queued.", mode),
		UserID:  optString(userID),
	})

	workflowID := platform.NewName("create-archive-")
	_, err := s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: BackupTaskQueue,
	}, "CreateArchiveWorkflow", model.CreateArchiveParams{Mode: mode, UserID: userID})
	if err != nil {
		s.record(ctx, &model.HistoryRecord{
			Type:    model.HistoryTypeCreate,
			Status:  model.HistoryStatusFailed,
			Message: err.Error(),
			UserID:  optString(userID),
		})
		return "", fmt.Errorf("start CreateArchiveWorkflow: %w", err)
	}
	return workflowID, nil
}

// Restore runs a restore of name. It blocks until the run has finished.
func (s *BackupService) Restore(ctx context.Context, name, userID string) (*restore.Result, error) {
	return s.restorer.Restore(ctx, restore.Request{FileName: name, UserID: userID})
}

// UploadArchive stores an externally produced archive under name.
func (s *BackupService) UploadArchive(ctx context.Context, name string, r io.Reader, userID string) (model.BackupArchive, error) {
	a, err := s.store.Save(name, r)
	if err != nil {
		return model.BackupArchive{}, err
	}
	size := a.SizeBytes
	s.record(ctx, &model.HistoryRecord{
		Type:     model.HistoryTypeUpload,
		Status:   model.HistoryStatusSuccess,
		FileName: optString(a.FileName),
		FileSize: &size,
		Message:  "External backup uploaded successfully.",
		UserID:   optString(userID),
	})
	return a, nil
}

func (s *BackupService) record(ctx context.Context, rec *model.HistoryRecord) {
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("type", rec.Type).Str("status", rec.Status).Msg("failed to write backup history record")
	}
}
