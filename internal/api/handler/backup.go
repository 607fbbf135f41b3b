package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"time"

	mw "github.com/edvin/periodical/internal/api/middleware"
	"github.com/edvin/periodical/internal/api/request"
	"github.com/edvin/periodical/internal/api/response"
	"github.com/edvin/periodical/internal/backup"
	"github.com/edvin/periodical/internal/core"
	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/restore"
)

// BackupService is the part of core.BackupService the handler uses.
type BackupService interface {
	ListArchives() ([]model.BackupArchive, error)
	OpenArchive(name string) (*os.File, model.BackupArchive, error)
	ListHistory(ctx context.Context, limit int) ([]model.HistoryRecord, error)
	QueueCreate(ctx context.Context, mode, userID string) (string, error)
	Restore(ctx context.Context, name, userID string) (*restore.Result, error)
	UploadArchive(ctx context.Context, name string, r io.Reader, userID string) (model.BackupArchive, error)
}

var _ BackupService = (*core.BackupService)(nil)

// DownloadPath is the route archives are served from.
const DownloadPath = "/api/v1/backups/download"

// Backup serves the backup management endpoints.
type Backup struct {
	svc BackupService
}

func NewBackup(svc BackupService) *Backup {
	return &Backup{svc: svc}
}

type archiveResponse struct {
	FileName     string `json:"file_name"`
	FileSize     string `json:"file_size"`
	SizeBytes    int64  `json:"size_bytes"`
	CreatedAt    string `json:"created_at"`
	DownloadLink string `json:"download_link"`
}

// List returns every archive, newest first.
func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	archives, err := h.svc.ListArchives()
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]archiveResponse, 0, len(archives))
	for _, a := range archives {
		out = append(out, archiveResponse{
			FileName:     a.FileName,
			FileSize:     a.FileSize,
			SizeBytes:    a.SizeBytes,
			CreatedAt:    a.CreatedAt,
			DownloadLink: DownloadPath + "?file_name=" + url.QueryEscape(a.FileName),
		})
	}
	response.WriteJSON(w, http.StatusOK, out)
}

// History returns the most recent ledger records.
func (h *Backup) History(w http.ResponseWriter, r *http.Request) {
	limit := request.ParseLimit(r, core.DefaultHistoryLimit, core.MaxHistoryLimit)

	records, err := h.svc.ListHistory(r.Context(), limit)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, records)
}

// Download streams an archive as an attachment.
func (h *Backup) Download(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireQuery(r, "file_name")
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, a, err := h.svc.OpenArchive(name)
	if err != nil {
		writeBackupError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	http.ServeContent(w, r, a.FileName, a.ModifiedAt, f)
}

// Upload stores the multipart field "file" as a new archive. The part is
// streamed to disk without buffering the whole body.
func (h *Backup) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart body: %s", err))
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		a, err := h.svc.UploadArchive(r.Context(), part.FileName(), part, mw.UserID(r.Context()))
		part.Close()
		if err != nil {
			writeBackupError(w, err)
			return
		}
		response.WriteSuccess(w, http.StatusCreated, "External backup uploaded successfully.", map[string]any{
			"file_name": a.FileName,
			"file_size": a.FileSize,
		})
		return
	}

	response.WriteError(w, http.StatusBadRequest, "file is required")
}

// Create queues a new archive. The archive is written by the worker.
func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflowID, err := h.svc.QueueCreate(r.Context(), req.Mode, mw.UserID(r.Context()))
	if err != nil {
		writeBackupError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusAccepted, "Backup process has been queued and will run in the background.", map[string]any{
		"workflow_id": workflowID,
	})
}

// Restore replaces the live site with an archive. It blocks until the
// restore has finished, so the server write deadline is lifted first.
func (h *Backup) Restore(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	var req request.RestoreBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Restore(r.Context(), req.FileName, mw.UserID(r.Context()))
	if err != nil {
		writeBackupError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, "Backup restored successfully", map[string]any{
		"file_name": res.FileName,
		"snapshot":  res.Snapshot,
	})
}

func writeBackupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backup.ErrNotArchive):
		response.WriteError(w, http.StatusUnprocessableEntity, "File must be a zip archive.")
	case errors.Is(err, backup.ErrInvalidMode):
		response.WriteError(w, http.StatusUnprocessableEntity, "Invalid mode. Allowed values: full, db")
	case errors.Is(err, backup.ErrInvalidName):
		response.WriteError(w, http.StatusUnprocessableEntity, "Invalid file name")
	case errors.Is(err, backup.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "Backup file not found")
	case errors.Is(err, backup.ErrExists):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, restore.ErrInProgress):
		response.WriteError(w, http.StatusConflict, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
