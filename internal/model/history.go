package model

import "time"

// HistoryRecord is one append-only entry in the backup history ledger.
type HistoryRecord struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	FileName  *string   `json:"file_name"`
	FileSize  *int64    `json:"file_size"`
	Message   string    `json:"message"`
	UserID    *string   `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// History record types.
const (
	HistoryTypeCreate  = "create"
	HistoryTypeRestore = "restore"
	HistoryTypeClean   = "clean"
	HistoryTypeMonitor = "monitor"
	HistoryTypeUpload  = "upload"
)

// History record statuses.
const (
	HistoryStatusQueued  = "queued"
	HistoryStatusStarted = "started"
	HistoryStatusSuccess = "success"
	HistoryStatusFailed  = "failed"
)
