package model

import "time"

// BackupArchive is a zip archive in backup storage. It is derived from the
// filesystem on every listing and never persisted.
type BackupArchive struct {
	FileName   string    `json:"file_name"`
	SizeBytes  int64     `json:"size_bytes"`
	FileSize   string    `json:"file_size"`
	CreatedAt  string    `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Location   string    `json:"-"`
}

// Archive creation modes.
const (
	BackupModeFull = "full"
	BackupModeDB   = "db"
)

// ArchiveTimeLayout is the display format of BackupArchive.CreatedAt.
const ArchiveTimeLayout = "2006-01-02 15:04:05"

// CreateArchiveParams is the input of CreateArchiveWorkflow.
type CreateArchiveParams struct {
	Mode   string `json:"mode"`
	UserID string `json:"user_id,omitempty"`
}
