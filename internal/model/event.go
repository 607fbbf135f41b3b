package model

// Backup lifecycle events emitted by the background worker.
const (
	EventBackupSucceeded  = "backup_succeeded"
	EventBackupFailed     = "backup_failed"
	EventCleanupSucceeded = "cleanup_succeeded"
	EventCleanupFailed    = "cleanup_failed"
	EventHealthyBackup    = "healthy_backup_found"
	EventUnhealthyBackup  = "unhealthy_backup_found"
	EventOffsiteFailed    = "offsite_copy_failed"
)

// BackupEvent reports the outcome of background backup work. The subscriber
// turns each one into exactly one history record.
type BackupEvent struct {
	Kind string `json:"kind"`
	// BackupName is the site whose archives a monitor event is about.
	BackupName string `json:"backup_name,omitempty"`
	Mode       string `json:"mode,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Error      string `json:"error,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}
