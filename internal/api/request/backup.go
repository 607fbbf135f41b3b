package request

// CreateBackup queues a new archive. An empty mode means "full"; the mode is
// checked by the service so that an unknown value maps to 422.
type CreateBackup struct {
	Mode string `json:"mode" validate:"omitempty,max=16"`
}

type RestoreBackup struct {
	FileName string `json:"file_name" validate:"required,max=255"`
}
