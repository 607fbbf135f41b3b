package core

import (
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
)

type Services struct {
	APIKey  *APIKeyService
	History *HistoryService
	Backup  *BackupService
	Events  *BackupEventSubscriber
}

func NewServices(logger zerolog.Logger, db DB, tc temporalclient.Client, store ArchiveStore, restorer Restorer) *Services {
	history := NewHistoryService(db)
	return &Services{
		APIKey:  NewAPIKeyService(db),
		History: history,
		Backup:  NewBackupService(logger, store, history, tc, restorer),
		Events:  NewBackupEventSubscriber(history),
	}
}
