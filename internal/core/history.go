package core

import (
	"context"
	"fmt"

	"github.com/edvin/periodical/internal/model"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// HistoryService appends to and reads the backup history ledger. Records are
// never updated or deleted.
type HistoryService struct {
	db DB
}

func NewHistoryService(db DB) *HistoryService {
	return &HistoryService{db: db}
}

// Record inserts rec and fills in its ID and CreatedAt.
func (s *HistoryService) Record(ctx context.Context, rec *model.HistoryRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO backup_histories (type, status, file_name, file_size, message, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		rec.Type, rec.Status, rec.FileName, rec.FileSize, rec.Message, rec.UserID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert backup history: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first. Out-of-range limits
// fall back to DefaultHistoryLimit or are capped at MaxHistoryLimit.
func (s *HistoryService) ListRecent(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, type, status, file_name, file_size, message, user_id, created_at
		 FROM backup_histories ORDER BY created_at DESC, id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backup history: %w", err)
	}
	defer rows.Close()

	records := []model.HistoryRecord{}
	for rows.Next() {
		var r model.HistoryRecord
		if err := rows.Scan(&r.ID, &r.Type, &r.Status, &r.FileName, &r.FileSize, &r.Message, &r.UserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup history: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup history: %w", err)
	}
	return records, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt64(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}
