package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/periodical/internal/model"
)

func TestHistoryService_Record(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()
	now := time.Now()

	name := "backup.zip"
	rec := &model.HistoryRecord{
		Type:     model.HistoryTypeRestore,
		Status:   model.HistoryStatusStarted,
		FileName: &name,
		Message:  "Restore process started.",
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{
		rec.Type, rec.Status, rec.FileName, rec.FileSize, rec.Message, rec.UserID,
	}).Return(&mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int64)) = 7
		*(dest[1].(*time.Time)) = now
		return nil
	}})

	require.NoError(t, svc.Record(ctx, rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	db.AssertExpectations(t)
}

func TestHistoryService_Record_Error(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return errors.New("db down") }})

	err := svc.Record(ctx, &model.HistoryRecord{Type: model.HistoryTypeCreate, Status: model.HistoryStatusQueued})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert backup history")
}

func TestHistoryService_ListRecent(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()
	now := time.Now()

	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*int64)) = 2
			*(dest[1].(*string)) = model.HistoryTypeRestore
			*(dest[2].(*string)) = model.HistoryStatusSuccess
			name := "backup.zip"
			*(dest[3].(**string)) = &name
			*(dest[5].(*string)) = "Backup restored successfully."
			*(dest[7].(*time.Time)) = now
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*int64)) = 1
			*(dest[1].(*string)) = model.HistoryTypeRestore
			*(dest[2].(*string)) = model.HistoryStatusStarted
			*(dest[7].(*time.Time)) = now.Add(-time.Minute)
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{DefaultHistoryLimit}).Return(rows, nil)

	records, err := svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, "backup.zip", *records[0].FileName)
	assert.Nil(t, records[1].FileName)
	db.AssertExpectations(t)
}

func TestHistoryService_ListRecent_ClampsLimit(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any{MaxHistoryLimit}).Return(newEmptyMockRows(), nil)

	records, err := svc.ListRecent(ctx, 5000)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
	db.AssertExpectations(t)
}

func TestHistoryService_ListRecent_QueryError(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("db down"))

	_, err := svc.ListRecent(ctx, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list backup history")
}
