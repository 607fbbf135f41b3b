package activity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/periodical/internal/backup"
	"github.com/edvin/periodical/internal/model"
)

type fakeCreator struct {
	mode string
	err  error
}

func (c *fakeCreator) Create(_ context.Context, mode, _ string) (model.BackupArchive, error) {
	c.mode = mode
	if c.err != nil {
		return model.BackupArchive{}, c.err
	}
	return model.BackupArchive{FileName: "2024-05-01-02-00-00.zip", SizeBytes: 4096}, nil
}

type fakeOffsite struct {
	put     map[string]string
	deleted []string
	err     error
}

func (o *fakeOffsite) PutArchive(_ context.Context, path, name string) error {
	if o.err != nil {
		return o.err
	}
	if o.put == nil {
		o.put = map[string]string{}
	}
	o.put[name] = path
	return nil
}

func (o *fakeOffsite) DeleteArchive(_ context.Context, name string) error {
	o.deleted = append(o.deleted, name)
	return o.err
}

type fakeEvents struct {
	events []model.BackupEvent
}

func (e *fakeEvents) Handle(_ context.Context, ev model.BackupEvent) error {
	e.events = append(e.events, ev)
	return nil
}

var testNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func writeArchive(t *testing.T, dir, name string, size int, modified time.Time) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(p, modified, modified))
}

func newTestBackup(t *testing.T, offsite OffsiteStore) (*Backup, string) {
	t.Helper()
	dir := t.TempDir()
	a := NewBackup(zerolog.Nop(), &fakeCreator{}, backup.NewStorage(dir, ""), offsite, &fakeEvents{}, BackupConfig{
		Name:          "periodical",
		MaxAge:        26 * time.Hour,
		RetentionDays: 14,
	})
	a.now = func() time.Time { return testNow }
	return a, dir
}

func TestCreateArchive(t *testing.T) {
	creator := &fakeCreator{}
	a := NewBackup(zerolog.Nop(), creator, backup.NewStorage(t.TempDir(), ""), nil, &fakeEvents{}, BackupConfig{})

	arc, err := a.CreateArchive(context.Background(), model.CreateArchiveParams{Mode: model.BackupModeDB})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01-02-00-00.zip", arc.FileName)
	assert.Equal(t, model.BackupModeDB, creator.mode)
}

func TestCreateArchive_Error(t *testing.T) {
	a := NewBackup(zerolog.Nop(), &fakeCreator{err: errors.New("dump database: denied")}, backup.NewStorage(t.TempDir(), ""), nil, &fakeEvents{}, BackupConfig{})

	_, err := a.CreateArchive(context.Background(), model.CreateArchiveParams{Mode: model.BackupModeFull})
	require.EqualError(t, err, "dump database: denied")
}

func TestCopyArchiveOffsite(t *testing.T) {
	offsite := &fakeOffsite{}
	a, dir := newTestBackup(t, offsite)
	writeArchive(t, dir, "a.zip", 10, testNow)

	require.NoError(t, a.CopyArchiveOffsite(context.Background(), "a.zip"))
	assert.Equal(t, filepath.Join(dir, "a.zip"), offsite.put["a.zip"])
}

func TestCopyArchiveOffsite_Disabled(t *testing.T) {
	a, _ := newTestBackup(t, nil)
	require.NoError(t, a.CopyArchiveOffsite(context.Background(), "missing.zip"))
}

func TestCopyArchiveOffsite_UnknownArchive(t *testing.T) {
	a, _ := newTestBackup(t, &fakeOffsite{})
	err := a.CopyArchiveOffsite(context.Background(), "missing.zip")
	require.ErrorIs(t, err, backup.ErrNotFound)
}

func TestCheckArchiveHealth(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		healthy bool
		reason  string
	}{
		{
			name:   "no archives",
			setup:  func(t *testing.T, dir string) {},
			reason: "No backups present.",
		},
		{
			name: "fresh archive",
			setup: func(t *testing.T, dir string) {
				writeArchive(t, dir, "new.zip", 100, testNow.Add(-time.Hour))
			},
			healthy: true,
		},
		{
			name: "stale archive",
			setup: func(t *testing.T, dir string) {
				writeArchive(t, dir, "old.zip", 100, testNow.Add(-30*time.Hour))
			},
			reason: "The latest backup old.zip is 30h0m0s old.",
		},
		{
			name: "empty archive",
			setup: func(t *testing.T, dir string) {
				writeArchive(t, dir, "empty.zip", 0, testNow.Add(-time.Hour))
			},
			reason: "The latest backup empty.zip is empty.",
		},
		{
			name: "only snapshot is fresh",
			setup: func(t *testing.T, dir string) {
				writeArchive(t, dir, "old.zip", 100, testNow.Add(-48*time.Hour))
				writeArchive(t, dir, "pre-restore-2024-05-20-11-00-00.zip", 100, testNow.Add(-time.Hour))
			},
			reason: "The latest backup old.zip is 48h0m0s old.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, dir := newTestBackup(t, nil)
			tt.setup(t, dir)

			report, err := a.CheckArchiveHealth(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.healthy, report.Healthy)
			assert.Equal(t, tt.reason, report.Reason)
		})
	}
}

func TestCleanupArchives(t *testing.T) {
	offsite := &fakeOffsite{}
	a, dir := newTestBackup(t, offsite)
	writeArchive(t, dir, "recent.zip", 10, testNow.Add(-24*time.Hour))
	writeArchive(t, dir, "expired-1.zip", 20, testNow.AddDate(0, 0, -15))
	writeArchive(t, dir, "expired-2.zip", 30, testNow.AddDate(0, 0, -30))

	res, err := a.CleanupArchives(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"expired-1.zip", "expired-2.zip"}, res.Removed)
	assert.Equal(t, int64(50), res.FreedBytes)
	assert.ElementsMatch(t, []string{"expired-1.zip", "expired-2.zip"}, offsite.deleted)
	assert.FileExists(t, filepath.Join(dir, "recent.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "expired-1.zip"))
}

func TestCleanupArchives_KeepsNewestEvenWhenExpired(t *testing.T) {
	a, dir := newTestBackup(t, nil)
	writeArchive(t, dir, "only.zip", 10, testNow.AddDate(0, 0, -60))

	res, err := a.CleanupArchives(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.FileExists(t, filepath.Join(dir, "only.zip"))
}

func TestCleanupArchives_SnapshotDoesNotShieldFullArchive(t *testing.T) {
	a, dir := newTestBackup(t, nil)
	writeArchive(t, dir, "2024-04-30-02-00-00.zip", 10, testNow.AddDate(0, 0, -20))
	writeArchive(t, dir, "pre-restore-2024-05-19-10-00-00.zip", 10, testNow.Add(-26*time.Hour))
	writeArchive(t, dir, "pre-restore-2024-04-01-10-00-00.zip", 10, testNow.AddDate(0, 0, -49))

	res, err := a.CleanupArchives(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-restore-2024-04-01-10-00-00.zip"}, res.Removed)
	assert.FileExists(t, filepath.Join(dir, "2024-04-30-02-00-00.zip"))
	assert.FileExists(t, filepath.Join(dir, "pre-restore-2024-05-19-10-00-00.zip"))
}

func TestCleanupArchives_OffsiteErrorIsNotFatal(t *testing.T) {
	a, dir := newTestBackup(t, &fakeOffsite{err: errors.New("403")})
	writeArchive(t, dir, "recent.zip", 10, testNow)
	writeArchive(t, dir, "expired.zip", 10, testNow.AddDate(0, 0, -20))

	res, err := a.CleanupArchives(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"expired.zip"}, res.Removed)
}

func TestPublishBackupEvent(t *testing.T) {
	events := &fakeEvents{}
	a := NewBackup(zerolog.Nop(), &fakeCreator{}, backup.NewStorage(t.TempDir(), ""), nil, events, BackupConfig{})

	ev := model.BackupEvent{Kind: model.EventCleanupSucceeded}
	require.NoError(t, a.PublishBackupEvent(context.Background(), ev))
	assert.Equal(t, []model.BackupEvent{ev}, events.events)
}
