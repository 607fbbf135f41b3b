package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BACKUP_CONFIG_FILE", "CORE_DATABASE_URL", "TEMPORAL_ADDRESS", "HTTP_LISTEN_ADDR",
		"LOG_LEVEL", "MYSQL_DSN", "BACKUP_DIR", "PUBLIC_STORAGE_DIR", "BACKUP_WORKSPACE_DIR",
		"BACKUP_RETENTION_DAYS", "BACKUP_MAX_AGE", "OFFSITE_S3_BUCKET", "OFFSITE_S3_ENDPOINT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:7233", cfg.TemporalAddress)
	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.MySQLDSN)
	assert.Equal(t, "mysql", cfg.MySQLBinary)
	assert.Equal(t, "mysqldump", cfg.MySQLDumpBinary)
	assert.Equal(t, "storage/app/public", cfg.PublicStorageDir)
	assert.Equal(t, "storage/app/backup-temp", cfg.WorkspaceDir)
	assert.Equal(t, 14, cfg.BackupRetentionDays)
	assert.Equal(t, 26*time.Hour, cfg.BackupMaxAge)
	assert.False(t, cfg.OffsiteEnabled())
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORE_DATABASE_URL", "postgres://core:5432/coredb")
	t.Setenv("TEMPORAL_ADDRESS", "temporal.example.com:7233")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("MYSQL_DSN", "magazine:secret@tcp(db:3306)/magazine")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKUP_DIR", "/srv/backups")
	t.Setenv("BACKUP_RETENTION_DAYS", "30")
	t.Setenv("BACKUP_MAX_AGE", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://core:5432/coredb", cfg.CoreDatabaseURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalAddress)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "magazine:secret@tcp(db:3306)/magazine", cfg.MySQLDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/backups", cfg.BackupDir)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
	assert.Equal(t, 48*time.Hour, cfg.BackupMaxAge)
}

func TestLoad_InvalidRetention(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKUP_RETENTION_DAYS", "two weeks")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_RETENTION_DAYS")
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
BACKUP_DIR: /from/file
MYSQL_DSN: "file:pw@tcp(db:3306)/magazine"
BACKUP_RETENTION_DAYS: "7"
`), 0o600))
	t.Setenv("BACKUP_CONFIG_FILE", path)
	t.Setenv("MYSQL_DSN", "env:pw@tcp(db:3306)/magazine")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.BackupDir)
	assert.Equal(t, 7, cfg.BackupRetentionDays)
	// Environment wins over the file.
	assert.Equal(t, "env:pw@tcp(db:3306)/magazine", cfg.MySQLDSN)
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKUP_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate_MagazineAPI_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("magazine-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORE_DATABASE_URL")
	assert.Contains(t, err.Error(), "TEMPORAL_ADDRESS")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "MYSQL_DSN")
}

func TestValidate_Worker_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORE_DATABASE_URL")
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.NotContains(t, err.Error(), "HTTP_LISTEN_ADDR")
}

func validConfig() *Config {
	return &Config{
		CoreDatabaseURL:     "postgres://localhost/db",
		TemporalAddress:     "localhost:7233",
		HTTPListenAddr:      ":8090",
		MySQLDSN:            "root@tcp(localhost:3306)/magazine",
		BackupDir:           "/srv/backups",
		PublicStorageDir:    "/srv/storage/app/public",
		WorkspaceDir:        "/srv/storage/app/backup-temp",
		BackupRetentionDays: 14,
	}
}

func TestValidate_TLS_MismatchedCertKey(t *testing.T) {
	cfg := validConfig()
	cfg.TemporalTLSCert = "/path/to/cert.pem"

	err := cfg.Validate("magazine-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
}

func TestValidate_OffsiteNeedsEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.OffsiteS3Bucket = "magazine-backups"

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OFFSITE_S3_ENDPOINT")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validConfig()
	cfg.TemporalTLSCert = "/path/to/cert.pem"
	cfg.TemporalTLSKey = "/path/to/key.pem"

	assert.NoError(t, cfg.Validate("magazine-api"))
	assert.NoError(t, cfg.Validate("worker"))
	assert.NoError(t, cfg.Validate("backupctl"))
}
