package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName     string
	SiteName        string
	CoreDatabaseURL string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string

	// MySQLDSN points at the magazine content database in go-sql-driver
	// format, e.g. "user:pass@tcp(db:3306)/magazine".
	MySQLDSN        string
	MySQLBinary     string
	MySQLDumpBinary string

	// BackupDir holds the archives. Uploaded and generated archives land here.
	BackupDir string
	// BackupLegacyDir is searched for downloads not found in BackupDir.
	BackupLegacyDir string
	// PublicStorageDir is the live public file tree replaced by a restore.
	PublicStorageDir string
	// WorkspaceDir holds per-restore scratch directories and the restore lock.
	// It must share a filesystem with PublicStorageDir.
	WorkspaceDir    string
	MaintenanceFile string
	CacheDir        string

	BackupRetentionDays int
	BackupMaxAge        time.Duration

	OffsiteS3Endpoint  string
	OffsiteS3Region    string
	OffsiteS3Bucket    string
	OffsiteS3AccessKey string
	OffsiteS3SecretKey string

	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string
}

// Load reads configuration from the environment. When BACKUP_CONFIG_FILE
// points at a YAML file of KEY: value pairs, those values are used for any
// key not set in the environment.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("BACKUP_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	get := func(key, fallback string) string {
		return getEnv(key, file.get(key, fallback))
	}

	cfg := &Config{
		ServiceName:      get("SERVICE_NAME", ""),
		SiteName:         get("SITE_NAME", "periodical"),
		CoreDatabaseURL:  get("CORE_DATABASE_URL", ""),
		TemporalAddress:  get("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:   get("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:      get("METRICS_ADDR", ""),
		LogLevel:         get("LOG_LEVEL", "info"),
		MySQLDSN:         get("MYSQL_DSN", ""),
		MySQLBinary:      get("MYSQL_BINARY", "mysql"),
		MySQLDumpBinary:  get("MYSQLDUMP_BINARY", "mysqldump"),
		BackupDir:        get("BACKUP_DIR", "storage/app/periodical"),
		BackupLegacyDir:  get("BACKUP_LEGACY_DIR", ""),
		PublicStorageDir: get("PUBLIC_STORAGE_DIR", "storage/app/public"),
		WorkspaceDir:     get("BACKUP_WORKSPACE_DIR", "storage/app/backup-temp"),
		MaintenanceFile:  get("MAINTENANCE_FILE", "storage/framework/down"),
		CacheDir:         get("CACHE_DIR", "storage/framework/cache"),

		OffsiteS3Endpoint:  get("OFFSITE_S3_ENDPOINT", ""),
		OffsiteS3Region:    get("OFFSITE_S3_REGION", "us-east-1"),
		OffsiteS3Bucket:    get("OFFSITE_S3_BUCKET", ""),
		OffsiteS3AccessKey: get("OFFSITE_S3_ACCESS_KEY", ""),
		OffsiteS3SecretKey: get("OFFSITE_S3_SECRET_KEY", ""),

		TemporalTLSCert:       get("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        get("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     get("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: get("TEMPORAL_TLS_SERVER_NAME", ""),
	}

	cfg.BackupRetentionDays, err = strconv.Atoi(get("BACKUP_RETENTION_DAYS", "14"))
	if err != nil {
		return nil, fmt.Errorf("parse BACKUP_RETENTION_DAYS: %w", err)
	}
	cfg.BackupMaxAge, err = time.ParseDuration(get("BACKUP_MAX_AGE", "26h"))
	if err != nil {
		return nil, fmt.Errorf("parse BACKUP_MAX_AGE: %w", err)
	}

	return cfg, nil
}

// Validate checks that the settings required by the given binary are present.
func (c *Config) Validate(service string) error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	switch service {
	case "magazine-api":
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		require("MYSQL_DSN", c.MySQLDSN)
	case "worker":
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("MYSQL_DSN", c.MySQLDSN)
	case "backupctl":
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("MYSQL_DSN", c.MySQLDSN)
	}
	require("BACKUP_DIR", c.BackupDir)
	require("PUBLIC_STORAGE_DIR", c.PublicStorageDir)
	require("BACKUP_WORKSPACE_DIR", c.WorkspaceDir)

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}
	if c.OffsiteS3Bucket != "" && c.OffsiteS3Endpoint == "" {
		return fmt.Errorf("OFFSITE_S3_ENDPOINT is required when OFFSITE_S3_BUCKET is set")
	}
	if c.BackupRetentionDays < 1 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must be at least 1")
	}
	return nil
}

// OffsiteEnabled reports whether new archives are mirrored to S3.
func (c *Config) OffsiteEnabled() bool {
	return c.OffsiteS3Bucket != ""
}

type fileValues map[string]string

func (f fileValues) get(key, fallback string) string {
	if v, ok := f[key]; ok && v != "" {
		return v
	}
	return fallback
}

func loadFile(path string) (fileValues, error) {
	if path == "" {
		return fileValues{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var values fileValues
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if values == nil {
		values = fileValues{}
	}
	return values, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
