package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Context names the backup set; it is embedded in archive names so
	// several environments can share an archive directory.
	Context string

	DatabaseURL string
	BlobRoot    string
	ConfigDir   string

	ArchiveDir string
	StateDir   string

	Passphrase       string
	PBKDF2Iterations int

	RetainDaily   int
	RetainWeekly  int
	RetainMonthly int

	HealthCheckURL string
	HTTPListenAddr string
	BackupInterval time.Duration
	LockStaleAfter time.Duration

	LogLevel string

	S3 S3Config
}

// S3Config enables offsite replication of sealed envelopes when Bucket
// is set.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		Context:        getEnv("BACKUP_CONTEXT", "shop"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		BlobRoot:       getEnv("BLOB_ROOT", ""),
		ConfigDir:      getEnv("CONFIG_SNAPSHOT_DIR", ""),
		ArchiveDir:     getEnv("ARCHIVE_DIR", "/var/backups/shopvault"),
		StateDir:       getEnv("STATE_DIR", "/var/lib/shopvault"),
		Passphrase:     getEnv("BACKUP_PASSPHRASE", ""),
		HealthCheckURL: getEnv("HEALTHCHECK_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Prefix:    getEnv("S3_PREFIX", "shopvault/"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
	}

	var err error
	if cfg.RetainDaily, err = getEnvInt("RETAIN_DAILY", 7); err != nil {
		return nil, err
	}
	if cfg.RetainWeekly, err = getEnvInt("RETAIN_WEEKLY", 4); err != nil {
		return nil, err
	}
	if cfg.RetainMonthly, err = getEnvInt("RETAIN_MONTHLY", 6); err != nil {
		return nil, err
	}
	if cfg.PBKDF2Iterations, err = getEnvInt("PBKDF2_ITERATIONS", 0); err != nil {
		return nil, err
	}
	if cfg.BackupInterval, err = getEnvDuration("BACKUP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LockStaleAfter, err = getEnvDuration("LOCK_STALE_AFTER", 2*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
