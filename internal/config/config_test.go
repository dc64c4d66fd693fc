package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Context)
	assert.Equal(t, "/var/backups/shopvault", cfg.ArchiveDir)
	assert.Equal(t, "/var/lib/shopvault", cfg.StateDir)
	assert.Equal(t, 7, cfg.RetainDaily)
	assert.Equal(t, 4, cfg.RetainWeekly)
	assert.Equal(t, 6, cfg.RetainMonthly)
	assert.Equal(t, 0, cfg.PBKDF2Iterations)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval)
	assert.Equal(t, 2*time.Hour, cfg.LockStaleAfter)
	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "shopvault/", cfg.S3.Prefix)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKUP_CONTEXT", "shop-staging")
	t.Setenv("RETAIN_DAILY", "14")
	t.Setenv("BACKUP_INTERVAL", "6h")
	t.Setenv("S3_BUCKET", "offsite-backups")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "shop-staging", cfg.Context)
	assert.Equal(t, 14, cfg.RetainDaily)
	assert.Equal(t, 6*time.Hour, cfg.BackupInterval)
	assert.Equal(t, "offsite-backups", cfg.S3.Bucket)
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("RETAIN_DAILY", "seven")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("BACKUP_INTERVAL", "everyday")
	_, err := Load()
	assert.Error(t, err)
}

func writeContexts(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contexts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func TestLoadContexts(t *testing.T) {
	path := writeContexts(t, `
contexts:
  - name: shop
    database_url: postgres://shop@db/shop
    blob_root: /srv/shop/uploads
    retention:
      daily: 14
  - name: shop-staging
    database_url: postgres://staging@db/shop
`)

	cf, err := LoadContexts(path)
	require.NoError(t, err)
	require.Len(t, cf.Contexts, 2)

	def := cf.Context("shop")
	require.NotNil(t, def)
	assert.Equal(t, "/srv/shop/uploads", def.BlobRoot)
	assert.Nil(t, cf.Context("nope"))
}

func TestLoadContexts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no contexts", "contexts: []\n"},
		{"missing name", "contexts:\n  - database_url: x\n"},
		{"name with space", "contexts:\n  - name: \"my shop\"\n"},
		{"name with slash", "contexts:\n  - name: a/b\n"},
		{"negative retention", "contexts:\n  - name: shop\n    retention:\n      daily: -1\n"},
		{"not yaml", "{{{{\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadContexts(writeContexts(t, tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestContextDef_Apply(t *testing.T) {
	cfg := &Config{
		Context:      "shop",
		DatabaseURL:  "postgres://base@db/shop",
		RetainDaily:  7,
		RetainWeekly: 4,
	}

	def := &ContextDef{
		Name:      "shop-staging",
		BlobRoot:  "/srv/staging/uploads",
		Retention: RetentionDef{Daily: 3},
	}
	def.Apply(cfg)

	assert.Equal(t, "shop-staging", cfg.Context)
	assert.Equal(t, "/srv/staging/uploads", cfg.BlobRoot)
	assert.Equal(t, "postgres://base@db/shop", cfg.DatabaseURL, "unset fields keep the base value")
	assert.Equal(t, 3, cfg.RetainDaily)
	assert.Equal(t, 4, cfg.RetainWeekly)
}
