package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/model"
)

func setBase(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("MAIL_TRANSPORT", "")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Dev())
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "estock.db", cfg.SQLitePath)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, "/login_main.html", cfg.LoginURL)
	assert.Equal(t, "/index.html", cfg.DefaultPageURL)
	assert.Equal(t, "http://localhost:8080/reset_password.html", cfg.ResetURL)
	assert.Equal(t, "E-Stock", cfg.Mail.BrandName)
	assert.Equal(t, TransportDirect, cfg.Mail.Transport)
	assert.False(t, cfg.Mail.Configured())
}

func TestLoadReportsAllMissing(t *testing.T) {
	setBase(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "estock")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.NotContains(t, err.Error(), "DB_PORT")
}

func TestLoadRejectsQueueWithoutBroker(t *testing.T) {
	setBase(t)
	t.Setenv("MAIL_TRANSPORT", "queue")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MAIL_TRANSPORT", "carrier-pigeon")
	_, err = Load()
	assert.Error(t, err)
}

func TestMailConfigured(t *testing.T) {
	assert.False(t, MailConfig{Transport: TransportDirect, From: "a@b.c"}.Configured())
	assert.True(t, MailConfig{Transport: TransportDirect, From: "a@b.c", SendGridAPIKey: "k"}.Configured())
	assert.True(t, MailConfig{Transport: TransportLog, From: "a@b.c"}.Configured())
	assert.False(t, MailConfig{Transport: TransportLog}.Configured())
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestRedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_HOST", "")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	assert.Equal(t, "redis:6379", LoadRedisConfig().Addr)
	assert.Nil(t, NewRedisClient(RedisConfig{}))
}

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()
	names := make([]string, len(cat))
	for i, c := range cat {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"office", "ppe", "souvenir", "supplier"}, names)
	assert.Equal(t, model.ExportAll, cat[0].ExportScope)
	assert.Equal(t, 10, cat[0].PageSize)
	assert.Equal(t, model.ExportFiltered, cat[3].ExportScope)
	assert.Equal(t, 25, cat[3].PageSize)
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	cat, err := LoadCatalog(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, cat, 4)

	path := filepath.Join(dir, "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collections:
  - name: tools
    fields:
      - key: code
        required: true
      - key: qtyIn
        kind: number
    total:
      add: [qtyIn]
    export_scope: filtered
    page_size: 7
`), 0o600))
	cat, err = LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat, 1)
	assert.Equal(t, "tools", cat[0].Title)
	assert.Equal(t, "code", cat[0].Fields[0].Label)
	assert.Equal(t, model.KindText, cat[0].Fields[0].Kind)
	assert.Equal(t, 10, cat[0].PageSize)
	assert.True(t, cat[0].Total.Enabled())
}

func TestParseCatalogRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":     "collections: []",
		"unknown":   "collections:\n  - name: a\n    colour: red\n    fields: [{key: x}]",
		"duplicate": "collections:\n  - name: a\n    fields: [{key: x}]\n  - name: a\n    fields: [{key: y}]",
		"reserved":  "collections:\n  - name: users\n    fields: [{key: x}]",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}
