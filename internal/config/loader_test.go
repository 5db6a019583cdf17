package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, fromFile, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.False(t, fromFile)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(100<<20), cfg.Upload.MaxSizeBytes())
	assert.Equal(t, []string{".csv", ".json", ".xlsx", ".xls"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, BackendFile, cfg.Learning.Backend)
	assert.Equal(t, 256, cfg.Review.MaxSessions)
	assert.Equal(t, "accessmap", cfg.Database.DBName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9090"
  write_timeout: 2m
upload:
  max_size_mb: 5
learning:
  backend: SQLite
  sqlite_path: /tmp/learned.db
database:
  host: db.internal
  port: 6543
log:
  format: console
`)
	t.Setenv("ACCESSMAP_SERVER_ADDR", ":7070")
	t.Setenv("ACCESSMAP_DATABASE_PORT", "7000")

	cfg, fromFile, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, fromFile)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 5, cfg.Upload.MaxSizeMB)
	assert.Equal(t, BackendSQLite, cfg.Learning.Backend)
	assert.Equal(t, "/tmp/learned.db", cfg.Learning.SQLitePath)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 7000, cfg.Database.Port)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "learning:\n  backend: redis\n",
		"zero upload":     "upload:\n  max_size_mb: 0\n",
		"zero sessions":   "review:\n  max_sessions: 0\n",
		"malformed yaml":  "server: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadDBConfig(t *testing.T) {
	dir := writeConfig(t, "database:\n  user: reader\n  sslmode: require\n")

	cfg, err := LoadDBConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "reader", cfg.User)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, 5432, cfg.Port)
}
