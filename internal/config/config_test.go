package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, AppConfig{
		Backend:   BackendBolt,
		DBPath:    "draftkeeper.db",
		StoreName: "drafts",
		ServerURL: "http://localhost:8080",
		LogLevel:  "info",
	}, cfg)

	storageCfg := cfg.StorageConfig()
	assert.Equal(t, "draftkeeper.db/drafts", storageCfg.Namespace())
	assert.Empty(t, storageCfg.ClientID)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DRAFTKEEPER_STORAGE_BACKEND", "SQLite")
	t.Setenv("DRAFTKEEPER_CLIENT_ID", " admin-web ")
	t.Setenv("DRAFTKEEPER_SERVER_URL", "https://drafts.example.com/")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "admin-web", cfg.ClientID)
	assert.Equal(t, "https://drafts.example.com", cfg.ServerURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftkeeper.yaml")
	content := "storage:\n  db: /tmp/admin.db\n  store: admin\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	v := NewViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/admin.db", cfg.DBPath)
	assert.Equal(t, "admin", cfg.StoreName)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "storage.backend", "redis"},
		{"empty db", "storage.db", " "},
		{"empty store", "storage.store", ""},
		{"empty server", "server.url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViper()
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}
