package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "8888", cfg.Port)
	assert.Equal(t, DefaultCodeAssistEndpoint, cfg.CodeAssistEndpoint)
	assert.Equal(t, 600, cfg.StreamTimeoutSec)
	assert.Greater(t, cfg.StreamTimeoutSec, cfg.RequestTimeoutSec,
		"stream deadline must be materially longer than the unary one")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 0.0.0.0
port: "9000"
auth_password: hunter2
accounts_dir: /tmp/accts
`), 0o644))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "hunter2", cfg.AuthPassword)
	assert.Equal(t, "/tmp/accts", cfg.AccountsDir)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultCodeAssistEndpoint, cfg.CodeAssistEndpoint)
}

func TestMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8888", cfg.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\n"), 0o644))

	t.Setenv("PORT", "7777")
	t.Setenv("GEMINI_AUTH_PASSWORD", "from-env")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-proj")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Port)
	assert.Equal(t, "from-env", cfg.AuthPassword)
	assert.Equal(t, "env-proj", cfg.GoogleProjectID)
}

func TestValidateAndExpandPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.AccountsDir = filepath.Join(dir, "accounts")

	require.NoError(t, cfg.ValidateAndExpandPaths())
	assert.True(t, filepath.IsAbs(cfg.AccountsDir))
	info, err := os.Stat(cfg.AccountsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
