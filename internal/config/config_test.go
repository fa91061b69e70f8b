package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "igord.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"session_root": "/tmp/sessions", "hook_dir": "/tmp/hooks"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, 10, cfg.WatchdogIntervalSeconds)
	assert.Equal(t, 300, cfg.CleanupAgeSeconds)
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeConfig(t, `{"session_root": "/tmp/sessions"}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProperty(t *testing.T) {
	path := writeConfig(t, `{"session_root": "/tmp", "hook_dir": "/tmp", "bogus": true}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadEventsDriver(t *testing.T) {
	path := writeConfig(t, `{"session_root": "/tmp", "hook_dir": "/tmp", "events": {"driver": "carrier-pigeon"}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateAcceptsMinimalDocument(t *testing.T) {
	instance := json.RawMessage(`{"session_root": "/tmp", "hook_dir": "/tmp"}`)
	assert.NoError(t, Validate(instance))
}
