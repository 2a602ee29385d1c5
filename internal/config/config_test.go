package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0600))
}

func TestLoadComplete(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"primary_username": "user@example.com",
		"primary_password": "hunter2",
		"primary_list_name": "Groceries",
		"secondary_username": "amazon@example.com",
		"secondary_password": "swordfish",
		"secondary_mfa_secret": "JBSWY3DP",
		"secondary_url": "amazon.de",
		"poll_interval_seconds": 30,
		"journal_recovery_horizon_seconds": 120
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.PrimaryUsername)
	assert.Equal(t, "Groceries", cfg.PrimaryListName)
	assert.Equal(t, "amazon.de", cfg.SecondaryURL)
	assert.Equal(t, "JBSWY3DP", cfg.SecondaryMFASecret)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.JournalRecoveryHorizon)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"primary_username": "u",
		"primary_password": "p",
		"primary_list_name": "l",
		"secondary_username": "su",
		"secondary_password": "sp"
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultSecondaryURL, cfg.SecondaryURL)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.JournalRecoveryHorizon)
	assert.Empty(t, cfg.SecondaryMFASecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"primary_username": "u"}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary_password")
	assert.Contains(t, err.Error(), "secondary_username")
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"primary_username": "u",
		"primary_password": "p",
		"primary_list_name": "l",
		"secondary_username": "su",
		"secondary_password": "sp",
		"poll_interval_seconds": 0
	}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval_seconds")
}

func TestDirFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/tmp/state")
	assert.Equal(t, "/tmp/state", Dir())

	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, ".", Dir())
}
