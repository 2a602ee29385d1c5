// Package config loads the synchronizer configuration from config.json in
// the state directory. All credentials and tunables come from this single
// object; missing required keys fail startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the file read from the state directory.
const ConfigFileName = "config.json"

// Defaults for the optional keys.
const (
	DefaultSecondaryURL           = "amazon.co.uk"
	DefaultPollIntervalSeconds    = 10
	DefaultRecoveryHorizonSeconds = 600
)

// Config carries everything the daemon needs to run.
type Config struct {
	// AnyList account and the list to synchronize.
	PrimaryUsername string
	PrimaryPassword string
	PrimaryListName string

	// Amazon account for the Alexa shopping list.
	SecondaryUsername  string
	SecondaryPassword  string
	SecondaryMFASecret string // TOTP seed; optional, only needed when login challenges
	SecondaryURL       string // regional host, e.g. amazon.co.uk or amazon.com

	PollInterval           time.Duration
	JournalRecoveryHorizon time.Duration
}

// Dir resolves the state directory: $CONFIG_PATH when set, else the current
// working directory. The journal, credential cache and cookie jar live here.
func Dir() string {
	if dir := os.Getenv("CONFIG_PATH"); dir != "" {
		return dir
	}
	return "."
}

// Load reads config.json from dir and validates the required keys.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("secondary_url", DefaultSecondaryURL)
	v.SetDefault("poll_interval_seconds", DefaultPollIntervalSeconds)
	v.SetDefault("journal_recovery_horizon_seconds", DefaultRecoveryHorizonSeconds)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{
		PrimaryUsername:        v.GetString("primary_username"),
		PrimaryPassword:        v.GetString("primary_password"),
		PrimaryListName:        v.GetString("primary_list_name"),
		SecondaryUsername:      v.GetString("secondary_username"),
		SecondaryPassword:      v.GetString("secondary_password"),
		SecondaryMFASecret:     v.GetString("secondary_mfa_secret"),
		SecondaryURL:           v.GetString("secondary_url"),
		PollInterval:           time.Duration(v.GetInt("poll_interval_seconds")) * time.Second,
		JournalRecoveryHorizon: time.Duration(v.GetInt("journal_recovery_horizon_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"primary_username", c.PrimaryUsername},
		{"primary_password", c.PrimaryPassword},
		{"primary_list_name", c.PrimaryListName},
		{"secondary_username", c.SecondaryUsername},
		{"secondary_password", c.SecondaryPassword},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	if c.JournalRecoveryHorizon <= 0 {
		return fmt.Errorf("journal_recovery_horizon_seconds must be positive")
	}
	return nil
}
