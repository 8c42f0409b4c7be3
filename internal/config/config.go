// Package config loads and persists the launcher settings document and
// resolves environment-level knobs (endpoints, timeouts).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Known settings keys in the config document.
const (
	keyUpdateEnabled = "update_enabled"
	keyAssetsSaving  = "assets_saving_enabled"
	keyTheme         = "theme"
)

// Config holds the process-wide launcher settings. The flags gate
// network access (UpdateEnabled) and asset mirroring
// (AssetsSavingEnabled). Theme is carried opaquely for the UI layer.
type Config struct {
	UpdateEnabled       bool
	AssetsSavingEnabled bool
	Theme               string

	// raw preserves keys this version doesn't know about, so a
	// load/save round trip never strips fields written by another
	// launcher version.
	raw map[string]json.RawMessage
}

// Defaults returns the documented default settings.
func Defaults() *Config {
	return &Config{
		UpdateEnabled:       true,
		AssetsSavingEnabled: true,
		Theme:               "Dark",
		raw:                 map[string]json.RawMessage{},
	}
}

// Load reads the settings document at path. A missing file or a
// malformed document falls back to defaults with a logged warning;
// Load never hard-fails the launcher over settings.
func Load(path string, log *zap.Logger) *Config {
	cfg := Defaults()

	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from launcher home
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("no config file found, using defaults", zap.String("path", path))
		} else {
			log.Warn("failed to read config file, using defaults", zap.String("path", path), zap.Error(err))
		}
		return cfg
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("failed to decode config file, using defaults", zap.String("path", path), zap.Error(err))
		return cfg
	}
	cfg.raw = raw

	// Malformed individual fields keep their default.
	readBool(raw, keyUpdateEnabled, &cfg.UpdateEnabled, log)
	readBool(raw, keyAssetsSaving, &cfg.AssetsSavingEnabled, log)
	readString(raw, keyTheme, &cfg.Theme, log)

	return cfg
}

func readBool(raw map[string]json.RawMessage, key string, dst *bool, log *zap.Logger) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	if err := json.Unmarshal(msg, dst); err != nil {
		log.Warn("config field malformed, keeping default", zap.String("key", key), zap.Error(err))
	}
}

func readString(raw map[string]json.RawMessage, key string, dst *string, log *zap.Logger) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	if err := json.Unmarshal(msg, dst); err != nil {
		log.Warn("config field malformed, keeping default", zap.String("key", key), zap.Error(err))
	}
}

// Save writes the settings document to path, folding the typed fields
// back into the raw map so unknown keys survive.
func (c *Config) Save(path string) error {
	if c.raw == nil {
		c.raw = map[string]json.RawMessage{}
	}
	for key, value := range map[string]any{
		keyUpdateEnabled: c.UpdateEnabled,
		keyAssetsSaving:  c.AssetsSavingEnabled,
		keyTheme:         c.Theme,
	} {
		msg, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal config field %s: %w", key, err)
		}
		c.raw[key] = msg
	}

	data, err := json.MarshalIndent(c.raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Set updates a settings key from its string representation, as used
// by the config CLI command. Boolean keys accept true/false.
func (c *Config) Set(key, value string) error {
	switch key {
	case keyUpdateEnabled, keyAssetsSaving:
		var b bool
		if err := json.Unmarshal([]byte(value), &b); err != nil {
			return fmt.Errorf("value for %s must be true or false", key)
		}
		if key == keyUpdateEnabled {
			c.UpdateEnabled = b
		} else {
			c.AssetsSavingEnabled = b
		}
	case keyTheme:
		c.Theme = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Env holds environment-resolved knobs. These are deployment settings,
// not user preferences, so they live in the environment rather than
// the settings document.
type Env struct {
	ManifestURL string        `envconfig:"MANIFEST_URL" default:"http://better-game.network/manifest"`
	AgentURL    string        `envconfig:"AGENT_URL" default:"http://better-game.network/daemon"`
	PlayURL     string        `envconfig:"PLAY_URL" default:"https://better.game/#/play"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

// LoadEnv resolves Env from BETTER_-prefixed environment variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("better", &env); err != nil {
		return Env{}, fmt.Errorf("process environment: %w", err)
	}
	return env, nil
}
