/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in
// the user scope. Environment variables are treated as read-only overrides
// at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type SyncConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	StoryID   int64  `yaml:"story_id"`
	Enabled   bool   `yaml:"enabled"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type RunConfig struct {
	AutosaveKeep int `yaml:"autosave_keep"` // autosave entries retained per story
	RewindDepth  int `yaml:"rewind_depth"`  // in-memory rewind snapshots
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Run           RunConfig     `yaml:"run"`
	Sync          SyncConfig    `yaml:"sync"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Run:           RunConfig{AutosaveKeep: 10, RewindDepth: 50},
		Sync:          SyncConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, Enabled: false},
		Logging:       LoggingConfig{Level: "info", Format: "console", File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvSyncURL         = "SCN_SYNC_URL"
	EnvSyncTimeoutMs   = "SCN_SYNC_TIMEOUT_MS"
	EnvSyncStoryID     = "SCN_SYNC_STORY_ID"
	EnvSyncEnabled     = "SCN_SYNC_ENABLED"
	EnvTelemetryOptIn  = "SCN_TELEMETRY_OPT_IN"
	EnvAutosaveKeep    = "SCN_AUTOSAVE_KEEP"
	EnvRewindDepth     = "SCN_REWIND_DEPTH"
	EnvLogLevel        = "SCN_LOG_LEVEL"
	EnvLogFormat       = "SCN_LOG_FORMAT"
	EnvLogFile         = "SCN_LOG_FILE"
)

// Service/keys for the OS keyring.
const (
	keyringService = "Scenarist"
	keyringToken   = "sync_token"
)

// TokenStore abstracts the OS keyring, so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// osKeyring implements TokenStore via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Scenarist")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Scenarist")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "scenarist")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. The sync token comes from the keyring and is
// returned separately, never kept in the struct.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the OS
// keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// ForgetToken removes the sync token from the keyring.
func ForgetToken() error {
	return tokenStore.Delete(keyringService, keyringToken)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.Sync.Enabled = src.Sync.Enabled
	if src.Sync.BaseURL != "" {
		dst.Sync.BaseURL = src.Sync.BaseURL
	}
	if src.Sync.TimeoutMs != 0 {
		dst.Sync.TimeoutMs = src.Sync.TimeoutMs
	}
	if src.Sync.StoryID != 0 {
		dst.Sync.StoryID = src.Sync.StoryID
	}
	if src.Run.AutosaveKeep != 0 {
		dst.Run.AutosaveKeep = src.Run.AutosaveKeep
	}
	if src.Run.RewindDepth != 0 {
		dst.Run.RewindDepth = src.Run.RewindDepth
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvSyncURL)); v != "" {
		cfg.Sync.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSyncTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSyncStoryID)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sync.StoryID = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSyncEnabled)); v != "" {
		cfg.Sync.Enabled = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvAutosaveKeep)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.AutosaveKeep = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRewindDepth)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.RewindDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}
