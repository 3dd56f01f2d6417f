// Package config loads and merges shellguard configuration. A global file
// under the user's config directory is merged with an optional per-project
// file, project values winning. The merged result is turned into an
// immutable policy snapshot by Snapshot.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// BlockEntry is a user blocklist pattern with the reason shown on block.
type BlockEntry struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
}

// RuleEntry is a user-defined risk rule appended to the built-in set.
type RuleEntry struct {
	Pattern string `json:"pattern"`
	Tier    string `json:"tier"` // critical | high | moderate | low
	Reason  string `json:"reason"`
}

// Config holds all configurable shellguard settings.
type Config struct {
	SafetyLevel     string            `json:"safety_level"`     // off | passive | active
	ActiveProfile   string            `json:"active_profile"`   // key into Profiles
	Profiles        map[string]string `json:"profiles"`         // name -> safety level
	DirectoryLevels map[string]string `json:"directory_levels"` // path prefix -> safety level
	Allowlist       []string          `json:"allowlist"`
	Blocklist       []BlockEntry      `json:"blocklist"`
	Rules           []RuleEntry       `json:"rules"`

	TypoTable           map[string]string `json:"typo_table"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	LearningEnabled     bool              `json:"learning_enabled"`
	BackendEnabled      bool              `json:"backend_enabled"`

	MaxCommandLength   int    `json:"max_command_length"`
	HistoryCap         int    `json:"history_cap"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds"`
	RequestDeadlineMs  int    `json:"request_deadline_ms"`
	RateLimitWindowSec int    `json:"rate_limit_window_seconds"`
	RateLimitMax       int    `json:"rate_limit_max"`
	SocketPath         string `json:"socket_path"` // override auto-detect
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		SafetyLevel:         "active",
		ConfidenceThreshold: 0.5,
		MaxCommandLength:    65536,
		HistoryCap:          200,
		IdleTimeoutSeconds:  3600,
		RequestDeadlineMs:   45,
		RateLimitWindowSec:  10,
		RateLimitMax:        120,
	}
}

// GlobalPath returns the path of the global config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shellguard", "config.json"), nil
}

// LoadGlobal reads ~/.config/shellguard/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .shellguardrc in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".shellguardrc", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	apply(&result, global)
	apply(&result, project)
	return result
}

// apply overlays every non-zero field of src onto dst.
func apply(dst *Config, src *Config) {
	if src == nil {
		return
	}
	if src.SafetyLevel != "" {
		dst.SafetyLevel = src.SafetyLevel
	}
	if src.ActiveProfile != "" {
		dst.ActiveProfile = src.ActiveProfile
	}
	if len(src.Profiles) > 0 {
		dst.Profiles = src.Profiles
	}
	if len(src.DirectoryLevels) > 0 {
		dst.DirectoryLevels = src.DirectoryLevels
	}
	if len(src.Allowlist) > 0 {
		dst.Allowlist = src.Allowlist
	}
	if len(src.Blocklist) > 0 {
		dst.Blocklist = src.Blocklist
	}
	if len(src.Rules) > 0 {
		dst.Rules = src.Rules
	}
	if len(src.TypoTable) > 0 {
		dst.TypoTable = src.TypoTable
	}
	if src.ConfidenceThreshold > 0 {
		dst.ConfidenceThreshold = src.ConfidenceThreshold
	}
	if src.LearningEnabled {
		dst.LearningEnabled = true
	}
	if src.BackendEnabled {
		dst.BackendEnabled = true
	}
	if src.MaxCommandLength > 0 {
		dst.MaxCommandLength = src.MaxCommandLength
	}
	if src.HistoryCap > 0 {
		dst.HistoryCap = src.HistoryCap
	}
	if src.IdleTimeoutSeconds > 0 {
		dst.IdleTimeoutSeconds = src.IdleTimeoutSeconds
	}
	if src.RequestDeadlineMs > 0 {
		dst.RequestDeadlineMs = src.RequestDeadlineMs
	}
	if src.RateLimitWindowSec > 0 {
		dst.RateLimitWindowSec = src.RateLimitWindowSec
	}
	if src.RateLimitMax > 0 {
		dst.RateLimitMax = src.RateLimitMax
	}
	if src.SocketPath != "" {
		dst.SocketPath = src.SocketPath
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
