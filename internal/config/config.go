// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentchat configuration.
type Config struct {
	// Version of the config schema.
	Version string `toml:"version" json:"version"`

	// DefaultAgent is the agent the REPL starts with.
	DefaultAgent string `toml:"default_agent" json:"default_agent"`

	// Providers holds per-provider settings shared by all agents.
	Providers ProvidersConfig `toml:"providers" json:"providers"`

	// History controls conversation persistence.
	History HistoryConfig `toml:"history" json:"history"`

	// Dispatch controls call orchestration behavior.
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch"`

	// Agents maps agent name to its configuration. The map key doubles as
	// the agent id when the id field is left empty.
	Agents map[string]model.AgentConfig `toml:"agents" json:"agents"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	DeepSeek    ProviderConfig `toml:"deepseek" json:"deepseek"`
	SiliconFlow ProviderConfig `toml:"siliconflow" json:"siliconflow"`
}

// ProviderConfig configures one provider endpoint.
type ProviderConfig struct {
	// APIKey is the fallback key for agents of this provider that do not
	// carry their own key.
	APIKey string `toml:"api_key" json:"api_key"`
	// BaseURL overrides the built-in endpoint when non-empty.
	BaseURL string `toml:"base_url" json:"base_url"`
}

// HistoryConfig controls conversation persistence.
type HistoryConfig struct {
	// Persist enables saving histories to the local database.
	Persist bool `toml:"persist" json:"persist"`
	// Path is the database file (empty = <config dir>/histories.db).
	Path string `toml:"path" json:"path"`
}

// DispatchConfig controls call orchestration behavior.
type DispatchConfig struct {
	// FailedTurnPolicy is "retain" (keep the user message of a failed turn
	// in history) or "rollback" (remove it).
	FailedTurnPolicy string `toml:"failed_turn_policy" json:"failed_turn_policy"`
	// RateLimitPerSec caps outbound provider calls (0 = unlimited).
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// TimeoutSecs bounds a single provider round trip.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultAgent: "assistant",

		History: HistoryConfig{
			Persist: true,
		},

		Dispatch: DispatchConfig{
			FailedTurnPolicy: "retain",
			RateLimitPerSec:  0, // unlimited
			RateLimitBurst:   1,
			TimeoutSecs:      90,
		},

		Agents: map[string]model.AgentConfig{
			"assistant": {
				ID:       "assistant",
				Provider: model.ProviderDeepSeek,
			},
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("AGENTCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions forces config files to owner read/write only,
// since they may contain API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s). Tries TOML first, then
// JSON, and falls back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format is chosen by file extension (default TOML).
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := loadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// loadJSON loads configuration from a JSON file.
func loadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// ENV OVERRIDES / DEFAULTS / VALIDATION
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides. Env values win
// over file values so keys can stay out of config files entirely.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTCHAT_DEEPSEEK_KEY"); v != "" {
		c.Providers.DeepSeek.APIKey = v
	}
	if v := os.Getenv("AGENTCHAT_SILICONFLOW_KEY"); v != "" {
		c.Providers.SiliconFlow.APIKey = v
	}
	if v := os.Getenv("AGENTCHAT_DEFAULT_AGENT"); v != "" {
		c.DefaultAgent = v
	}
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = defaults.DefaultAgent
	}
	if c.Dispatch.FailedTurnPolicy == "" {
		c.Dispatch.FailedTurnPolicy = defaults.Dispatch.FailedTurnPolicy
	}
	if c.Dispatch.RateLimitBurst <= 0 {
		c.Dispatch.RateLimitBurst = defaults.Dispatch.RateLimitBurst
	}
	if c.Dispatch.TimeoutSecs <= 0 {
		c.Dispatch.TimeoutSecs = defaults.Dispatch.TimeoutSecs
	}
	if c.Agents == nil {
		c.Agents = make(map[string]model.AgentConfig)
	}

	// The map key is the canonical agent id, and provider kinds from config
	// files are normalized ("DeepSeek" reads as deepseek).
	for name, agent := range c.Agents {
		if agent.ID == "" {
			agent.ID = name
		}
		if agent.Provider != "" {
			if kind, err := model.ParseProviderKind(string(agent.Provider)); err == nil {
				agent.Provider = kind
			}
		}
		c.Agents[name] = agent
	}
}

// Validate checks the configuration for consistency. Agent API keys are not
// required here - an agent may pick up its provider's shared key at dispatch
// time - but provider kinds and the failed-turn policy must be well-formed.
func (c *Config) Validate() error {
	switch c.Dispatch.FailedTurnPolicy {
	case "", "retain", "rollback":
	default:
		return fmt.Errorf("dispatch.failed_turn_policy must be \"retain\" or \"rollback\", got %q", c.Dispatch.FailedTurnPolicy)
	}

	if c.Dispatch.RateLimitPerSec < 0 {
		return fmt.Errorf("dispatch.rate_limit_per_sec must not be negative")
	}

	for name, agent := range c.Agents {
		if agent.Provider != "" && !agent.Provider.Valid() {
			return fmt.Errorf("agent %q: unknown provider kind %q", name, agent.Provider)
		}
	}
	return nil
}

// =============================================================================
// AGENT RESOLUTION
// =============================================================================

// Agent resolves a named agent into a dispatch-ready AgentConfig, filling
// the provider's shared API key when the agent has none of its own.
func (c *Config) Agent(name string) (*model.AgentConfig, error) {
	agent, ok := c.Agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q is not defined", name)
	}
	if agent.ID == "" {
		agent.ID = name
	}
	if agent.Provider == "" {
		agent.Provider = model.ProviderDeepSeek
	}
	if agent.APIKey == "" {
		agent.APIKey = c.providerKey(agent.Provider)
	}
	return &agent, nil
}

// AgentNames returns the defined agent names, unsorted.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	return names
}

// providerKey returns the shared API key for a provider kind.
func (c *Config) providerKey(kind model.ProviderKind) string {
	switch kind {
	case model.ProviderDeepSeek:
		return c.Providers.DeepSeek.APIKey
	case model.ProviderSiliconFlow:
		return c.Providers.SiliconFlow.APIKey
	}
	return ""
}

// ProviderBaseURL returns the configured base URL override for a provider
// kind, or empty when the built-in endpoint should be used.
func (c *Config) ProviderBaseURL(kind model.ProviderKind) string {
	switch kind {
	case model.ProviderDeepSeek:
		return c.Providers.DeepSeek.BaseURL
	case model.ProviderSiliconFlow:
		return c.Providers.SiliconFlow.BaseURL
	}
	return ""
}

// HistoryPath returns the effective history database path.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "histories.db"), nil
}
