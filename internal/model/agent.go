// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// PROVIDER KIND
// =============================================================================

// ProviderKind identifies which remote chat-completion provider an agent
// talks to. The set is fixed; adding a provider means adding a kind here and
// an adapter in the provider package.
type ProviderKind string

const (
	// ProviderDeepSeek is the DeepSeek platform API (single-shot responses).
	ProviderDeepSeek ProviderKind = "deepseek"

	// ProviderSiliconFlow is the SiliconFlow platform API (streamed responses).
	ProviderSiliconFlow ProviderKind = "siliconflow"
)

// Valid reports whether the kind is one of the supported providers.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderDeepSeek, ProviderSiliconFlow:
		return true
	}
	return false
}

// String returns the string representation of the provider kind.
func (k ProviderKind) String() string {
	return string(k)
}

// ParseProviderKind converts a string to a ProviderKind.
func ParseProviderKind(s string) (ProviderKind, error) {
	k := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown provider kind %q", s)
	}
	return k, nil
}

// =============================================================================
// AGENT CONFIG
// =============================================================================

// Errors returned by AgentConfig.Validate.
var (
	// ErrMissingAgentID indicates the agent has no identifier.
	ErrMissingAgentID = errors.New("agent id must not be empty")

	// ErrMissingAPIKey indicates the agent has no API key configured.
	ErrMissingAPIKey = errors.New("agent API key must not be empty")
)

// AgentConfig is a named configuration bundle selecting provider, model, and
// sampling parameters. It is an immutable snapshot: the dispatcher copies the
// value at call time and never mutates it. Zero values for Model, Temperature,
// MaxTokens, TopP, and SystemPrompt mean "use the fallback" and are resolved
// at request-build time.
type AgentConfig struct {
	// ID is the opaque stable identifier keying this agent's history.
	ID string `json:"id" toml:"id"`

	// Provider selects the adapter, base URL, and response shape.
	Provider ProviderKind `json:"provider" toml:"provider"`

	// Model overrides the provider's default model when non-empty.
	Model string `json:"model" toml:"model"`

	// Temperature is used when > 0, else the default of 0.7 applies.
	Temperature float64 `json:"temperature" toml:"temperature"`

	// MaxTokens is used when > 0, else the default of 2000 applies.
	// It also bounds the conversation history: the session store keeps at
	// most MaxTokens/50 rounds.
	MaxTokens int `json:"max_tokens" toml:"max_tokens"`

	// TopP is used when > 0, else the default of 1.0 applies.
	TopP float64 `json:"top_p" toml:"top_p"`

	// SystemPrompt overrides the default assistant persona when non-empty.
	SystemPrompt string `json:"system_prompt" toml:"system_prompt"`

	// APIKey authenticates against the provider. Required.
	APIKey string `json:"api_key" toml:"api_key"`
}

// Validate checks the fields that have no fallback.
func (c *AgentConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrMissingAgentID
	}
	if !c.Provider.Valid() {
		return fmt.Errorf("agent %q: unknown provider kind %q", c.ID, c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("agent %q: %w", c.ID, ErrMissingAPIKey)
	}
	return nil
}

// APIKeyMasked returns a redacted form of the API key for display.
// The key itself is never echoed anywhere.
func (c *AgentConfig) APIKeyMasked() string {
	if c.APIKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d]", len(c.APIKey))
}
