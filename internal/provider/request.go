// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"github.com/jeranaias/agentchat/internal/model"
)

// Fallback values applied when the agent config leaves a field unset.
const (
	// DefaultTemperature is used when the config temperature is not > 0.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when the config max tokens is not > 0.
	DefaultMaxTokens = 2000

	// DefaultTopP is used when the config top_p is not > 0.
	DefaultTopP = 1.0

	// DefaultSystemPrompt is the assistant persona used when the config
	// system prompt is empty.
	DefaultSystemPrompt = "You are a helpful AI assistant."
)

// =============================================================================
// CHAT REQUEST
// =============================================================================

// ChatRequest is the fully-resolved request body for the chat completions
// endpoint. Constructed fresh per call and discarded after send.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	TopP        float64         `json:"top_p"`
	Stream      bool            `json:"stream,omitempty"`
}

// BuildRequest resolves an agent config and a history snapshot into a
// ChatRequest. Pure transform: each fallback is applied independently, the
// resolved system prompt is prepended to the history (which already ends
// with the just-appended user message), and the stream flag comes from the
// adapter. Neither the config nor the history is mutated.
func (a Adapter) BuildRequest(cfg model.AgentConfig, history []model.Message) ChatRequest {
	resolvedModel := cfg.Model
	if resolvedModel == "" {
		resolvedModel = a.DefaultModel
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	topP := cfg.TopP
	if topP <= 0 {
		topP = DefaultTopP
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, model.NewSystemMessage(systemPrompt))
	messages = append(messages, history...)

	return ChatRequest{
		Model:       resolvedModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        topP,
		Stream:      a.Stream,
	}
}
