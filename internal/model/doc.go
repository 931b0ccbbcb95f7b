// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared across agentchat:
// chat roles, messages, provider kinds, and agent configurations.
//
// # Key Types
//
//   - Role: message sender (system, user, assistant)
//   - Message: a single chat message, used both in stored history and
//     on the provider wire (the JSON tags match the chat-completions schema)
//   - ProviderKind: selects which remote provider an agent talks to
//   - AgentConfig: immutable per-call snapshot of an agent's settings
//
// # Usage
//
// Create messages with the constructors:
//
//	msg := model.NewUserMessage("hello")
//
// Validate an agent configuration before dispatching:
//
//	if err := cfg.Validate(); err != nil {
//	    // reject the call
//	}
package model
