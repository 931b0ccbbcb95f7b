// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the chat-completion provider adapters.
//
// Each supported provider is described by an Adapter value: base URL,
// default model, and whether the provider streams its responses. All
// providers share the same request schema and the same
// POST {baseURL}/chat/completions endpoint; only the response shape
// differs, and Normalize folds both shapes into a single assistant string.
// Adding a provider means adding an Adapter value, not copying logic.
//
// # Key Types
//
//   - Adapter: per-provider constants plus the request builder
//   - ChatRequest: fully-resolved outbound request body
//   - Client: shared pooled HTTP transport for all adapters
//
// # Response Shapes
//
// Single-shot providers return one JSON object with a choices list.
// Streaming providers return newline-separated chunks, optionally prefixed
// with "data: " and terminated by a [DONE] marker; chunk contents are
// concatenated in order. Malformed chunks are skipped unless the whole
// result ends up empty.
package provider
