// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the concurrency-safe per-agent conversation store.
//
// The Store owns every conversation history: callers only ever see copies,
// and all mutations go through Store methods. Histories contain user and
// assistant messages only; system prompts are injected at request-build time
// and never stored.
//
// # Key Types
//
//   - Store: agent-id keyed history store with trim/clear/truncate/rebuild
//   - Persister: optional hook that persists a history after each mutation
//
// # Concurrency
//
// Every method is safe for concurrent use. In addition to the internal
// mutex, each agent id has a serialization lock (Acquire/Release) that the
// dispatcher holds for the duration of a chat call, so two in-flight calls
// for the same agent cannot interleave their history mutations. Calls for
// distinct agents proceed in parallel.
package session
