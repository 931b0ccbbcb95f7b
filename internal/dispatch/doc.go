// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch orchestrates the lifecycle of a chat call.
//
// A call moves through Building (validate config, append the user message,
// trim history), Sent (the provider round trip, the only suspension point),
// and ends Succeeded (assistant reply appended to history, success callback)
// or Failed (failure callback; no assistant message is appended). Every
// failure - transport, non-2xx status, normalization, or a panic anywhere in
// the pipeline - is caught at this boundary and surfaced through the
// callback; nothing escapes as an uncaught fault.
//
// Calls for the same agent id are serialized on the session store's
// per-agent lock, so their history mutations never interleave. Calls for
// distinct agents run concurrently.
//
// What happens to the already-appended user message when a call fails is a
// policy choice: RetainUserMessage keeps it as a user-only log entry,
// RollbackUserMessage removes it.
package dispatch
