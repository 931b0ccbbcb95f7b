// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation histories to a local SQLite
// database so a restarted REPL resumes its conversations.
//
// HistoryStore implements the session.Persister hook: after every history
// mutation the session store hands it a snapshot, and the whole history is
// rewritten transactionally. Histories are small (the session store trims
// them), so rewrite-on-save is simpler than diffing and never leaves a
// half-updated conversation behind.
//
// Storage is strictly local and single-process; there is no cross-process
// or multi-device synchronization.
package storage
