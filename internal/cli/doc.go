// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive agentchat REPL.
//
// The REPL reads user turns with liner (history file, arrow-key recall),
// hands them to the dispatcher, and renders assistant replies as markdown
// via glamour. Slash commands manage agents and their histories:
//
//	/help            show available commands
//	/agents          list configured agents
//	/agent NAME      switch the active agent
//	/history         show the active agent's conversation
//	/clear           clear the active agent's conversation
//	/truncate N      drop history from message index N onward
//	/quit            exit
//
// Colors follow the terminal: NO_COLOR and non-TTY output disable them,
// FORCE_COLOR overrides detection.
package cli
