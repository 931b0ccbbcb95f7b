// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for agentchat.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.agentchat/config.toml
//   - ~/.agentchat/config.json
//   - Built-in defaults
//
// The config directory can be relocated with AGENTCHAT_CONFIG_DIR. Provider
// API keys can be supplied via AGENTCHAT_DEEPSEEK_KEY and
// AGENTCHAT_SILICONFLOW_KEY instead of the file. Config files are forced to
// mode 0600 on load because they may hold API keys.
//
// Watch re-loads the configuration when the file changes on disk, letting a
// running REPL pick up edited agent definitions.
package config
