// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/agentchat/internal/config"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader wraps liner to provide readline-like input with persistent
// history and arrow-key navigation.
type LineReader struct {
	line        *liner.State
	historyFile string
}

// replCommands are offered as tab completions for a leading slash.
var replCommands = []string{
	"/help", "/agents", "/agent", "/history", "/clear", "/truncate", "/quit",
}

// NewLineReader creates a line reader with history loaded from the config
// directory.
func NewLineReader() *LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	line.SetCompleter(func(prefix string) []string {
		if !strings.HasPrefix(prefix, "/") {
			return nil
		}
		var out []string
		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, prefix) {
				out = append(out, cmd)
			}
		}
		return out
	})

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "input_history")
	}

	r := &LineReader{line: line, historyFile: historyFile}
	r.loadHistory()
	return r
}

// ReadInput reads one line with the given prompt. Non-empty input is
// appended to the in-memory history. Returns liner.ErrPromptAborted on
// Ctrl+C and io.EOF on Ctrl+D.
func (r *LineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// loadHistory loads input history from the history file, if present.
func (r *LineReader) loadHistory() {
	if r.historyFile == "" {
		return
	}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory persists input history with owner-only permissions.
func (r *LineReader) saveHistory() {
	if r.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (r *LineReader) Close() {
	r.saveHistory()
	r.line.Close()
}
