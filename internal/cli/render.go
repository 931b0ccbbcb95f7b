// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/glamour"
)

// Renderer formats assistant replies for terminal display.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer builds a markdown renderer sized to the terminal. On a
// non-TTY (or when glamour fails to initialize) replies pass through as
// plain text.
func NewRenderer() *Renderer {
	if !IsStdoutTTY() {
		return &Renderer{}
	}

	width := TerminalWidth()
	if width > 100 {
		width = 100
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

// Render returns the display form of an assistant reply. Falls back to
// the raw text when markdown rendering is unavailable or fails.
func (r *Renderer) Render(content string) string {
	if r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
