// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// streamDataPrefix marks data lines in a streamed response body.
const streamDataPrefix = "data:"

// streamDoneMarker terminates a streamed response body.
const streamDoneMarker = "[DONE]"

// wireMessage is the message object inside a response choice.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// wireChoice is a single choice in a response or chunk. Single-shot bodies
// carry the content under "message"; streamed chunks carry it under "delta"
// on most providers, though some put full "message" objects in chunks too.
// Both are accepted.
type wireChoice struct {
	Message wireMessage `json:"message"`
	Delta   wireMessage `json:"delta"`
}

// content returns whichever content field the choice carries.
func (c wireChoice) content() string {
	if c.Message.Content != "" {
		return c.Message.Content
	}
	return c.Delta.Content
}

// chatResponse is the shared shape of a response body and a stream chunk.
type chatResponse struct {
	Choices []wireChoice `json:"choices"`
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize parses a raw provider response body into a single assistant
// string. streamed selects the wire shape: one JSON object, or
// newline-separated chunks per the adapter's Stream constant.
func Normalize(raw []byte, streamed bool) (string, error) {
	if streamed {
		return normalizeStream(raw)
	}
	return normalizeSingle(raw)
}

// normalizeSingle handles the single-shot shape: one JSON object with a
// choices list; the first choice's message content is the result.
func normalizeSingle(raw []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := resp.Choices[0].content()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// normalizeStream handles the streamed shape: newline-separated chunks,
// each blank, the [DONE] marker, or a "data:"-prefixed JSON chunk with the
// same choices shape. Chunk contents are concatenated in order. Chunks that
// fail to decode are skipped; providers interleave control lines with data
// lines and a single bad line must not lose the rest of the reply. Only a
// completely empty result is an error.
func normalizeStream(raw []byte) (string, error) {
	var sb strings.Builder

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || line == streamDoneMarker {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, streamDataPrefix))
		if data == streamDoneMarker {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		sb.WriteString(chunk.Choices[0].content())
	}

	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
