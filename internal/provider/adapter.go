// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// ADAPTER
// =============================================================================

// Adapter holds the per-provider constants. All supported providers share
// the request/response schema of the chat-completions endpoint; an adapter
// only fixes where to send the request, which model to fall back to, and
// whether the response arrives streamed.
type Adapter struct {
	// Kind identifies the provider.
	Kind model.ProviderKind

	// BaseURL is the API root; requests go to BaseURL + "/chat/completions".
	BaseURL string

	// DefaultModel is used when the agent config leaves Model empty.
	DefaultModel string

	// Stream is the provider's wire shape: true means the response is a
	// sequence of SSE-style chunks, false means one JSON body. This is a
	// provider constant, not user-configurable.
	Stream bool
}

// adapters is the fixed registry of supported providers.
var adapters = map[model.ProviderKind]Adapter{
	model.ProviderDeepSeek: {
		Kind:         model.ProviderDeepSeek,
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		Stream:       false,
	},
	model.ProviderSiliconFlow: {
		Kind:         model.ProviderSiliconFlow,
		BaseURL:      "https://api.siliconflow.cn/v1",
		DefaultModel: "deepseek-ai/DeepSeek-R1",
		Stream:       true,
	},
}

// AdapterFor returns the adapter for a provider kind.
func AdapterFor(kind model.ProviderKind) (Adapter, error) {
	a, ok := adapters[kind]
	if !ok {
		return Adapter{}, fmt.Errorf("no adapter for provider kind %q", kind)
	}
	return a, nil
}

// Kinds returns the supported provider kinds in registration order.
func Kinds() []model.ProviderKind {
	return []model.ProviderKind{model.ProviderDeepSeek, model.ProviderSiliconFlow}
}
