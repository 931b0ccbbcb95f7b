// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/provider"
	"github.com/jeranaias/agentchat/internal/session"
)

// newTestDispatcher wires a dispatcher at a fake deepseek endpoint.
func newTestDispatcher(t *testing.T, handler http.HandlerFunc) (*Dispatcher, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := session.NewStore()
	client := provider.NewClient().WithBaseURL(model.ProviderDeepSeek, srv.URL)
	return New(store, client), store
}

func testAgent() *model.AgentConfig {
	return &model.AgentConfig{
		ID:       "helper",
		Provider: model.ProviderDeepSeek,
		APIKey:   "sk-test",
	}
}

// =============================================================================
// SUCCESS PATH TESTS
// =============================================================================

func TestChatSyncAppendsFullRound(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	})

	got, err := d.ChatSync(context.Background(), "the question", testAgent())
	if err != nil {
		t.Fatalf("ChatSync: %v", err)
	}
	if got != "the answer" {
		t.Errorf("reply = %q, want the answer", got)
	}

	h := store.History("helper")
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Role != model.RoleUser || h[0].Content != "the question" {
		t.Errorf("history[0] = %+v", h[0])
	}
	if h[1].Role != model.RoleAssistant || h[1].Content != "the answer" {
		t.Errorf("history[1] = %+v", h[1])
	}
}

func TestChatCallbackFiresOnce(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	d.Chat(context.Background(), "hi", testAgent(), func(text string, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback fired %d times, want 1", calls)
	}
}

// =============================================================================
// FAILURE PATH TESTS
// =============================================================================

func TestChatSyncNilConfigLeavesHistoryUntouched(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite nil config")
	})

	_, err := d.ChatSync(context.Background(), "hi", nil)
	if !errors.Is(err, provider.ErrMissingConfig) {
		t.Errorf("err = %v, want ErrMissingConfig", err)
	}
	if ids := store.AgentIDs(); len(ids) != 0 {
		t.Errorf("histories touched: %v", ids)
	}
}

func TestChatSyncInvalidConfigRejectedBeforeMutation(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite invalid config")
	})

	cfg := testAgent()
	cfg.APIKey = ""
	if _, err := d.ChatSync(context.Background(), "hi", cfg); err == nil {
		t.Error("ChatSync accepted a config without an API key")
	}
	if got := store.Len("helper"); got != 0 {
		t.Errorf("history len = %d, want 0", got)
	}
}

func TestChatSyncProviderErrorRetainsUserMessage(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	})

	_, err := d.ChatSync(context.Background(), "hi", testAgent())
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "slow down") {
		t.Errorf("APIError = %+v", apiErr)
	}

	// Default policy keeps the user message as a user-only log entry.
	h := store.History("helper")
	if len(h) != 1 || h[0].Role != model.RoleUser {
		t.Errorf("history after failure = %v, want retained user message", h)
	}
}

func TestChatSyncRollbackPolicyRemovesUserMessage(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	d.WithPolicy(RollbackUserMessage)

	if _, err := d.ChatSync(context.Background(), "hi", testAgent()); err == nil {
		t.Fatal("ChatSync succeeded against a 500")
	}
	if got := store.Len("helper"); got != 0 {
		t.Errorf("history len = %d, want 0 after rollback", got)
	}
}

func TestChatSyncEmptyReplyIsError(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := d.ChatSync(context.Background(), "hi", testAgent())
	if !errors.Is(err, provider.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

// =============================================================================
// TRIM-ON-DISPATCH TESTS
// =============================================================================

func TestChatSyncTrimsWithRawConfigValue(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	// 100 tokens -> 2 rounds. Seed well past the bound.
	cfg := testAgent()
	cfg.MaxTokens = 100
	for i := 0; i < 4; i++ {
		if _, err := d.ChatSync(context.Background(), "q", cfg); err != nil {
			t.Fatalf("ChatSync %d: %v", i, err)
		}
	}

	// Each turn: append user (len 2k+1), trim to <= 4, reply appended.
	if got := store.Len("helper"); got > 4 {
		t.Errorf("history len = %d, want <= 4", got)
	}
}

// =============================================================================
// RATE LIMIT TESTS
// =============================================================================

func TestZeroRateLimitIsUnlimited(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	// The default config wires rate_limit_per_sec = 0 meaning unlimited.
	// Consecutive calls must all go through, not just the first.
	d.WithRateLimit(0, 1)

	for i := 0; i < 3; i++ {
		if _, err := d.ChatSync(context.Background(), "q", testAgent()); err != nil {
			t.Fatalf("call %d with zero rate limit: %v", i+1, err)
		}
	}
}

func TestPositiveRateLimitAllowsBurst(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	d.WithRateLimit(100, 2)

	for i := 0; i < 2; i++ {
		if _, err := d.ChatSync(context.Background(), "q", testAgent()); err != nil {
			t.Fatalf("call %d within burst: %v", i+1, err)
		}
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestConcurrentSameAgentCallsSerialize(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.ChatSync(context.Background(), "q", testAgent()); err != nil {
				t.Errorf("ChatSync: %v", err)
			}
		}()
	}
	wg.Wait()

	// Serialized calls never interleave rounds: strict user/assistant
	// alternation.
	h := store.History("helper")
	if len(h) != 10 {
		t.Fatalf("history len = %d, want 10", len(h))
	}
	for i, msg := range h {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		if msg.Role != want {
			t.Errorf("history[%d].Role = %v, want %v", i, msg.Role, want)
		}
	}
}

func TestConcurrentDistinctAgentsDoNotBlock(t *testing.T) {
	d, store := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		cfg := testAgent()
		cfg.ID = id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.ChatSync(context.Background(), "q", cfg); err != nil {
				t.Errorf("ChatSync(%s): %v", cfg.ID, err)
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		if got := store.Len(id); got != 2 {
			t.Errorf("%s history len = %d, want 2", id, got)
		}
	}
}

// =============================================================================
// PASSTHROUGH TESTS
// =============================================================================

func TestHistoryPassthroughs(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"r"}}]}`))
	})

	if _, err := d.ChatSync(context.Background(), "q", testAgent()); err != nil {
		t.Fatalf("ChatSync: %v", err)
	}

	if got := len(d.History("helper")); got != 2 {
		t.Fatalf("History len = %d, want 2", got)
	}

	d.TruncateFrom("helper", 1)
	if got := len(d.History("helper")); got != 1 {
		t.Errorf("after TruncateFrom len = %d, want 1", got)
	}

	d.RebuildHistory("helper", []model.HistoryEntry{
		{IsUser: true, Content: "restored"},
	})
	if h := d.History("helper"); len(h) != 1 || h[0].Content != "restored" {
		t.Errorf("after Rebuild history = %v", h)
	}

	d.ClearHistory("helper")
	if got := len(d.History("helper")); got != 0 {
		t.Errorf("after Clear len = %d, want 0", got)
	}
}
