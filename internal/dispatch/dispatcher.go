// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/provider"
	"github.com/jeranaias/agentchat/internal/session"
)

// =============================================================================
// FAILED-TURN POLICY
// =============================================================================

// FailedTurnPolicy decides what happens to the user message already appended
// to history when the call fails before an assistant reply arrives.
type FailedTurnPolicy int

const (
	// RetainUserMessage keeps the user message as a user-only log entry.
	// This mirrors the historic behavior of the services this package
	// replaces and is the default.
	RetainUserMessage FailedTurnPolicy = iota

	// RollbackUserMessage removes the pending user message on failure, so a
	// failed turn leaves no trace in history.
	RollbackUserMessage
)

// =============================================================================
// CALLBACK
// =============================================================================

// Callback receives the outcome of an asynchronous chat call: the assistant
// text on success, or a non-nil error on failure. It is invoked exactly once
// per call, from the call's own goroutine.
type Callback func(text string, err error)

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher coordinates the session store, the request builder, and the
// provider client for each chat call. Safe for concurrent use.
type Dispatcher struct {
	store   *session.Store
	client  *provider.Client
	limiter *rate.Limiter
	policy  FailedTurnPolicy
}

// New creates a dispatcher over a session store and provider client.
// Outbound calls are unlimited until WithRateLimit is applied.
func New(store *session.Store, client *provider.Client) *Dispatcher {
	return &Dispatcher{
		store:   store,
		client:  client,
		limiter: rate.NewLimiter(rate.Inf, 0),
		policy:  RetainUserMessage,
	}
}

// WithPolicy sets the failed-turn policy and returns the dispatcher.
func (d *Dispatcher) WithPolicy(p FailedTurnPolicy) *Dispatcher {
	d.policy = p
	return d
}

// WithRateLimit gates outbound provider calls at rps requests per second
// with the given burst, and returns the dispatcher. rps <= 0 means
// unlimited: a literal zero limit would never refill tokens and every call
// after the first would fail its Wait.
func (d *Dispatcher) WithRateLimit(rps float64, burst int) *Dispatcher {
	if rps <= 0 {
		d.limiter = rate.NewLimiter(rate.Inf, 0)
		return d
	}
	d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return d
}

// =============================================================================
// CHAT
// =============================================================================

// Chat runs a chat call asynchronously and returns immediately. The caller's
// goroutine is never blocked past submission; the callback fires exactly
// once from the call's goroutine when the call reaches a terminal state.
// cfg may be nil, in which case the callback receives ErrMissingConfig and
// no history is touched.
func (d *Dispatcher) Chat(ctx context.Context, userText string, cfg *model.AgentConfig, cb Callback) {
	go func() {
		text, err := d.ChatSync(ctx, userText, cfg)
		if err != nil {
			cb("", err)
			return
		}
		cb(text, nil)
	}()
}

// ChatSync runs the full call pipeline synchronously: validate, append the
// user message, trim, build, send, normalize, commit. On failure no
// assistant message is appended and the configured FailedTurnPolicy is
// applied to the pending user message.
func (d *Dispatcher) ChatSync(ctx context.Context, userText string, cfg *model.AgentConfig) (text string, err error) {
	// Everything below must end in the callback path, panics included.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("chat call panicked: %v", r)
		}
	}()

	// Idle -> Building: these checks run before any history mutation, so a
	// rejected call leaves every history untouched.
	if cfg == nil {
		return "", provider.ErrMissingConfig
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	adapter, err := provider.AdapterFor(cfg.Provider)
	if err != nil {
		return "", err
	}

	callID := uuid.NewString()
	start := time.Now()

	// Serialize against other calls for the same agent. The lock spans the
	// user append through the assistant append, so concurrent same-agent
	// calls observe each other's complete rounds, never a half-finished one.
	d.store.Acquire(cfg.ID)
	defer d.store.Release(cfg.ID)

	d.store.AppendUser(cfg.ID, userText)

	// The raw config value drives trimming; the request-builder fallback
	// does not apply here. MaxTokens <= 0 therefore trims everything.
	d.store.Trim(cfg.ID, cfg.MaxTokens)

	history := d.store.History(cfg.ID)
	req := adapter.BuildRequest(*cfg, history)

	if err := d.limiter.Wait(ctx); err != nil {
		return "", d.fail(cfg.ID, callID, fmt.Errorf("rate limit wait: %w", err))
	}

	// Building -> Sent: the provider round trip is the only suspension
	// point in the pipeline.
	reply, err := d.client.Complete(ctx, adapter, cfg.APIKey, req)
	if err != nil {
		return "", d.fail(cfg.ID, callID, err)
	}

	// Sent -> Succeeded.
	d.store.AppendAssistant(cfg.ID, reply)
	log.Printf("dispatch %s: agent=%s provider=%s ok (%v)", callID, cfg.ID, cfg.Provider, time.Since(start).Round(time.Millisecond))
	return reply, nil
}

// fail applies the failed-turn policy and logs the terminal state.
func (d *Dispatcher) fail(agentID, callID string, err error) error {
	if d.policy == RollbackUserMessage {
		d.store.RollbackUser(agentID)
	}
	log.Printf("dispatch %s: agent=%s failed: %v", callID, agentID, err)
	return err
}

// =============================================================================
// HISTORY PASSTHROUGH
// =============================================================================

// History returns a copy of the agent's conversation history.
func (d *Dispatcher) History(agentID string) []model.Message {
	return d.store.History(agentID)
}

// ClearHistory empties the agent's conversation history.
func (d *Dispatcher) ClearHistory(agentID string) {
	d.store.Clear(agentID)
}

// TruncateFrom removes all stored messages at position >= index.
func (d *Dispatcher) TruncateFrom(agentID string, index int) {
	d.store.TruncateFrom(agentID, index)
}

// RebuildHistory replaces the agent's history with the supplied transcript.
func (d *Dispatcher) RebuildHistory(agentID string, entries []model.HistoryEntry) {
	d.store.Rebuild(agentID, entries)
}
