// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"log"
	"sort"
	"sync"

	"github.com/jeranaias/agentchat/internal/model"
)

// tokensPerRound is the approximate token cost of one round (one user
// message plus one assistant reply) used for history trimming. Trimming is
// deliberately approximate; exact token accounting is not a goal.
const tokensPerRound = 50

// =============================================================================
// PERSISTER HOOK
// =============================================================================

// Persister receives a snapshot of an agent's history after each mutation.
// Implementations must not retain the slice past the call.
type Persister interface {
	SaveHistory(agentID string, messages []model.Message) error
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the mapping from agent id to conversation history. Histories
// are created lazily on first access and retained until the process exits;
// Clear empties a history in place but keeps the map entry.
type Store struct {
	mu        sync.RWMutex
	histories map[string][]model.Message

	// Per-agent serialization locks, held by the dispatcher across a full
	// chat call so same-agent calls cannot interleave history mutations.
	callMu sync.Mutex
	calls  map[string]*sync.Mutex

	persister Persister
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		histories: make(map[string][]model.Message),
		calls:     make(map[string]*sync.Mutex),
	}
}

// WithPersister attaches a persistence hook and returns the store.
func (s *Store) WithPersister(p Persister) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
	return s
}

// =============================================================================
// CALL SERIALIZATION
// =============================================================================

// Acquire locks the serialization mutex for an agent id. The dispatcher
// holds it for the lifetime of a chat call; Release must follow.
func (s *Store) Acquire(agentID string) {
	s.agentLock(agentID).Lock()
}

// Release unlocks the serialization mutex for an agent id.
func (s *Store) Release(agentID string) {
	s.agentLock(agentID).Unlock()
}

// agentLock returns the per-agent mutex, creating it on first use.
func (s *Store) agentLock(agentID string) *sync.Mutex {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	mu, ok := s.calls[agentID]
	if !ok {
		mu = &sync.Mutex{}
		s.calls[agentID] = mu
	}
	return mu
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// History returns a copy of the agent's history, creating an empty entry on
// first access. Never fails.
func (s *Store) History(agentID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[agentID]
	if !ok {
		s.histories[agentID] = make([]model.Message, 0)
		return []model.Message{}
	}

	out := make([]model.Message, len(h))
	copy(out, h)
	return out
}

// Len returns the number of stored messages for an agent.
func (s *Store) Len(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[agentID])
}

// AgentIDs returns the ids of all agents with a history entry, sorted.
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// APPEND OPERATIONS
// =============================================================================

// AppendUser appends a user message to the agent's history.
func (s *Store) AppendUser(agentID, text string) {
	s.append(agentID, model.NewUserMessage(text))
}

// AppendAssistant appends an assistant message to the agent's history.
func (s *Store) AppendAssistant(agentID, text string) {
	s.append(agentID, model.NewAssistantMessage(text))
}

func (s *Store) append(agentID string, msg model.Message) {
	s.mu.Lock()
	s.histories[agentID] = append(s.histories[agentID], msg)
	snapshot := s.snapshotLocked(agentID)
	s.mu.Unlock()

	s.persist(agentID, snapshot)
}

// RollbackUser removes the most recent message iff it is a user message.
// Used by the dispatcher's rollback policy when a call fails after the user
// message was appended but before an assistant reply arrived.
func (s *Store) RollbackUser(agentID string) bool {
	s.mu.Lock()
	h := s.histories[agentID]
	if len(h) == 0 || h[len(h)-1].Role != model.RoleUser {
		s.mu.Unlock()
		return false
	}
	s.histories[agentID] = h[:len(h)-1]
	snapshot := s.snapshotLocked(agentID)
	s.mu.Unlock()

	s.persist(agentID, snapshot)
	return true
}

// =============================================================================
// TRIM / CLEAR / TRUNCATE / REBUILD
// =============================================================================

// Trim bounds the agent's history under an approximate token budget.
// maxRounds = maxTokens / tokensPerRound; while the history holds more than
// maxRounds*2 messages the oldest round (user plus assistant pair) is
// evicted from the front. With maxRounds == 0 everything is evicted,
// including a freshly appended user message.
func (s *Store) Trim(agentID string, maxTokens int) {
	maxRounds := maxTokens / tokensPerRound
	if maxRounds < 0 {
		maxRounds = 0
	}

	s.mu.Lock()
	h := s.histories[agentID]
	trimmed := false
	for len(h) > maxRounds*2 {
		if len(h) >= 2 {
			h = h[2:]
		} else {
			h = h[:0]
		}
		trimmed = true
	}
	if !trimmed {
		s.mu.Unlock()
		return
	}
	// Reallocate so evicted messages do not pin the old backing array.
	kept := make([]model.Message, len(h))
	copy(kept, h)
	s.histories[agentID] = kept
	snapshot := s.snapshotLocked(agentID)
	s.mu.Unlock()

	s.persist(agentID, snapshot)
}

// Clear empties the agent's history in place. The map entry is retained, so
// a subsequent History call returns the same (now empty) sequence rather
// than lazily recreating one.
func (s *Store) Clear(agentID string) {
	s.mu.Lock()
	if h, ok := s.histories[agentID]; ok {
		s.histories[agentID] = h[:0]
	} else {
		s.histories[agentID] = make([]model.Message, 0)
	}
	s.mu.Unlock()

	s.persist(agentID, []model.Message{})
}

// TruncateFrom removes all messages at position >= index over the stored
// history (0-based; the request-time system prompt has no index here).
// No-op when the index is out of range or the history is absent.
func (s *Store) TruncateFrom(agentID string, index int) {
	s.mu.Lock()
	h, ok := s.histories[agentID]
	if !ok || index < 0 || index >= len(h) {
		s.mu.Unlock()
		return
	}
	s.histories[agentID] = h[:index]
	snapshot := s.snapshotLocked(agentID)
	s.mu.Unlock()

	s.persist(agentID, snapshot)
}

// Rebuild replaces the agent's history with one derived from an externally
// supplied transcript. Full replacement, never a merge.
func (s *Store) Rebuild(agentID string, entries []model.HistoryEntry) {
	h := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		h = append(h, e.Message())
	}

	s.mu.Lock()
	s.histories[agentID] = h
	snapshot := s.snapshotLocked(agentID)
	s.mu.Unlock()

	s.persist(agentID, snapshot)
}

// Restore seeds an agent's history from persisted messages without invoking
// the persister again. Used at startup to resume prior conversations.
func (s *Store) Restore(agentID string, messages []model.Message) {
	h := make([]model.Message, len(messages))
	copy(h, messages)

	s.mu.Lock()
	s.histories[agentID] = h
	s.mu.Unlock()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// snapshotLocked copies the agent's history. Caller must hold s.mu.
func (s *Store) snapshotLocked(agentID string) []model.Message {
	if s.persister == nil {
		return nil
	}
	h := s.histories[agentID]
	out := make([]model.Message, len(h))
	copy(out, h)
	return out
}

// persist hands a snapshot to the persister outside the store lock.
// Persistence failures are logged, not surfaced: the in-memory history is
// the source of truth and a failed save must not fail the chat call.
func (s *Store) persist(agentID string, snapshot []model.Message) {
	s.mu.RLock()
	p := s.persister
	s.mu.RUnlock()

	if p == nil || snapshot == nil {
		return
	}
	if err := p.SaveHistory(agentID, snapshot); err != nil {
		log.Printf("session: persist history for agent %s: %v", agentID, err)
	}
}
