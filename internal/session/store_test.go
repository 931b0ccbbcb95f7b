// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// ISOLATION TESTS
// =============================================================================

func TestHistoryIsolationBetweenAgents(t *testing.T) {
	s := NewStore()

	s.AppendUser("alpha", "hello from alpha")
	s.AppendUser("beta", "hello from beta")

	if got := s.Len("alpha"); got != 1 {
		t.Errorf("alpha Len = %d, want 1", got)
	}
	if got := s.Len("beta"); got != 1 {
		t.Errorf("beta Len = %d, want 1", got)
	}
	if got := s.History("alpha")[0].Content; got != "hello from alpha" {
		t.Errorf("alpha history = %q, want alpha's message", got)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "original")

	h := s.History("a")
	h[0].Content = "mutated"

	if got := s.History("a")[0].Content; got != "original" {
		t.Errorf("store history mutated through returned slice: %q", got)
	}
}

func TestHistoryLazyCreate(t *testing.T) {
	s := NewStore()

	if h := s.History("fresh"); len(h) != 0 {
		t.Errorf("fresh history len = %d, want 0", len(h))
	}
	if ids := s.AgentIDs(); len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("AgentIDs = %v, want [fresh]", ids)
	}
}

// =============================================================================
// TRIM TESTS
// =============================================================================

func TestTrimEvictsOldestPairs(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.AppendUser("a", fmt.Sprintf("u%d", i))
		s.AppendAssistant("a", fmt.Sprintf("a%d", i))
	}

	// 100 tokens -> 2 rounds -> 4 messages.
	s.Trim("a", 100)

	h := s.History("a")
	if len(h) != 4 {
		t.Fatalf("after trim len = %d, want 4", len(h))
	}
	if h[0].Content != "u3" || h[3].Content != "a4" {
		t.Errorf("trim kept wrong window: first=%q last=%q", h[0].Content, h[3].Content)
	}
}

func TestTrimIsIdempotent(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.AppendUser("a", "u")
		s.AppendAssistant("a", "r")
	}

	s.Trim("a", 100)
	s.Trim("a", 100)

	if got := s.Len("a"); got != 4 {
		t.Errorf("second trim changed len to %d, want 4", got)
	}
}

func TestTrimZeroBudgetEvictsEverything(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "old user")
	s.AppendAssistant("a", "old reply")
	s.AppendUser("a", "fresh user message")

	// Zero budget means zero rounds; even the fresh user message goes.
	s.Trim("a", 0)

	if got := s.Len("a"); got != 0 {
		t.Errorf("after zero-budget trim len = %d, want 0", got)
	}
}

func TestTrimOddLengthHistory(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u0")
	s.AppendAssistant("a", "a0")
	s.AppendUser("a", "u1")

	// 50 tokens -> 1 round -> 2 messages kept.
	s.Trim("a", 50)

	h := s.History("a")
	if len(h) != 2 {
		t.Fatalf("after trim len = %d, want 2", len(h))
	}
	if h[0].Content != "u1" {
		t.Errorf("trim window starts at %q, want u1", h[0].Content)
	}
}

func TestTrimUnderBudgetIsNoop(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u")
	s.AppendAssistant("a", "r")

	s.Trim("a", 2000)

	if got := s.Len("a"); got != 2 {
		t.Errorf("trim under budget changed len to %d, want 2", got)
	}
}

// =============================================================================
// ROLLBACK TESTS
// =============================================================================

func TestRollbackUserRemovesTrailingUserMessage(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u0")
	s.AppendAssistant("a", "a0")
	s.AppendUser("a", "pending")

	if !s.RollbackUser("a") {
		t.Fatal("RollbackUser = false, want true")
	}
	h := s.History("a")
	if len(h) != 2 || h[1].Content != "a0" {
		t.Errorf("after rollback history = %v", h)
	}
}

func TestRollbackUserRefusesAssistantTail(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u0")
	s.AppendAssistant("a", "a0")

	if s.RollbackUser("a") {
		t.Error("RollbackUser removed an assistant message")
	}
	if s.RollbackUser("empty") {
		t.Error("RollbackUser on empty history = true")
	}
}

// =============================================================================
// CLEAR / TRUNCATE / REBUILD TESTS
// =============================================================================

func TestClearKeepsAgentEntry(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u")
	s.Clear("a")

	if got := s.Len("a"); got != 0 {
		t.Errorf("after clear len = %d, want 0", got)
	}
	if ids := s.AgentIDs(); len(ids) != 1 {
		t.Errorf("clear dropped the agent entry: %v", ids)
	}
}

func TestTruncateFrom(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "u0")
	s.AppendAssistant("a", "a0")
	s.AppendUser("a", "u1")

	s.TruncateFrom("a", 1)
	if got := s.Len("a"); got != 1 {
		t.Fatalf("after truncate len = %d, want 1", got)
	}

	// Out-of-range and negative indexes are no-ops.
	s.TruncateFrom("a", 5)
	s.TruncateFrom("a", -1)
	s.TruncateFrom("missing", 0)
	if got := s.Len("a"); got != 1 {
		t.Errorf("no-op truncate changed len to %d, want 1", got)
	}
}

func TestRebuildReplacesHistory(t *testing.T) {
	s := NewStore()
	s.AppendUser("a", "stale")

	s.Rebuild("a", []model.HistoryEntry{
		{IsUser: true, Content: "restored question"},
		{IsUser: false, Content: "restored answer"},
	})

	h := s.History("a")
	if len(h) != 2 {
		t.Fatalf("after rebuild len = %d, want 2", len(h))
	}
	if h[0].Role != model.RoleUser || h[1].Role != model.RoleAssistant {
		t.Errorf("rebuild roles = %v, %v", h[0].Role, h[1].Role)
	}
	if h[1].Content != "restored answer" {
		t.Errorf("rebuild content = %q", h[1].Content)
	}
}

// =============================================================================
// PERSISTER TESTS
// =============================================================================

// recordingPersister captures the last snapshot per agent.
type recordingPersister struct {
	mu    sync.Mutex
	saves int
	last  map[string][]model.Message
}

func (p *recordingPersister) SaveHistory(agentID string, messages []model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		p.last = make(map[string][]model.Message)
	}
	p.saves++
	p.last[agentID] = append([]model.Message(nil), messages...)
	return nil
}

func TestPersisterSeesEachMutation(t *testing.T) {
	p := &recordingPersister{}
	s := NewStore().WithPersister(p)

	s.AppendUser("a", "u0")
	s.AppendAssistant("a", "a0")
	s.Clear("a")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saves != 3 {
		t.Errorf("persister saves = %d, want 3", p.saves)
	}
	if len(p.last["a"]) != 0 {
		t.Errorf("final snapshot len = %d, want 0", len(p.last["a"]))
	}
}

func TestRestoreDoesNotPersist(t *testing.T) {
	p := &recordingPersister{}
	s := NewStore().WithPersister(p)

	s.Restore("a", []model.Message{model.NewUserMessage("resumed")})

	if p.saves != 0 {
		t.Errorf("Restore triggered %d saves, want 0", p.saves)
	}
	if got := s.Len("a"); got != 1 {
		t.Errorf("restored len = %d, want 1", got)
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestConcurrentAppendsAcrossAgents(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		agentID := fmt.Sprintf("agent-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.AppendUser(agentID, "message")
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		agentID := fmt.Sprintf("agent-%d", i)
		if got := s.Len(agentID); got != 50 {
			t.Errorf("%s Len = %d, want 50", agentID, got)
		}
	}
}

func TestAcquireSerializesSameAgent(t *testing.T) {
	s := NewStore()

	var inside int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire("a")
			defer s.Release("a")
			inside++ // safe only if Acquire serializes
			s.AppendUser("a", "m")
		}()
	}
	wg.Wait()

	if inside != 20 {
		t.Errorf("critical section count = %d, want 20", inside)
	}
	if got := s.Len("a"); got != 20 {
		t.Errorf("Len = %d, want 20", got)
	}
}
