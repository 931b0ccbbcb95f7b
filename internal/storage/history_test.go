// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"path/filepath"
	"testing"

	"github.com/jeranaias/agentchat/internal/model"
)

func openTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "histories.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := []model.Message{
		model.NewUserMessage("question"),
		model.NewAssistantMessage("answer"),
		model.NewUserMessage("follow-up"),
	}
	if err := s.SaveHistory("helper", want); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	got, err := s.LoadHistory("helper")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveReplacesExistingHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveHistory("a", []model.Message{
		model.NewUserMessage("old 1"),
		model.NewAssistantMessage("old 2"),
		model.NewUserMessage("old 3"),
	}); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if err := s.SaveHistory("a", []model.Message{
		model.NewUserMessage("new"),
	}); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	got, err := s.LoadHistory("a")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 1 || got[0].Content != "new" {
		t.Errorf("history = %v, want single replaced message", got)
	}
}

func TestLoadMissingAgentIsEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadHistory("nobody")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("missing agent history len = %d, want 0", len(got))
	}
}

func TestDeleteHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveHistory("a", []model.Message{model.NewUserMessage("m")}); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if err := s.DeleteHistory("a"); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}

	got, err := s.LoadHistory("a")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("history after delete len = %d, want 0", len(got))
	}
}

func TestAgentsSorted(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := s.SaveHistory(id, []model.Message{model.NewUserMessage("m")}); err != nil {
			t.Fatalf("SaveHistory(%s): %v", id, err)
		}
	}

	ids, err := s.Agents()
	if err != nil {
		t.Fatalf("Agents: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(ids) != 3 {
		t.Fatalf("Agents = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Agents[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestEmptySnapshotClearsHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveHistory("a", []model.Message{model.NewUserMessage("m")}); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if err := s.SaveHistory("a", nil); err != nil {
		t.Fatalf("SaveHistory(nil): %v", err)
	}

	got, err := s.LoadHistory("a")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("history len = %d, want 0", len(got))
	}
}
