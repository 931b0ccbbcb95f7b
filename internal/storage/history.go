// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/agentchat/internal/model"
)

// schema creates the histories table. seq preserves message order within an
// agent's conversation.
const schema = `
CREATE TABLE IF NOT EXISTS histories (
	agent_id   TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	role       TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (agent_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_histories_agent ON histories(agent_id);
`

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore persists per-agent conversation histories.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer; WAL keeps readers cheap.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close releases the database handle.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// SaveHistory replaces the stored history for an agent with the given
// snapshot. Implements session.Persister.
func (s *HistoryStore) SaveHistory(agentID string, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM histories WHERE agent_id = ?", agentID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	now := time.Now().UTC()
	stmt, err := tx.Prepare("INSERT INTO histories (agent_id, seq, role, content, updated_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		if _, err := stmt.Exec(agentID, i, string(msg.Role), msg.Content, now); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadHistory returns the stored history for an agent in message order.
// A missing agent yields an empty slice, not an error.
func (s *HistoryStore) LoadHistory(agentID string) ([]model.Message, error) {
	rows, err := s.db.Query("SELECT role, content FROM histories WHERE agent_id = ? ORDER BY seq", agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, model.Message{Role: model.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteHistory removes the stored history for an agent.
func (s *HistoryStore) DeleteHistory(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM histories WHERE agent_id = ?", agentID)
	return err
}

// Agents returns the ids of all agents with a persisted history, sorted.
func (s *HistoryStore) Agents() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT agent_id FROM histories ORDER BY agent_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
