// agentchat - multi-agent chat REPL for OpenAI-compatible providers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jeranaias/agentchat/internal/cli"
	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/dispatch"
	"github.com/jeranaias/agentchat/internal/provider"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file path (default ~/.agentchat/config.toml)")
	agentName := flag.String("agent", "", "agent to start with (default from config)")
	noColor := flag.Bool("no-color", false, "disable colored output")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentchat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if *noColor {
		cli.DisableColors()
	}
	cli.ConfigureColors()

	if err := run(*configPath, *agentName); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.ErrorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func run(configPath, agentName string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store := session.NewStore()

	// Persistence is optional; without it histories live only in memory.
	var hist *storage.HistoryStore
	if cfg.History.Persist {
		path, err := cfg.HistoryPath()
		if err != nil {
			return fmt.Errorf("resolve history path: %w", err)
		}
		hist, err = storage.Open(path)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer hist.Close()

		store.WithPersister(hist)
		if err := restoreHistories(store, hist); err != nil {
			log.Printf("restore histories: %v", err)
		}
	}

	client := provider.NewClient()
	for _, kind := range provider.Kinds() {
		if url := cfg.ProviderBaseURL(kind); url != "" {
			client.WithBaseURL(kind, url)
		}
	}

	dispatcher := dispatch.New(store, client).
		WithPolicy(policyFromConfig(cfg)).
		WithRateLimit(cfg.Dispatch.RateLimitPerSec, cfg.Dispatch.RateLimitBurst)

	repl, err := cli.New(cfg, dispatcher, agentName)
	if err != nil {
		return err
	}

	// Re-load the config when it changes on disk so agent edits apply
	// without restarting.
	if path := watchablePath(configPath); path != "" {
		watcher, err := config.Watch(path, repl.UpdateConfig)
		if err != nil {
			log.Printf("config watch: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	return repl.Run()
}

// loadConfig loads from an explicit path when given, otherwise the
// default search order.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// watchablePath returns the config file to watch, or empty when running
// on built-in defaults.
func watchablePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p, err := config.ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(p); statErr == nil {
			return p
		}
	}
	if p, err := config.ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(p); statErr == nil {
			return p
		}
	}
	return ""
}

// restoreHistories seeds the in-memory store with every persisted
// conversation.
func restoreHistories(store *session.Store, hist *storage.HistoryStore) error {
	agents, err := hist.Agents()
	if err != nil {
		return err
	}
	for _, id := range agents {
		messages, err := hist.LoadHistory(id)
		if err != nil {
			return fmt.Errorf("agent %s: %w", id, err)
		}
		store.Restore(id, messages)
	}
	return nil
}

// policyFromConfig maps the config string to a dispatch policy.
func policyFromConfig(cfg *config.Config) dispatch.FailedTurnPolicy {
	if cfg.Dispatch.FailedTurnPolicy == "rollback" {
		return dispatch.RollbackUserMessage
	}
	return dispatch.RetainUserMessage
}
