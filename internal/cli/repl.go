// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/dispatch"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/provider"
)

// =============================================================================
// REPL
// =============================================================================

// REPL drives the interactive chat loop for one or more configured agents.
type REPL struct {
	dispatcher *dispatch.Dispatcher
	input      *LineReader
	renderer   *Renderer
	timeout    time.Duration

	// mu guards cfg and the active agent; the config watcher swaps cfg
	// from another goroutine.
	mu        sync.Mutex
	cfg       *config.Config
	agentName string
	agent     *model.AgentConfig
}

// New creates a REPL starting on the named agent (empty = config default).
func New(cfg *config.Config, d *dispatch.Dispatcher, agentName string) (*REPL, error) {
	if agentName == "" {
		agentName = cfg.DefaultAgent
	}
	agent, err := cfg.Agent(agentName)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Dispatch.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &REPL{
		dispatcher: d,
		input:      NewLineReader(),
		renderer:   NewRenderer(),
		timeout:    timeout,
		cfg:        cfg,
		agentName:  agentName,
		agent:      agent,
	}, nil
}

// UpdateConfig swaps in a re-loaded configuration. The active agent is
// re-resolved so edits to its definition take effect on the next turn; if
// it was removed the previous resolution stays in use.
func (r *REPL) UpdateConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cfg = cfg
	if agent, err := cfg.Agent(r.agentName); err == nil {
		r.agent = agent
	}
}

// activeAgent returns the current agent config under the lock.
func (r *REPL) activeAgent() (*model.AgentConfig, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agent, r.agentName
}

// Run executes the REPL until /quit or EOF.
func (r *REPL) Run() error {
	defer r.input.Close()

	r.printWelcome()

	for {
		_, name := r.activeAgent()
		prompt := PromptStyle.Render(name) + " > "

		input, err := r.input.ReadInput(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println(DimStyle.Render("(interrupted, /quit to exit)"))
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(input); quit {
				return nil
			}
			continue
		}

		r.sendTurn(input)
	}
}

// =============================================================================
// TURN DISPATCH
// =============================================================================

// sendTurn dispatches one user turn and prints the reply or error.
// Ctrl+C during a call cancels it without leaving the REPL.
func (r *REPL) sendTurn(text string) {
	agent, _ := r.activeAgent()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	r.dispatcher.Chat(ctx, text, agent, func(reply string, err error) {
		done <- result{text: reply, err: err}
	})

	fmt.Println(DimStyle.Render("thinking..."))

	var res result
	select {
	case <-sigCh:
		cancel()
		res = <-done
	case res = <-done:
	}

	if res.err != nil {
		if ctx.Err() != nil {
			fmt.Printf("%s call canceled\n", WarningStyle.Render("[!]"))
			return
		}
		fmt.Printf("%s %v\n", ErrorStyle.Render("[error]"), res.err)
		return
	}

	fmt.Print(r.renderer.Render(res.text))
	if !strings.HasSuffix(res.text, "\n") {
		fmt.Println()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand executes a slash command. Returns true when the REPL
// should exit.
func (r *REPL) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		r.printHelp()

	case "/agents":
		r.printAgents()

	case "/agent":
		if len(args) == 0 {
			agent, name := r.activeAgent()
			fmt.Printf("%s %s (%s), key %s\n",
				DimStyle.Render("agent:"), name, describeAgent(agent), agent.APIKeyMasked())
			break
		}
		if len(args) != 1 {
			fmt.Printf("%s usage: /agent [NAME]\n", WarningStyle.Render("[!]"))
			break
		}
		r.switchAgent(args[0])

	case "/history":
		r.printHistory()

	case "/clear":
		agent, name := r.activeAgent()
		r.dispatcher.ClearHistory(agent.ID)
		fmt.Printf("%s cleared history for %s\n", DimStyle.Render("[ok]"), name)

	case "/truncate":
		if len(args) != 1 {
			fmt.Printf("%s usage: /truncate INDEX\n", WarningStyle.Render("[!]"))
			break
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			fmt.Printf("%s index must be a non-negative integer\n", WarningStyle.Render("[!]"))
			break
		}
		agent, _ := r.activeAgent()
		r.dispatcher.TruncateFrom(agent.ID, idx)
		fmt.Printf("%s history truncated from message %d\n", DimStyle.Render("[ok]"), idx)

	default:
		fmt.Printf("%s unknown command %s (/help for commands)\n", WarningStyle.Render("[!]"), cmd)
	}
	return false
}

// switchAgent makes the named agent active.
func (r *REPL) switchAgent(name string) {
	r.mu.Lock()
	agent, err := r.cfg.Agent(name)
	if err == nil {
		r.agentName = name
		r.agent = agent
	}
	r.mu.Unlock()

	if err != nil {
		fmt.Printf("%s %v\n", ErrorStyle.Render("[error]"), err)
		return
	}
	fmt.Printf("%s now talking to %s (%s)\n",
		DimStyle.Render("[ok]"), PromptStyle.Render(name), describeAgent(agent))
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *REPL) printWelcome() {
	agent, name := r.activeAgent()
	fmt.Println(TitleStyle.Render("agentchat"))
	fmt.Printf("%s %s (%s)\n", DimStyle.Render("agent:"), name, describeAgent(agent))
	fmt.Println(DimStyle.Render("/help for commands, /quit to exit"))
	fmt.Println()
}

func (r *REPL) printHelp() {
	rows := [][2]string{
		{"/help", "show this help"},
		{"/agents", "list configured agents"},
		{"/agent [NAME]", "show or switch the active agent"},
		{"/history", "show the active agent's conversation"},
		{"/clear", "clear the active agent's conversation"},
		{"/truncate N", "drop history from message index N onward"},
		{"/quit", "exit"},
	}
	for _, row := range rows {
		fmt.Printf("  %s  %s\n",
			ValueStyle.Render(fmt.Sprintf("%-14s", row[0])),
			DimStyle.Render(row[1]))
	}
}

// printAgents lists configured agents with the active one marked.
func (r *REPL) printAgents() {
	r.mu.Lock()
	cfg, active := r.cfg, r.agentName
	r.mu.Unlock()

	names := cfg.AgentNames()
	sort.Strings(names)

	for _, name := range names {
		marker := " "
		if name == active {
			marker = PromptStyle.Render("*")
		}
		agent, err := cfg.Agent(name)
		if err != nil {
			continue
		}
		fmt.Printf(" %s %s  %s\n", marker,
			ValueStyle.Render(fmt.Sprintf("%-16s", name)),
			DimStyle.Render(describeAgent(agent)))
	}
}

// printHistory lists the active agent's conversation, one message per
// line, truncated to the terminal width.
func (r *REPL) printHistory() {
	agent, _ := r.activeAgent()
	history := r.dispatcher.History(agent.ID)
	if len(history) == 0 {
		fmt.Println(DimStyle.Render("(no history)"))
		return
	}

	// Index, role label, then as much of the message as fits.
	width := TerminalWidth() - 20
	if width < 20 {
		width = 20
	}

	tokens := 0
	for i, msg := range history {
		label := msg.Role.DisplayName()
		style := UserStyle
		if msg.Role == model.RoleAssistant {
			style = AssistantStyle
		}
		tokens += msg.EstimateTokens()

		line := strings.ReplaceAll(msg.Content, "\n", " ")
		line = runewidth.Truncate(line, width, "...")
		fmt.Printf("  %s %s %s\n",
			DimStyle.Render(fmt.Sprintf("%3d", i)),
			style.Render(fmt.Sprintf("%-10s", label)),
			line)
	}
	fmt.Println(DimStyle.Render(fmt.Sprintf("%d messages, ~%d tokens", len(history), tokens)))
}

// describeAgent summarizes an agent's provider and effective model.
func describeAgent(agent *model.AgentConfig) string {
	modelName := agent.Model
	if modelName == "" {
		if a, err := provider.AdapterFor(agent.Provider); err == nil {
			modelName = a.DefaultModel
		}
	}
	return fmt.Sprintf("%s / %s", agent.Provider, modelName)
}
