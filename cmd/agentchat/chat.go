package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wangdinglu/prompts-to-agents/agentloop"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// runChat is the interactive line REPL. Each line of input maps to one
// Submit call; slash commands control the session.
func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	go renderEvents(session.Events())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cfg.Workspace.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	fmt.Printf("agentchat | workspace %s | model %s\n", root, cfg.Model.Model)
	fmt.Println("Type a request, /reset to clear the conversation, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("> ") + " ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := handleCommand(session, line); done {
				return nil
			}
			continue
		}

		result, err := session.Submit(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Println(errorStyle.Render(fmt.Sprintf("error: %v", err)))
			fmt.Println(toolStyle.Render("The conversation is unchanged; you can retry."))
			continue
		}

		fmt.Println(assistantStyle.Render(result.Text))
		if result.Outcome == agentloop.OutcomeBudgetExhausted {
			fmt.Println(warnStyle.Render(fmt.Sprintf(
				"(turn budget of %d tool rounds reached; /reset to start over)", cfg.Agent.MaxTurns)))
		}
	}
}

// handleCommand processes a slash command. Returns true when the REPL
// should exit.
func handleCommand(session *agentloop.Session, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		fmt.Println("bye")
		return true
	case "/reset":
		session.Reset()
		fmt.Println(toolStyle.Render("Conversation cleared. The workspace binding is unchanged."))
	case "/history":
		for _, turn := range session.History() {
			text := turn.TextContent()
			if len(text) > 80 {
				text = text[:80] + "..."
			}
			fmt.Printf("%-14s %s\n", turn.Kind, text)
		}
	case "/help":
		fmt.Println("Commands: /reset, /history, /help, /quit")
	default:
		fmt.Println(warnStyle.Render(fmt.Sprintf("Unknown command %q. Try /help.", line)))
	}
	return false
}

// renderEvents streams tool activity to the terminal while the loop runs.
func renderEvents(events <-chan agentloop.SessionEvent) {
	for event := range events {
		switch event.Kind {
		case agentloop.EventToolCallStart:
			name, _ := event.Data["tool_name"].(string)
			fmt.Println(toolStyle.Render(fmt.Sprintf("  [tool] %s ...", name)))
		case agentloop.EventToolCallEnd:
			if errMsg, ok := event.Data["error"].(string); ok {
				fmt.Println(toolStyle.Render(fmt.Sprintf("  [tool] failed: %s", errMsg)))
			}
		case agentloop.EventLoopDetection:
			msg, _ := event.Data["message"].(string)
			fmt.Println(warnStyle.Render("  " + msg))
		}
	}
}

// runOnce handles the non-interactive `run` subcommand: one Submit, print
// the answer, exit non-zero on a budget miss.
func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	go renderEvents(session.Events())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := session.Submit(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(result.Text)
	if result.Outcome == agentloop.OutcomeBudgetExhausted {
		return fmt.Errorf("turn budget of %d tool rounds exhausted before a final answer", cfg.Agent.MaxTurns)
	}
	return nil
}
