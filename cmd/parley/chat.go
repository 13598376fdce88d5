package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/gateway"
)

var (
	agentNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	agentTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	typingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Open a conversation with the configured agent and chat from the terminal.

Replies arrive with humanlike pacing: a typing pause before the first
fragment and short gaps between follow-ups. If the backend is unreachable
the conversation continues with demo replies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runChat(cmd, cfg)
		},
	}
}

func runChat(cmd *cobra.Command, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, loggedIn := loadSession(cfg)
	out := cmd.OutOrStdout()

	client := gateway.NewClient(cfg.APIBaseURL, sess)
	client.Transport = gateway.TransportMode(cfg.Transport)

	demoOpts := []gateway.DemoOption{}
	if cfg.Transport == "single" {
		demoOpts = append(demoOpts, gateway.WithSingleReplies())
	}
	demo := gateway.NewDemoResponder(demoOpts...)

	pacing := chat.Pacing{
		PerChar:   time.Duration(cfg.Typing.PerCharMS) * time.Millisecond,
		MaxTyping: time.Duration(cfg.Typing.MaxMS) * time.Millisecond,
		Gap:       time.Duration(cfg.Typing.GapMS) * time.Millisecond,
	}

	opts := []chat.ServiceOption{
		chat.OnAppend(func(m chat.Message) {
			if m.Role != chat.RoleAssistant {
				return
			}
			fmt.Fprintln(out, renderReply(cfg.AgentID, m))
		}),
		chat.OnNotice(func(msg string) {
			fmt.Fprintln(out, noticeStyle.Render("! "+msg))
		}),
	}
	if cfg.Features.Typing {
		opts = append(opts, chat.OnTyping(func(on bool) {
			if on {
				fmt.Fprintln(out, typingStyle.Render(cfg.AgentID+" is typing..."))
			}
		}))
	}
	if cfg.Demo {
		opts = append(opts, chat.WithDemoMode())
	}

	svc := chat.NewService(client, demo, sess, cfg.AgentID, pacing, opts...)
	defer svc.Close()

	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	record := svc.Chat()
	fmt.Fprintln(out, agentNameStyle.Render(record.Title))
	if svc.DemoMode() {
		fmt.Fprintln(out, metaStyle.Render("demo mode — replies are canned"))
	} else if !loggedIn {
		fmt.Fprintln(out, metaStyle.Render("not logged in — the backend sees you as the demo user"))
	}
	fmt.Fprintln(out, metaStyle.Render("type a message and press enter; /quit to leave"))

	prompt := promptStyle.Render("you> ")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	var last *chat.Turn
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if line == "/quit" || line == "/exit" {
			break
		}

		turn, err := svc.Send(ctx, line)
		switch {
		case err == nil:
			last = turn
		case errors.Is(err, chat.ErrEmptyMessage):
			// nothing to send
		case errors.Is(err, chat.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			// the turn already surfaced its own notice; keep the prompt alive
		}
	}

	// let an in-flight reveal finish before the terminal goes away
	if last != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = last.Wait(waitCtx)
	}
	return scanner.Err()
}

func renderReply(agentID string, m chat.Message) string {
	name := agentNameStyle.Render(agentID)
	body := agentTextStyle.Render(m.Content)
	if m.Sequence != nil && m.Sequence.IsMultiMessage {
		return fmt.Sprintf("%s %s %s", name, body, metaStyle.Render(fmt.Sprintf("(%d/%d)", m.Sequence.Index, m.Sequence.Total)))
	}
	return fmt.Sprintf("%s %s", name, body)
}
