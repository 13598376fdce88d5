package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/gateway"
)

var (
	chatTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	chatPreviewStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250"))

	userMsgStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
)

func newChatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List your conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			sess, _ := loadSession(cfg)
			client := gateway.NewClient(cfg.APIBaseURL, sess)

			chats, err := client.ListChats(cmd.Context())
			if err != nil {
				return fmt.Errorf("list chats: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(chats) == 0 {
				fmt.Fprintln(out, metaStyle.Render("no conversations yet — start one with `parley chat`"))
				return nil
			}
			for _, c := range chats {
				fmt.Fprintf(out, "%s  %s\n", chatTitleStyle.Render(c.Title), metaStyle.Render(c.ID))
				fmt.Fprintf(out, "    %s\n", metaStyle.Render(fmt.Sprintf("%d messages, updated %s", c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04"))))
				if c.LastMessage != "" {
					fmt.Fprintf(out, "    %s\n", chatPreviewStyle.Render(truncate(c.LastMessage, 72)))
				}
			}
			return nil
		},
	}
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		page   int
		limit  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			chatID := args[0]
			sess, _ := loadSession(cfg)
			client := gateway.NewClient(cfg.APIBaseURL, sess)
			out := cmd.OutOrStdout()

			record, err := client.GetChat(cmd.Context(), chatID)
			if err != nil {
				return fmt.Errorf("load chat: %w", err)
			}
			fmt.Fprintln(out, chatTitleStyle.Render(record.Title))

			msgs, err := client.ListMessages(cmd.Context(), chatID, page, limit)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			lastID := ""
			for _, m := range msgs {
				printWireMessage(out, record.AgentID, m)
				lastID = m.ID
			}

			if !follow {
				return nil
			}
			return followMessages(cmd, client, record, lastID)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "Messages per page")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new messages")
	return cmd
}

// followMessages tails a conversation through the poll endpoint until
// interrupted.
func followMessages(cmd *cobra.Command, client *gateway.Client, record gateway.Chat, lastID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msgs, err := client.PollMessages(ctx, record.ID, lastID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("poll messages: %w", err)
			}
			for _, m := range msgs {
				printWireMessage(out, record.AgentID, m)
				lastID = m.ID
			}
		}
	}
}

func printWireMessage(out io.Writer, agentID string, m gateway.Message) {
	ts := metaStyle.Render(m.Timestamp.Format("15:04"))
	if m.Role == "user" {
		fmt.Fprintf(out, "%s %s %s\n", ts, userMsgStyle.Render("you"), m.Content)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", ts, agentNameStyle.Render(agentID), agentTextStyle.Render(m.Content))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
