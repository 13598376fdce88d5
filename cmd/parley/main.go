package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/session"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type rootFlags struct {
	configPath string
	apiURL     string
	agentID    string
	transport  string
	demo       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Parley — terminal chat with persona agents",
		Long:          "Parley is a terminal client for persona-agent chat backends,\nwith a fully offline demo mode when no backend is reachable.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (default ~/.config/parley/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.apiURL, "api", "", "Backend base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.agentID, "agent", "", "Agent persona to talk to (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.transport, "transport", "", "Reply transport: single, multi, or stream (overrides config)")
	cmd.PersistentFlags().BoolVar(&flags.demo, "demo", false, "Skip the backend entirely and use demo replies")

	cmd.AddCommand(newChatCmd(flags))
	cmd.AddCommand(newChatsCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newLoginCmd(flags))
	cmd.AddCommand(newLogoutCmd(flags))
	cmd.AddCommand(newWhoamiCmd(flags))
	cmd.AddCommand(newStubCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parley %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// loadConfig layers the config file and environment, then applies the
// command-line overrides on top.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.apiURL != "" {
		cfg.APIBaseURL = flags.apiURL
	}
	if flags.agentID != "" {
		cfg.AgentID = flags.agentID
	}
	if flags.transport != "" {
		cfg.Transport = flags.transport
	}
	if flags.demo {
		cfg.Demo = true
	}
	return cfg, nil
}

// loadSession returns the saved login, or the demo identity when no usable
// session exists. The second return reports whether a real login is active.
func loadSession(cfg config.Config) (*session.Session, bool) {
	sess, err := session.Load(cfg.SessionFile)
	if err != nil {
		return session.Demo(), false
	}
	if sess.Expired() {
		fmt.Fprintln(os.Stderr, "Session expired; run `parley login` to reconnect.")
		return session.Demo(), false
	}
	return sess, true
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
