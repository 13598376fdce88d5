package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/session"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a bearer token for backend access",
		Long: `Store the OAuth bearer token the backend handed you after sign-in.

The token is pasted in (hidden when the terminal allows it); parley reads
your identity from its claims and keeps it for later commands. The OAuth
exchange itself happens in the browser, outside parley.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			if cfg.OAuthClientID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render("sign in at "+oauthHint(cfg)+" and paste the token below"))
			}

			if token == "" {
				token, err = promptToken(cmd)
				if err != nil {
					return err
				}
			}

			sess, err := session.FromToken(token)
			if err != nil {
				return err
			}
			if sess.Expired() {
				return fmt.Errorf("token already expired at %s", sess.ExpiresAt.Format("2006-01-02 15:04"))
			}
			if err := sess.Save(cfg.SessionFile); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", sess.User.Name, sess.User.Email)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render("session valid until "+sess.ExpiresAt.Format("2006-01-02 15:04")))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token (prompted when omitted)")
	return cmd
}

func promptToken(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Token: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return "", fmt.Errorf("read token: %w", scanner.Err())
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func oauthHint(cfg config.Config) string {
	q := url.Values{}
	q.Set("client_id", cfg.OAuthClientID)
	if cfg.OAuthRedirectURI != "" {
		q.Set("redirect_uri", cfg.OAuthRedirectURI)
	}
	q.Set("response_type", "token")
	q.Set("scope", "openid email profile")
	return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode()
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := os.Remove(cfg.SessionFile); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			sess, loggedIn := loadSession(cfg)
			if !loggedIn {
				fmt.Fprintln(out, "Not logged in — backend calls run as the demo user.")
				return nil
			}
			fmt.Fprintf(out, "%s <%s>\n", sess.User.Name, sess.User.Email)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintln(out, metaStyle.Render("session valid until "+sess.ExpiresAt.Format("2006-01-02 15:04")))
			}
			return nil
		},
	}
}
