package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mudler/xlog"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/stubserver"
)

func newStubCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stub",
		Short: "Run the reference chat backend",
		Long: `Serve the chat backend contract locally, answered by demo responders.

A dev token is minted and logged at startup so a client can connect
immediately:

  PARLEY_API_URL=http://localhost:8780 parley login --token <dev token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			st, err := stubserver.Open(cfg.Stub.DBDSN)
			if err != nil {
				return err
			}

			engine := stubserver.New(st, cfg.Stub.JWTSecret, time.Duration(cfg.Stub.ReplyDelayMS)*time.Millisecond)

			pruner, err := stubserver.StartPruner(st, cfg.Stub.PruneSchedule, time.Duration(cfg.Stub.PruneMaxAgeHours)*time.Hour)
			if err != nil {
				return err
			}
			defer pruner.Stop()

			token, err := session.Sign(cfg.Stub.JWTSecret, session.User{
				ID:    "dev",
				Email: "dev@parley.local",
				Name:  "Dev User",
			}, 24*time.Hour)
			if err != nil {
				return fmt.Errorf("mint dev token: %w", err)
			}

			srv := &http.Server{Addr: cfg.Stub.Addr, Handler: engine}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				xlog.Info("Stub backend listening", "addr", cfg.Stub.Addr, "dsn", cfg.Stub.DBDSN)
				xlog.Info("Dev token minted", "token", token)
				errc <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				xlog.Info("Stub backend shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}
