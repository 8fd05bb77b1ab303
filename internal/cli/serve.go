package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/confsync/internal/server"
	"github.com/bryan-buckman/confsync/internal/syncer"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agenda API and sync on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if listen == "" {
				listen = a.cfg.Listen
			}

			var poller *syncer.Poller
			if a.cfg.Schedule != "" {
				poller, err = syncer.NewPoller(a.orchestrator, a.cfg.Schedule, a.logger.With("component", "poller"))
				if err != nil {
					return err
				}
			}

			srv, err := server.New(server.Deps{
				Store:    a.store,
				Syncer:   a.orchestrator,
				Drafts:   a.drafts,
				Meetings: a.cache,
				Metrics:  a.metrics.Handler(),
				Poller:   poller,
				Logger:   a.logger.With("component", "http"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(listen) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
