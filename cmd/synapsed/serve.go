package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/internal/httpapi"
	"github.com/dlorp/synapse-engine-sub012/internal/orchestrator"
)

func newServeCmd(opts *rootOpts) *cobra.Command {
	var noStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: scan, start the enabled fleet, serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := opts.newLogger(cfg)

			pub := events.NewLogPublisher(log)
			eng, err := orchestrator.New(cfg, log, pub)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if _, err := eng.Rescan(ctx); err != nil {
				eng.Close(context.Background())
				return err
			}

			if !noStart {
				if cfg.DefaultProfile != "" {
					ids, perr := eng.ResolveProfile(cfg.DefaultProfile)
					if perr != nil {
						eng.Close(context.Background())
						return perr
					}
					if _, err := eng.ApplyProfile(ctx, ids); err != nil {
						eng.Close(context.Background())
						return err
					}
				} else if _, err := eng.StartAll(ctx); err != nil {
					eng.Close(context.Background())
					return err
				}
			}
			eng.Run(ctx)

			srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(eng, log)}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("control API listening")
				if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
					errCh <- serr
				}
			}()

			var runErr error
			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case runErr = <-errCh:
				log.Error().Err(runErr).Msg("http server failed")
			}

			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				log.Warn().Err(err).Msg("http shutdown")
			}
			eng.Close(context.Background())
			return runErr
		},
	}
	cmd.Flags().BoolVar(&noStart, "no-start", false, "Skip starting the fleet; serve the control API only")
	return cmd
}
