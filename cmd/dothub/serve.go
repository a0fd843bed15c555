package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/dothub-crawler/api"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog and the ingestion trigger over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if port > 0 {
				a.config.Http.Port = port
			}

			ingest := api.NewIngestAPI(a.config, a.logger, a.crawlerFactory)
			a.loader.RegisterConfigChangeCallback(func(config *cfg.Config) {
				ingest.UpdateConfig(config)
			})

			srv, err := server.NewServer(a.logger, a.config, a.database, ingest)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info(context.Background(), "Shutting down")
			if ingest.Stop() {
				ingest.Wait()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides http.port)")
	return cmd
}
