package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thep200/dothub-crawler/api"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if pages > 0 {
				a.config.Ingest.Pages = pages
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := api.NewIngestAPI(a.config, a.logger, a.crawlerFactory).Run(ctx)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 0, "pages per query (overrides ingest.pages)")
	return cmd
}
