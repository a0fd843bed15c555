package main

import (
	"github.com/spf13/cobra"
	"github.com/thep200/dothub-crawler/internal/model"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := model.Migrate(cmd.Context(), a.database); err != nil {
				return err
			}
			a.logger.Info(cmd.Context(), "Schema is up to date")
			return nil
		},
	}
}
