package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configDir string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "dothub",
		Short:        "dothub discovers dotfiles repositories and catalogs their tools",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configDir, "config", "c", "", "directory holding mode.yaml (default cfg/yaml or .)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newIngestCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	return root
}
