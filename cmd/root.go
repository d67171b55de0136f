// Package cmd defines the CLI commands of the framesearch ingest tool.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velofit/framesearch/internal/app"
	"github.com/velofit/framesearch/internal/config"
)

var (
	cfgFile string
	vendors []string
)

type appKeyType struct{}

// newApp is a factory variable so tests can substitute a prebuilt container.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framesearch",
		Short: "Bicycle geometry ingestion pipeline",
		Long: `framesearch crawls vendor catalogs, caches rendered product pages,
extracts frame geometry into canonical records, populates the relational
entity graph, and keeps the search indices in sync.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKeyType{}).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().StringSliceVar(&vendors, "vendor", nil, "vendors to process (default: all enabled)")

	cmd.AddCommand(
		newCollectCmd(),
		newFetchCmd(),
		newExtractCmd(),
		newPopulateCmd(),
		newReindexCmd(),
		newServeCmd(),
		newRunCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
