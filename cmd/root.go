// Package cmd defines the CLI commands for the cornerbot executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CornerLeague/Corner-League-Bot/internal/app"
	"github.com/CornerLeague/Corner-League-Bot/internal/config"
	"github.com/CornerLeague/Corner-League-Bot/internal/logging"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory, a variable so tests can substitute a
// mock factory.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cornerbot",
		Short: "Sports content discovery, ranking, and trending pipeline.",
		Long: `cornerbot ingests sports content from registered sources, extracts and
deduplicates articles, scores their quality, and serves ranked search and
trending results over HTTP.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, ok := cmd.Context().Value(appKey).(*app.App); ok && instance != nil {
				instance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default reads CORNERBOT_* environment)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().Execute()
}
