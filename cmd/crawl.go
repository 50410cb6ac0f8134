package cmd

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs the crawler and ingestion pipeline without the API",
		Long: `Starts the fetch scheduler and ingestion pipeline only. Useful for
dedicated ingestion workers that leave query serving to separate
processes. Runs until interrupted.`,

		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		instance.Scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		instance.Pipeline.Run(ctx)
	}()
	wg.Wait()

	instance.Logger.Info("crawl stopped")
	return nil
}
