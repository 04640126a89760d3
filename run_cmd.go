package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"regent-tracker/config"
	"regent-tracker/fetch"
	"regent-tracker/models"
	"regent-tracker/pipeline"
	"regent-tracker/scraper"
	"regent-tracker/services"
	"regent-tracker/storage"
	"regent-tracker/utils"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one tracking cycle",
	Long: `Fetches every enabled source, extracts and filters listings, reconciles
them against the stored history, notifies about new listings and writes the
cache, the dashboard export and the CSV export.`,
	RunE: runCycleCmd,
}

var runNoNotify bool

func init() {
	runCommand.Flags().BoolVar(&runNoNotify, "no-notify", false, "Log new listings instead of emailing them (state is still saved)")
	rootCmd.AddCommand(runCommand)
}

func runCycleCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, logger, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer recoverPanic(logger, &err)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter := scraper.NewFilter(cfg.Filter)
	logger.Info("tracker starting",
		"sources", len(cfg.Sources),
		"criteria", filter.Describe(),
		"concurrency", cfg.MaxConcurrency,
		"rate_limit_ms", cfg.RateLimitMs)

	extractor, err := scraper.NewExtractor(cfg.Sources)
	if err != nil {
		return err
	}
	store, err := storage.NewJSONStore(cfg.CacheFile, cfg.OutputFile)
	if err != nil {
		return err
	}
	fetchers, closeFetchers, err := fetch.NewSet(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetchers()

	exports, closeExports := openExports(ctx, cfg, logger)
	defer closeExports()

	var notifier services.Notifier
	if runNoNotify {
		notifier = services.NewLogNotifier(logger)
	} else {
		notifier = services.NewEmailNotifier(cfg, filter.Describe(), logger)
	}

	cycle := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Fetchers:  fetchers,
		Extractor: extractor,
		Store:     store,
		Exports:   exports,
		Notifier:  notifier,
		Logger:    logger,
	})

	report, runErr := cycle.Run(ctx)
	if report != nil && !report.FinishedAt.IsZero() {
		printReport(cmd, cfg, logger, store, report)
	}
	return runErr
}

// openExports builds the secondary exports: the CSV file and, when enabled,
// the Postgres mirror. A mirror that cannot connect is logged and skipped.
func openExports(ctx context.Context, cfg *config.Config, logger *utils.Logger) ([]storage.ListingWriter, func()) {
	var exports []storage.ListingWriter
	if cfg.CSVOutputPath != "" {
		exports = append(exports, storage.NewCSVWriter(cfg.CSVOutputPath))
	}
	if cfg.Postgres.Enabled {
		pg, err := storage.NewPostgresWriter(ctx, cfg.DSN())
		if err != nil {
			logger.Warn("postgres mirror unavailable, continuing without it", "error", err)
		} else {
			exports = append(exports, pg)
		}
	}
	return exports, func() {
		for _, w := range exports {
			if err := w.Close(); err != nil {
				logger.Warn("closing export failed", "error", err)
			}
		}
	}
}

func printReport(cmd *cobra.Command, cfg *config.Config, logger *utils.Logger, store *storage.JSONStore, report *models.RunReport) {
	cache, err := store.Load()
	if err != nil {
		logger.Warn("could not reload listings for the summary", "error", err)
	}
	all := make([]models.Listing, 0, len(cache.Listings))
	for _, l := range cache.Listings {
		all = append(all, l)
	}

	insights := services.NewInsightService(logger, cmd.OutOrStdout(), !cfg.LogJSON && os.Getenv("NO_COLOR") == "")
	insights.Print(report, insights.Generate(all, len(report.New)))
}
