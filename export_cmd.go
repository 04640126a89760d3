package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"regent-tracker/pipeline"
	"regent-tracker/storage"
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Regenerate the dashboard and CSV exports from the stored history",
	Long: `Rebuilds the presentation export, the CSV file and the optional Postgres
mirror from the cache without fetching anything. Active and new flags are
judged against the last recorded run.`,
	RunE: exportCmd,
}

func init() {
	rootCmd.AddCommand(exportCommand)
}

func exportCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, logger, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer recoverPanic(logger, &err)

	store, err := storage.NewJSONStore(cfg.CacheFile, cfg.OutputFile)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.CacheFile); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("nothing to export: %s does not exist yet", cfg.CacheFile)
	}

	// Lock before loading; Publish rewrites the cache.
	release, err := storage.Lock(pipeline.LockPath(cfg), cfg.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	cache, err := store.Load()
	if errors.Is(err, storage.ErrNoHistory) {
		return fmt.Errorf("nothing to export: %s does not exist yet", cfg.CacheFile)
	}
	if err != nil {
		return err
	}

	exports, closeExports := openExports(cmd.Context(), cfg, logger)
	defer closeExports()

	snap, err := pipeline.Publish(cmd.Context(), store, exports, cache, cfg.Sources, cache.LastRun, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d listing(s) to %s\n", snap.Count, cfg.OutputFile)
	return nil
}
