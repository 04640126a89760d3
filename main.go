// Command regent-tracker watches the property agencies for new listings at
// The Regent (天鑽) and emails the ones it has not seen before.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"regent-tracker/config"
	"regent-tracker/utils"
)

var rootCmd = &cobra.Command{
	Use:   "regent-tracker",
	Short: "天鑽 The Regent listing tracker",
	Long: `Fetches the configured agency pages, extracts listings for The Regent,
remembers every listing it has seen and notifies about new ones by email.

Run it from cron or a scheduled CI job; each invocation is one cycle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	envFile     string
	sourcesFile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (missing file is ignored)")
	rootCmd.PersistentFlags().StringVar(&sourcesFile, "sources", "", "Path to a sources YAML file (defaults to SOURCES_FILE or the built-in rules)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads configuration and builds the logger shared by every command.
func loadApp(cmd *cobra.Command) (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if sourcesFile != "" {
		if err := cfg.UseSources(sourcesFile); err != nil {
			return nil, nil, err
		}
	}

	logger := utils.NewLogger(utils.LoggerOptions{
		Writer:  cmd.ErrOrStderr(),
		Level:   cfg.LogLevel,
		JSON:    cfg.LogJSON,
		NoColor: os.Getenv("NO_COLOR") != "",
	})
	return cfg, logger, nil
}

// recoverPanic turns a panic in a command into an error so the process
// exits non-zero after logging the stack.
func recoverPanic(logger *utils.Logger, err *error) {
	if r := recover(); r != nil {
		logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
		*err = fmt.Errorf("panic: %v", r)
	}
}
