package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"regent-tracker/config"
	"regent-tracker/models"
	"regent-tracker/scraper"
	"regent-tracker/services"
)

var notifyTestCommand = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a sample listing through the email notifier",
	Long: `Renders and sends one made-up listing with the configured SMTP settings.
Nothing is fetched and no state is written.`,
	RunE: notifyTestCmd,
}

func init() {
	rootCmd.AddCommand(notifyTestCommand)
}

func notifyTestCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, logger, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer recoverPanic(logger, &err)

	filter := scraper.NewFilter(cfg.Filter)
	notifier := services.NewEmailNotifier(cfg, filter.Describe(), logger)

	outcome, err := notifier.Notify(cmd.Context(), []models.Listing{sampleListing(cfg, time.Now())})
	switch {
	case outcome == models.NotifySent:
		fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %d recipient(s)\n", len(cfg.Email.Recipients))
		return nil
	case errors.Is(err, services.ErrNotConfigured):
		return fmt.Errorf("email is not configured: set EMAIL_SENDER, EMAIL_PASSWORD and EMAIL_RECIPIENTS")
	default:
		return err
	}
}

// sampleListing is a plausible listing attributed to the first source.
func sampleListing(cfg *config.Config, now time.Time) models.Listing {
	l := models.Listing{
		Tower:          9,
		Floor:          "23",
		Unit:           "C",
		Size:           450,
		Rooms:          2,
		Price:          6_000_000,
		RawDescription: "測試放盤 Test listing",
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
	if len(cfg.Sources) > 0 {
		l.Source = cfg.Sources[0].ID
		l.URL = cfg.Sources[0].Link()
	}
	l.Normalize()
	return l
}
