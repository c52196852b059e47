package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the portal scraper for a period and ingest what it downloads",
	Example: `  euphoria-iva scrape --periodo 2026-01
  euphoria-iva scrape --periodo 2026-01 --desde 01/01/2026 --hasta 15/01/2026`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().String("periodo", "", "Period to scrape (format: YYYY-MM)")
	scrapeCmd.Flags().String("desde", "", "Override the first issue date (format: dd/mm/yyyy)")
	scrapeCmd.Flags().String("hasta", "", "Override the last issue date (format: dd/mm/yyyy)")
	_ = scrapeCmd.MarkFlagRequired("periodo")
}

func runScrape(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scrape")
	period, _ := cmd.Flags().GetString("periodo")
	from, _ := cmd.Flags().GetString("desde")
	to, _ := cmd.Flags().GetString("hasta")

	a, err := newApp(config.Cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.scraper.Launch(period, from, to)
	if err != nil {
		return err
	}
	log.Info().Str("runId", state.RunID).Msg("Scraper launched, waiting for it to finish")

	printed := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		state = a.scraper.GetStatus()
		for _, line := range state.Output[printed:] {
			fmt.Println(line)
		}
		printed = len(state.Output)
		if state.Status != models.ScraperRunning {
			break
		}
	}

	if state.Status == models.ScraperError {
		return fmt.Errorf("scrape of %s failed: %s", period, state.Error)
	}
	log.Info().Str("period", period).Msg("Scrape finished and period stored")
	return nil
}
