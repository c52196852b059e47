package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/processors"
	"github.com/matichattellino/euphoria-iva/src/services"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch invoices from the remote automation service",
	Long: `Run "mis-comprobantes" jobs on the remote automation service and print the result.
Nothing is stored.

Credentials are read from flags or, when omitted, from the environment:
  AFIP_ACCESS_TOKEN, AFIP_CUIT, AFIP_USERNAME, AFIP_PASSWORD`,
	Example: `  # Full VAT position for January
  euphoria-iva fetch --desde 01/01/2026 --hasta 31/01/2026

  # Only received invoices, as JSON
  euphoria-iva fetch --desde 01/01/2026 --hasta 31/01/2026 --tipo recibidas --json`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().String("desde", "", "First issue date (format: dd/mm/yyyy)")
	fetchCmd.Flags().String("hasta", "", "Last issue date (format: dd/mm/yyyy)")
	fetchCmd.Flags().String("tipo", "", "Only one direction: emitidas or recibidas (default: full position)")
	fetchCmd.Flags().String("cuit", "", "Taxpayer CUIT (default: AFIP_CUIT)")
	fetchCmd.Flags().String("token", "", "Automation access token (default: AFIP_ACCESS_TOKEN)")
	fetchCmd.Flags().String("username", "", "Portal username (default: AFIP_USERNAME)")
	fetchCmd.Flags().Bool("json", false, "Print the raw JSON payload")
	_ = fetchCmd.MarkFlagRequired("desde")
	_ = fetchCmd.MarkFlagRequired("hasta")
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := config.Cfg
	log := logger.WithComponent("fetch")

	creds := services.Credentials{
		Token:    flagOrEnv(cmd, "token", "AFIP_ACCESS_TOKEN"),
		CUIT:     flagOrEnv(cmd, "cuit", "AFIP_CUIT"),
		Username: flagOrEnv(cmd, "username", "AFIP_USERNAME"),
		Password: os.Getenv("AFIP_PASSWORD"),
	}
	dates := services.DateRange{From: flagOrEnv(cmd, "desde", ""), To: flagOrEnv(cmd, "hasta", "")}
	tipo, _ := cmd.Flags().GetString("tipo")
	asJSON, _ := cmd.Flags().GetBool("json")

	automation := services.NewAutomationService(services.AutomationConfig{
		BaseURL:      cfg.AutomationBaseURL,
		PollInterval: cfg.AutomationPollInterval,
		MaxPolls:     cfg.AutomationMaxPolls,
		HTTPTimeout:  cfg.AutomationHTTPTimeout,
	}, processors.NewPeriodAggregator())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().Str("from", dates.From).Str("to", dates.To).Str("tipo", tipo).Msg("Fetching from remote automation")

	if tipo == "" {
		full, err := automation.FetchPosition(ctx, creds, dates)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(full)
		}
		printSummary(os.Stdout, full)
		return nil
	}

	direction, ok := models.ParseDirection(tipo)
	if !ok {
		return fmt.Errorf("invalid --tipo %q: use emitidas or recibidas", tipo)
	}
	listing, err := automation.FetchListing(ctx, direction, creds, dates)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(listing)
	}
	fmt.Printf("%d comprobantes %s, total %s, IVA %s\n", listing.Count, direction.FileToken(), listing.Total.StringFixed(2), listing.VATTotal.StringFixed(2))
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
