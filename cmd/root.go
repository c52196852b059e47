package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "euphoria-iva",
	Short: "Monthly VAT position from ARCA invoice data",
	Long: `euphoria-iva assembles the monthly VAT position (IVA débito, crédito and saldo)
of a taxpayer from "Mis Comprobantes" data.

Invoices come from CSV/zip files downloaded from the portal or uploaded by the
user, from the portal scraper, or straight from the remote automation service.
Ingested periods are kept in a local SQLite database.

Configuration is read from the environment and an optional .env file.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		logger.InitLogger(cfg.LogLevel, cfg.LogFormat)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.L.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
