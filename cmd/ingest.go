package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the CSV files of a period into the database",
	Long: `Decode {periodo}_emitidos.csv and {periodo}_recibidos.csv from $DATA_DIR/csv,
normalize them and replace whatever the database held for the period.`,
	Example: `  euphoria-iva ingest --periodo 2026-01`,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("periodo", "", "Period to ingest (format: YYYY-MM)")
	_ = ingestCmd.MarkFlagRequired("periodo")
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ingest")
	period, _ := cmd.Flags().GetString("periodo")

	a, err := newApp(config.Cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Str("period", period).Str("dir", config.Cfg.CSVDir).Msg("Ingesting period files")
	full, err := a.periods.IngestFiles(context.Background(), period)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", period, err)
	}
	printSummary(os.Stdout, full)
	return nil
}

func printSummary(w io.Writer, full *models.FullPeriod) {
	s := full.Summary
	fmt.Fprintf(w, "%s (%s, source: %s)\n", full.Label, full.Key, full.Source)
	fmt.Fprintf(w, "  Emitidas:   %4d  facturación %14s  IVA débito  %14s\n", s.IssuedCount, s.IssuedTotal.StringFixed(2), s.VATDebit.StringFixed(2))
	fmt.Fprintf(w, "  Recibidas:  %4d  facturación %14s  IVA crédito %14s\n", s.ReceivedCount, s.ReceivedTotal.StringFixed(2), s.VATCredit.StringFixed(2))
	fmt.Fprintf(w, "  Posición IVA: %s\n", s.VATPosition.StringFixed(2))
	for i, entry := range full.Ranking {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "  %d. %-40s %14s\n", i+1, entry.CounterpartyName, entry.VATTotal.StringFixed(2))
	}
}
