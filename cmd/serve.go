package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/handlers"
	"github.com/matichattellino/euphoria-iva/src/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API consumed by the dashboard.

Routes:
  GET  /api/health
  GET  /api/iva/{periodo}?page&pageSize&tab
  GET  /api/periodos
  GET  /api/proveedores/{periodo}
  POST /api/upload
  POST /api/scraper/run
  GET  /api/scraper/status
  POST /api/posicion-iva
  POST /api/emitidas
  POST /api/recibidas`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "Port to listen on (default: PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Cfg
	log := logger.WithComponent("serve")
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Remote automation handlers block for the whole polling budget.
	pollBudget := cfg.AutomationPollInterval * time.Duration(cfg.AutomationMaxPolls)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, handlers.Services{Periods: a.periods, Scraper: a.scraper, Automation: a.automation}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      pollBudget + time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Euphoria IVA server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
