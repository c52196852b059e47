package cmd

import (
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/database"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/processors"
	"github.com/matichattellino/euphoria-iva/src/services"
)

// app holds the wired services shared by the commands.
type app struct {
	periods    services.PeriodService
	scraper    services.ScraperService
	automation services.AutomationService
}

func newApp(cfg *config.AppConfig) (*app, error) {
	logger.L.Info().Str("path", cfg.DatabasePath).Msg("Initializing database...")
	if err := database.InitDB(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reportCache := cache.New(cfg.ReportCacheTTL, services.CacheCleanupInterval)
	aggregator := processors.NewPeriodAggregator()
	files := services.NewPeriodFiles(cfg.CSVDir)

	periods := services.NewPeriodService(database.NewStore(database.DB), files, aggregator, reportCache)
	scraper := services.NewScraperService(services.ScraperConfig{
		Command: cfg.ScraperCommand,
		Args:    cfg.ScraperArgs,
		WorkDir: cfg.ScraperWorkDir,
		DataDir: cfg.DataDir,
	}, services.NewExecRunner(), periods, services.NewNotifier(cfg))
	automation := services.NewAutomationService(services.AutomationConfig{
		BaseURL:      cfg.AutomationBaseURL,
		PollInterval: cfg.AutomationPollInterval,
		MaxPolls:     cfg.AutomationMaxPolls,
		HTTPTimeout:  cfg.AutomationHTTPTimeout,
	}, aggregator)

	return &app{periods: periods, scraper: scraper, automation: automation}, nil
}

func (a *app) Close() {
	if database.DB == nil {
		return
	}
	if err := database.DB.Close(); err != nil {
		logger.L.Warn().Err(err).Msg("Failed to close database")
	}
}
