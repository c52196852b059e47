package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// PeriodIngester turns the files a scrape downloaded into stored data.
type PeriodIngester interface {
	IngestFiles(ctx context.Context, key string) (*models.FullPeriod, error)
}

// ScraperService supervises the portal scraper. At most one run exists at a
// time; its progress is observed through GetStatus.
type ScraperService interface {
	// Launch starts a run and returns without waiting for it.
	Launch(period, dateFrom, dateTo string) (models.ScraperState, error)
	// GetStatus returns a copy of the current state.
	GetStatus() models.ScraperState
}

type ScraperConfig struct {
	Command string
	Args    []string
	WorkDir string
	DataDir string
}

type scraperServiceImpl struct {
	cfg      ScraperConfig
	runner   ProcessRunner
	ingester PeriodIngester
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state models.ScraperState
}

func NewScraperService(cfg ScraperConfig, runner ProcessRunner, ingester PeriodIngester, notifier Notifier) ScraperService {
	if notifier == nil {
		notifier = &LogNotifier{}
	}
	return &scraperServiceImpl{
		cfg:      cfg,
		runner:   runner,
		ingester: ingester,
		notifier: notifier,
		log:      logger.WithComponent("scraper"),
		now:      time.Now,
		state:    models.ScraperState{Status: models.ScraperIdle, Output: []string{}},
	}
}

func (s *scraperServiceImpl) GetStatus() models.ScraperState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *scraperServiceImpl) Launch(period, dateFrom, dateTo string) (models.ScraperState, error) {
	if !utils.ValidPeriod(period) {
		return models.ScraperState{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	for _, d := range []string{dateFrom, dateTo} {
		if d == "" {
			continue
		}
		if _, ok := utils.ParsePortalDate(d); !ok {
			return models.ScraperState{}, fmt.Errorf("%w: %q is not a date (dd/mm/yyyy)", ErrInvalidInput, d)
		}
	}

	s.mu.Lock()
	if s.state.Status == models.ScraperRunning {
		current := s.state.Clone()
		s.mu.Unlock()
		return current, ErrAlreadyRunning
	}
	startedAt := s.now().UTC()
	runID := uuid.NewString()
	s.state = models.ScraperState{
		RunID:     runID,
		Status:    models.ScraperRunning,
		Period:    period,
		DateFrom:  dateFrom,
		DateTo:    dateTo,
		StartedAt: &startedAt,
		Output:    []string{},
	}
	s.mu.Unlock()

	log := s.log.With().Str("runId", runID).Str("period", period).Logger()
	spec := s.processSpec(period, dateFrom, dateTo)
	log.Info().Str("command", spec.Command).Strs("args", spec.Args).Msg("Launching scraper")

	proc, err := s.runner.Start(spec, func(line string) { s.appendOutput(runID, line) })
	if err != nil {
		var spawnErr *ProcessSpawnError
		if !errors.As(err, &spawnErr) {
			err = &ProcessSpawnError{Command: spec.Command, Err: err}
		}
		log.Error().Err(err).Msg("Scraper could not be started")
		final := s.finish(runID, models.ScraperError, err.Error(), "")
		go s.notify(final)
		return final, err
	}

	go s.supervise(log, runID, period, proc)
	return s.GetStatus(), nil
}

func (s *scraperServiceImpl) processSpec(period, dateFrom, dateTo string) ProcessSpec {
	args := append([]string{}, s.cfg.Args...)
	args = append(args, "--periodo", period)
	if dateFrom != "" {
		args = append(args, "--desde", dateFrom)
	}
	if dateTo != "" {
		args = append(args, "--hasta", dateTo)
	}
	return ProcessSpec{
		Command: s.cfg.Command,
		Args:    args,
		Dir:     s.cfg.WorkDir,
		Env:     append(os.Environ(), "DATA_DIR="+s.cfg.DataDir),
	}
}

// supervise waits for the process and, on a clean exit, ingests the downloaded
// files before declaring the run done.
func (s *scraperServiceImpl) supervise(log zerolog.Logger, runID, period string, proc RunningProcess) {
	code, err := proc.Wait()

	var final models.ScraperState
	switch {
	case err != nil:
		log.Error().Err(err).Msg("Waiting for scraper failed")
		final = s.finish(runID, models.ScraperError, fmt.Sprintf("scraper failed: %v", err), "")
	case code != 0:
		exitErr := &ProcessExitError{ExitCode: code}
		log.Warn().Int("exitCode", code).Msg("Scraper exited with an error")
		final = s.finish(runID, models.ScraperError, exitErr.Error(), "")
	default:
		if _, ingestErr := s.ingester.IngestFiles(context.Background(), period); ingestErr != nil {
			log.Error().Err(ingestErr).Msg("Scraper finished but its files could not be processed")
			final = s.finish(runID, models.ScraperError, fmt.Sprintf("files fetched but processing failed: %v", ingestErr), "")
		} else {
			log.Info().Msg("Scraper finished and period stored")
			final = s.finish(runID, models.ScraperDone, "", "[server] files processed and stored")
		}
	}
	s.notify(final)
}

func (s *scraperServiceImpl) appendOutput(runID, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.RunID == runID {
		s.state.Output = append(s.state.Output, line)
	}
}

// finish moves the run to a terminal state and returns a copy of it.
func (s *scraperServiceImpl) finish(runID string, status models.ScraperStatus, errMsg, line string) models.ScraperState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.RunID != runID {
		return s.state.Clone()
	}
	finishedAt := s.now().UTC()
	s.state.Status = status
	s.state.Error = errMsg
	s.state.FinishedAt = &finishedAt
	if line != "" {
		s.state.Output = append(s.state.Output, line)
	}
	return s.state.Clone()
}

func (s *scraperServiceImpl) notify(state models.ScraperState) {
	if err := s.notifier.NotifyScrapeFinished(context.Background(), state); err != nil {
		s.log.Warn().Err(err).Str("runId", state.RunID).Msg("Scrape notification failed")
	}
}
