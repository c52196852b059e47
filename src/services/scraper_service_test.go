package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matichattellino/euphoria-iva/src/models"
)

type fakeIngester struct {
	mu      sync.Mutex
	periods []string
	err     error
}

func (f *fakeIngester) IngestFiles(_ context.Context, key string) (*models.FullPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, key)
	if f.err != nil {
		return nil, f.err
	}
	return &models.FullPeriod{Key: key, Source: SourceFiles}, nil
}

func (f *fakeIngester) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.periods...)
}

type recordingNotifier struct {
	states chan models.ScraperState
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{states: make(chan models.ScraperState, 4)}
}

func (n *recordingNotifier) NotifyScrapeFinished(_ context.Context, state models.ScraperState) error {
	n.states <- state
	return nil
}

func newShellScraper(script string, ingester PeriodIngester, notifier Notifier) ScraperService {
	return NewScraperService(ScraperConfig{
		Command: "sh",
		Args:    []string{"-c", script, "scraper"},
		DataDir: "/tmp/euphoria-data",
	}, NewExecRunner(), ingester, notifier)
}

func waitFinished(t *testing.T, svc ScraperService) models.ScraperState {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.GetStatus().Status != models.ScraperRunning
	}, 5*time.Second, 10*time.Millisecond)
	return svc.GetStatus()
}

func TestScraper_InitialState(t *testing.T) {
	svc := newShellScraper("exit 0", &fakeIngester{}, nil)

	state := svc.GetStatus()
	assert.Equal(t, models.ScraperIdle, state.Status)
	assert.Nil(t, state.StartedAt)
	assert.Empty(t, state.Output)
}

func TestScraper_SuccessfulRun(t *testing.T) {
	ingester := &fakeIngester{}
	notifier := newRecordingNotifier()
	svc := newShellScraper(`echo "downloading $2"; echo "into $DATA_DIR" >&2`, ingester, notifier)

	started, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, started.RunID)
	assert.Equal(t, "2026-01", started.Period)
	assert.NotNil(t, started.StartedAt)

	state := waitFinished(t, svc)
	assert.Equal(t, models.ScraperDone, state.Status)
	assert.Empty(t, state.Error)
	assert.NotNil(t, state.FinishedAt)
	assert.Equal(t, started.RunID, state.RunID)
	assert.Contains(t, state.Output, "downloading 2026-01")
	assert.Contains(t, state.Output, "into /tmp/euphoria-data")
	assert.Equal(t, "[server] files processed and stored", state.Output[len(state.Output)-1])
	assert.Equal(t, []string{"2026-01"}, ingester.calls())

	select {
	case notified := <-notifier.states:
		assert.Equal(t, models.ScraperDone, notified.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestScraper_PassesDateRange(t *testing.T) {
	svc := newShellScraper(`echo "$@"`, &fakeIngester{}, nil)

	_, err := svc.Launch("2026-01", "01/01/2026", "15/01/2026")
	require.NoError(t, err)

	state := waitFinished(t, svc)
	assert.Equal(t, "--periodo 2026-01 --desde 01/01/2026 --hasta 15/01/2026", state.Output[0])
	assert.Equal(t, "01/01/2026", state.DateFrom)
	assert.Equal(t, "15/01/2026", state.DateTo)
}

func TestScraper_NonZeroExit(t *testing.T) {
	ingester := &fakeIngester{}
	svc := newShellScraper("echo starting; exit 3", ingester, nil)

	_, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)

	state := waitFinished(t, svc)
	assert.Equal(t, models.ScraperError, state.Status)
	assert.Equal(t, "scraper exited with code 3", state.Error)
	assert.Equal(t, []string{"starting"}, state.Output)
	assert.Empty(t, ingester.calls())
}

func TestScraper_IngestFailure(t *testing.T) {
	ingester := &fakeIngester{err: ErrPeriodNotFound}
	svc := newShellScraper("exit 0", ingester, nil)

	_, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)

	state := waitFinished(t, svc)
	assert.Equal(t, models.ScraperError, state.Status)
	assert.Contains(t, state.Error, "files fetched but processing failed: ")
	assert.Contains(t, state.Error, ErrPeriodNotFound.Error())
}

func TestScraper_SingleFlight(t *testing.T) {
	svc := newShellScraper("sleep 1", &fakeIngester{}, nil)

	first, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)

	second, err := svc.Launch("2026-02", "", "")
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, "2026-01", svc.GetStatus().Period)

	assert.Equal(t, models.ScraperDone, waitFinished(t, svc).Status)

	third, err := svc.Launch("2026-02", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, third.RunID)
	assert.Empty(t, third.Output)
	waitFinished(t, svc)
}

func TestScraper_SpawnFailure(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := NewScraperService(ScraperConfig{Command: "/nonexistent/arca-scraper"}, NewExecRunner(), &fakeIngester{}, notifier)

	state, err := svc.Launch("2026-01", "", "")

	var spawnErr *ProcessSpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, "/nonexistent/arca-scraper", spawnErr.Command)
	assert.Equal(t, models.ScraperError, state.Status)
	assert.Equal(t, err.Error(), state.Error)
	assert.NotNil(t, state.FinishedAt)
	assert.Equal(t, models.ScraperError, svc.GetStatus().Status)

	select {
	case notified := <-notifier.states:
		assert.Equal(t, models.ScraperError, notified.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestScraper_RejectsInvalidInput(t *testing.T) {
	svc := newShellScraper("exit 0", &fakeIngester{}, nil)

	_, err := svc.Launch("2026-1", "", "")
	assert.True(t, errors.Is(err, ErrInvalidPeriod))

	_, err = svc.Launch("2026-01", "2026-01-01", "")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.Launch("2026-01", "01/01/2026", "5/1/2026")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.Equal(t, models.ScraperIdle, svc.GetStatus().Status)
}

func TestScraper_StatusIsACopy(t *testing.T) {
	svc := newShellScraper("echo one", &fakeIngester{}, nil)
	_, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)

	state := waitFinished(t, svc)
	state.Output[0] = "tampered"
	state.Status = models.ScraperIdle

	again := svc.GetStatus()
	assert.Equal(t, "one", again.Output[0])
	assert.Equal(t, models.ScraperDone, again.Status)
}

// blockingRunner hands out processes that exit when told to.
type blockingRunner struct {
	onLine func(string)
	exit   chan int
}

func (r *blockingRunner) Start(_ ProcessSpec, onLine func(string)) (RunningProcess, error) {
	r.onLine = onLine
	return r, nil
}

func (r *blockingRunner) Wait() (int, error) {
	return <-r.exit, nil
}

func TestScraper_StaleOutputIsIgnored(t *testing.T) {
	runner := &blockingRunner{exit: make(chan int)}
	svc := NewScraperService(ScraperConfig{Command: "scraper"}, runner, &fakeIngester{}, nil)

	_, err := svc.Launch("2026-01", "", "")
	require.NoError(t, err)
	staleLine := runner.onLine
	runner.exit <- 1
	waitFinished(t, svc)

	_, err = svc.Launch("2026-02", "", "")
	require.NoError(t, err)
	staleLine("late line from the previous run")
	runner.onLine("current line")

	assert.Equal(t, []string{"current line"}, svc.GetStatus().Output)
	runner.exit <- 0
	assert.Equal(t, models.ScraperDone, waitFinished(t, svc).Status)
}
