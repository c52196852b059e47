package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/matichattellino/euphoria-iva/src/database"
	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/processors"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

const (
	ckFullPeriodPrefix = "res_full_period_"
	ckFullPeriod       = ckFullPeriodPrefix + "%s_%s_%s"
	ckRanking          = "res_ranking_%s"

	CacheCleanupInterval = 30 * time.Minute
)

// PeriodStore is the persistence the period service depends on.
type PeriodStore interface {
	SavePeriod(ctx context.Context, key, label string, summary models.Summary, issued, received []models.Invoice) error
	HasPeriod(ctx context.Context, key string) (bool, error)
	GetPeriod(ctx context.Context, key string) (*models.Period, error)
	GetFullPeriod(ctx context.Context, key string, issuedPage, receivedPage *models.PageRequest) (*models.FullPeriod, error)
	GetRanking(ctx context.Context, key string) ([]models.RankEntry, error)
	ListPeriods(ctx context.Context) ([]models.Period, error)
}

type PeriodService interface {
	// ResolvePeriod answers from the store, else from files on disk (ingesting
	// them), else fails with ErrPeriodNotFound.
	ResolvePeriod(ctx context.Context, q PeriodQuery) (*models.FullPeriod, error)
	ListPeriods(ctx context.Context) ([]string, error)
	GetRanking(ctx context.Context, key string) ([]models.RankEntry, error)
	SaveUpload(period string, direction models.Direction, content []byte) (string, error)
	// IngestFiles decodes the period's files and replaces whatever the store held for it.
	IngestFiles(ctx context.Context, key string) (*models.FullPeriod, error)
}

type periodServiceImpl struct {
	store       PeriodStore
	files       *PeriodFiles
	aggregator  processors.PeriodAggregator
	resolvers   []PeriodResolver
	reportCache *cache.Cache
	log         zerolog.Logger
}

func NewPeriodService(store PeriodStore, files *PeriodFiles, aggregator processors.PeriodAggregator, reportCache *cache.Cache) PeriodService {
	s := &periodServiceImpl{
		store:       store,
		files:       files,
		aggregator:  aggregator,
		reportCache: reportCache,
		log:         logger.WithComponent("periods"),
	}
	s.resolvers = []PeriodResolver{
		NewStoreResolver(store),
		NewFileResolver(files, store, s.ingest),
	}
	return s
}

// cachedReport is a report cache entry stamped with the period's updated_at at
// the time it was read. Entries whose stamp no longer matches the store are
// stale: another process, or a save that raced the read, replaced the period.
type cachedReport struct {
	updatedAt time.Time
	value     interface{}
}

func (s *periodServiceImpl) cacheGet(ctx context.Context, cacheKey, key string) (interface{}, bool) {
	cached, found := s.reportCache.Get(cacheKey)
	if !found {
		return nil, false
	}
	entry, ok := cached.(cachedReport)
	if !ok {
		s.reportCache.Delete(cacheKey)
		return nil, false
	}
	period, err := s.store.GetPeriod(ctx, key)
	if err != nil || !period.UpdatedAt.Equal(entry.updatedAt) {
		s.log.Debug().Str("period", key).Str("cacheKey", cacheKey).Msg("Dropping stale report cache entry")
		s.reportCache.Delete(cacheKey)
		return nil, false
	}
	return entry.value, true
}

func (s *periodServiceImpl) cacheSet(cacheKey string, updatedAt time.Time, value interface{}) {
	s.reportCache.Set(cacheKey, cachedReport{updatedAt: updatedAt, value: value}, cache.DefaultExpiration)
}

func pageKey(p *models.PageRequest) string {
	if p == nil {
		return "all"
	}
	return fmt.Sprintf("%d-%d", p.Page, p.PageSize)
}

func (s *periodServiceImpl) ResolvePeriod(ctx context.Context, q PeriodQuery) (*models.FullPeriod, error) {
	if !utils.ValidPeriod(q.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, q.Key)
	}

	cacheKey := fmt.Sprintf(ckFullPeriod, q.Key, pageKey(q.IssuedPage), pageKey(q.ReceivedPage))
	if cached, found := s.cacheGet(ctx, cacheKey, q.Key); found {
		if full, ok := cached.(*models.FullPeriod); ok {
			s.log.Debug().Str("period", q.Key).Msg("Serving period from report cache")
			return full, nil
		}
	}

	full, err := resolveChain(ctx, s.resolvers, q)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, fmt.Errorf("%w: %s", ErrPeriodNotFound, q.Key)
	}
	if full.Source == SourceCache && full.UpdatedAt != nil {
		s.cacheSet(cacheKey, *full.UpdatedAt, full)
	}
	s.log.Info().Str("period", q.Key).Str("source", full.Source).Msg("Period resolved")
	return full, nil
}

func (s *periodServiceImpl) ListPeriods(ctx context.Context) ([]string, error) {
	stored, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	onDisk, err := s.files.Periods()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stored)+len(onDisk))
	keys := make([]string, 0, len(stored)+len(onDisk))
	for _, p := range stored {
		if !seen[p.Key] {
			seen[p.Key] = true
			keys = append(keys, p.Key)
		}
	}
	for _, key := range onDisk {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// GetRanking reads the stored ranking, or computes it from the received file
// without storing anything. A period with neither yields an empty ranking.
func (s *periodServiceImpl) GetRanking(ctx context.Context, key string) ([]models.RankEntry, error) {
	if !utils.ValidPeriod(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}

	cacheKey := fmt.Sprintf(ckRanking, key)
	if cached, found := s.cacheGet(ctx, cacheKey, key); found {
		if ranking, ok := cached.([]models.RankEntry); ok {
			return ranking, nil
		}
	}

	// The stamp is read before the ranking so a save landing in between
	// leaves an entry that the next read discards.
	period, err := s.store.GetPeriod(ctx, key)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if period != nil {
		ranking, err := s.store.GetRanking(ctx, key)
		if err != nil {
			return nil, err
		}
		s.cacheSet(cacheKey, period.UpdatedAt, ranking)
		return ranking, nil
	}

	if !s.files.Exists(key, models.DirectionReceived) {
		return []models.RankEntry{}, nil
	}
	received, err := s.readDirection(key, models.DirectionReceived)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Rank(received), nil
}

func (s *periodServiceImpl) SaveUpload(period string, direction models.Direction, content []byte) (string, error) {
	if !direction.Valid() {
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, direction)
	}
	return s.files.Save(period, direction, content)
}

func (s *periodServiceImpl) IngestFiles(ctx context.Context, key string) (*models.FullPeriod, error) {
	if !utils.ValidPeriod(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	if err := s.ingest(ctx, key); err != nil {
		return nil, err
	}
	full, err := s.store.GetFullPeriod(ctx, key, nil, nil)
	if err != nil {
		return nil, err
	}
	full.Source = SourceFiles
	return full, nil
}

// ingest reads both direction files of a period and stores them in one save.
// A missing file counts as an empty direction; if both are missing the period
// is not found. Decoding failures of both files are reported together.
func (s *periodServiceImpl) ingest(ctx context.Context, key string) error {
	start := time.Now()
	if !s.files.HasAny(key) {
		return fmt.Errorf("%w: no files for %s in %s", ErrPeriodNotFound, key, s.files.Dir())
	}

	var errs *multierror.Error
	invoices := make(map[models.Direction][]models.Invoice, 2)
	for _, direction := range []models.Direction{models.DirectionIssued, models.DirectionReceived} {
		if !s.files.Exists(key, direction) {
			invoices[direction] = []models.Invoice{}
			continue
		}
		list, err := s.readDirection(key, direction)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		invoices[direction] = list
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	issued, received := invoices[models.DirectionIssued], invoices[models.DirectionReceived]
	summary := s.aggregator.Summarize(issued, received)
	if err := s.store.SavePeriod(ctx, key, utils.PeriodLabel(key), summary, issued, received); err != nil {
		return err
	}
	s.invalidate(key)

	s.log.Info().Str("period", key).Int("issued", len(issued)).Int("received", len(received)).
		Dur("elapsed", time.Since(start)).Msg("Period files ingested")
	return nil
}

func (s *periodServiceImpl) readDirection(key string, direction models.Direction) ([]models.Invoice, error) {
	path := s.files.Path(key, direction)
	rows, err := parsers.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", direction.FileToken(), err)
	}
	return parsers.NormalizeAll(rows, parsers.FileSchema, key, direction), nil
}

// invalidate drops every cached payload of a period.
func (s *periodServiceImpl) invalidate(key string) {
	prefix := ckFullPeriodPrefix + key + "_"
	for k := range s.reportCache.Items() {
		if strings.HasPrefix(k, prefix) {
			s.reportCache.Delete(k)
		}
	}
	s.reportCache.Delete(fmt.Sprintf(ckRanking, key))
	s.log.Debug().Str("period", key).Msg("Invalidated report cache")
}
