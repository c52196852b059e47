package services

import (
	"context"

	"github.com/matichattellino/euphoria-iva/src/models"
)

const (
	SourceCache  = "cache"
	SourceFiles  = "files"
	SourceRemote = "remote"
)

// PeriodQuery asks for one period. A nil page returns that direction in full.
type PeriodQuery struct {
	Key          string
	IssuedPage   *models.PageRequest
	ReceivedPage *models.PageRequest
}

// PeriodResolver is one tier of the resolution chain. A miss is reported as
// (nil, nil) so the next tier can try.
type PeriodResolver interface {
	Name() string
	Resolve(ctx context.Context, q PeriodQuery) (*models.FullPeriod, error)
}

// storeResolver serves periods that were already ingested.
type storeResolver struct {
	store PeriodStore
}

func NewStoreResolver(store PeriodStore) PeriodResolver {
	return &storeResolver{store: store}
}

func (r *storeResolver) Name() string { return SourceCache }

func (r *storeResolver) Resolve(ctx context.Context, q PeriodQuery) (*models.FullPeriod, error) {
	has, err := r.store.HasPeriod(ctx, q.Key)
	if err != nil || !has {
		return nil, err
	}
	full, err := r.store.GetFullPeriod(ctx, q.Key, q.IssuedPage, q.ReceivedPage)
	if err != nil {
		return nil, err
	}
	full.Source = SourceCache
	return full, nil
}

// fileResolver ingests the period's files into the store and serves the stored result.
type fileResolver struct {
	files  *PeriodFiles
	ingest func(ctx context.Context, key string) error
	store  PeriodStore
}

func NewFileResolver(files *PeriodFiles, store PeriodStore, ingest func(ctx context.Context, key string) error) PeriodResolver {
	return &fileResolver{files: files, ingest: ingest, store: store}
}

func (r *fileResolver) Name() string { return SourceFiles }

func (r *fileResolver) Resolve(ctx context.Context, q PeriodQuery) (*models.FullPeriod, error) {
	if !r.files.HasAny(q.Key) {
		return nil, nil
	}
	if err := r.ingest(ctx, q.Key); err != nil {
		return nil, err
	}
	full, err := r.store.GetFullPeriod(ctx, q.Key, q.IssuedPage, q.ReceivedPage)
	if err != nil {
		return nil, err
	}
	full.Source = SourceFiles
	return full, nil
}

// resolveChain tries each resolver in order and returns the first hit.
func resolveChain(ctx context.Context, resolvers []PeriodResolver, q PeriodQuery) (*models.FullPeriod, error) {
	for _, r := range resolvers {
		full, err := r.Resolve(ctx, q)
		if err != nil {
			return nil, err
		}
		if full != nil {
			return full, nil
		}
	}
	return nil, nil
}
