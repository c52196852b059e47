package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matichattellino/euphoria-iva/src/database"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/processors"
)

const issuedCSV = "\ufeffFecha de Emisión;Tipo de Comprobante;Punto de Venta;Número Desde;Nro. Doc. Receptor;Denominación Receptor;Imp. Neto Gravado Total;Total IVA;Imp. Total\n" +
	"05/01/2026;1 - Factura A;1;10;20-1;CLIENTE UNO;100,00;21,00;121,00\n" +
	"10/01/2026;6 - Factura B;1;11;20-2;CLIENTE DOS;50,00;10,50;60,50\n"

const receivedCSV = "Fecha de Emisión;Tipo de Comprobante;Nro. Doc. Emisor;Denominación Emisor;Imp. Neto Gravado Total;Total IVA;Imp. Total\n" +
	"06/01/2026;1;30-1;PROVEEDOR A;45,00;5,00;50,00\n" +
	"07/01/2026;1;30-2;PROVEEDOR B;20,00;4,20;24,20\n" +
	"08/01/2026;1;30-1;PROVEEDOR A;10,00;2,10;12,10\n"

const otherIssuedCSV = "Fecha de Emisión;Tipo de Comprobante;Denominación Receptor;Total IVA;Imp. Total\n" +
	"20/01/2026;1;OTRO CLIENTE;999,00;5756,00\n"

type periodFixture struct {
	store   *database.Store
	files   *PeriodFiles
	service PeriodService
}

func newPeriodFixture(t *testing.T) *periodFixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &periodFixture{
		store: database.NewStore(db),
		files: NewPeriodFiles(filepath.Join(dir, "csv")),
	}
	f.service = f.newService()
	return f
}

// newService builds a service with a fresh report cache over the same store and files.
func (f *periodFixture) newService() PeriodService {
	return NewPeriodService(f.store, f.files, processors.NewPeriodAggregator(), cache.New(time.Minute, CacheCleanupInterval))
}

func (f *periodFixture) write(t *testing.T, period string, direction models.Direction, content string) {
	t.Helper()
	_, err := f.files.Save(period, direction, []byte(content))
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolvePeriod_FromFiles(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, receivedCSV)
	ctx := context.Background()

	full, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)

	assert.Equal(t, SourceFiles, full.Source)
	assert.Equal(t, "Enero 2026", full.Label)
	assert.True(t, full.Summary.VATDebit.Equal(dec("31.5")))
	assert.True(t, full.Summary.VATCredit.Equal(dec("11.3")))
	assert.True(t, full.Summary.VATPosition.Equal(dec("20.2")))
	assert.True(t, full.Summary.IssuedTotal.Equal(dec("181.5")))
	assert.Equal(t, 2, full.Summary.IssuedCount)
	assert.Equal(t, 3, full.Summary.ReceivedCount)
	require.Len(t, full.Issued, 2)
	assert.Equal(t, "10/01/2026", full.Issued[0].Date)
	assert.Equal(t, "Factura B", full.Issued[0].DocumentTypeName)
	require.Len(t, full.Ranking, 2)
	assert.Equal(t, "PROVEEDOR A", full.Ranking[0].CounterpartyName)
	assert.True(t, full.Ranking[0].VATTotal.Equal(dec("7.1")))
	assert.Equal(t, 2, full.Ranking[0].Count)

	has, err := f.store.HasPeriod(ctx, "2026-01")
	require.NoError(t, err)
	assert.True(t, has)

	again, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	assert.True(t, again.Summary.VATPosition.Equal(full.Summary.VATPosition))
}

func TestResolvePeriod_StoreTakesPrecedenceOverFiles(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	ctx := context.Background()

	_, err := f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)

	f.write(t, "2026-01", models.DirectionIssued, otherIssuedCSV)

	for name, svc := range map[string]PeriodService{"same service": f.service, "fresh report cache": f.newService()} {
		t.Run(name, func(t *testing.T) {
			full, err := svc.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
			require.NoError(t, err)
			assert.Equal(t, SourceCache, full.Source)
			assert.True(t, full.Summary.VATDebit.Equal(dec("31.5")))
			assert.Len(t, full.Issued, 2)
		})
	}
}

func TestResolvePeriod_Errors(t *testing.T) {
	f := newPeriodFixture(t)

	_, err := f.service.ResolvePeriod(context.Background(), PeriodQuery{Key: "2026-02"})
	assert.True(t, errors.Is(err, ErrPeriodNotFound))

	for _, key := range []string{"", "2026-13", "202601", "2026-1", "../etc"} {
		_, err := f.service.ResolvePeriod(context.Background(), PeriodQuery{Key: key})
		assert.True(t, errors.Is(err, ErrInvalidPeriod), key)
	}
}

func TestResolvePeriod_Paged(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, receivedCSV)

	full, err := f.service.ResolvePeriod(context.Background(), PeriodQuery{
		Key:          "2026-01",
		IssuedPage:   &models.PageRequest{Page: 2, PageSize: 1},
		ReceivedPage: &models.PageRequest{Page: 1, PageSize: 2},
	})
	require.NoError(t, err)

	require.Len(t, full.Issued, 1)
	assert.Equal(t, "05/01/2026", full.Issued[0].Date)
	require.NotNil(t, full.IssuedPagination)
	assert.Equal(t, models.Pagination{Total: 2, Page: 2, PageSize: 1, TotalPages: 2}, *full.IssuedPagination)
	assert.Len(t, full.Received, 2)
	assert.Equal(t, 3, full.ReceivedPagination.Total)
	assert.Equal(t, 3, full.Summary.ReceivedCount)
}

func TestIngestFiles_InvalidatesReportCache(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, receivedCSV)
	ctx := context.Background()

	_, err := f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)
	cached, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	assert.True(t, cached.Summary.VATDebit.Equal(dec("31.5")))
	ranking, err := f.service.GetRanking(ctx, "2026-01")
	require.NoError(t, err)
	assert.Len(t, ranking, 2)

	f.write(t, "2026-01", models.DirectionIssued, otherIssuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, "Fecha de Emisión;Denominación Emisor;Total IVA\n")
	reingested, err := f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, SourceFiles, reingested.Source)

	fresh, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	assert.True(t, fresh.Summary.VATDebit.Equal(dec("999")))
	assert.Equal(t, 0, fresh.Summary.ReceivedCount)

	ranking, err = f.service.GetRanking(ctx, "2026-01")
	require.NoError(t, err)
	assert.Empty(t, ranking)
}

func TestResolvePeriod_DropsReportsSavedElsewhere(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, receivedCSV)
	ctx := context.Background()

	_, err := f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)
	cached, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	require.True(t, cached.Summary.VATDebit.Equal(dec("31.5")))
	ranking, err := f.service.GetRanking(ctx, "2026-01")
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	// A second service with its own cache, like the ingest command run next to the server.
	f.write(t, "2026-01", models.DirectionIssued, otherIssuedCSV)
	f.write(t, "2026-01", models.DirectionReceived, "Fecha de Emisión;Denominación Emisor;Total IVA\n")
	_, err = f.newService().IngestFiles(ctx, "2026-01")
	require.NoError(t, err)

	fresh, err := f.service.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, fresh.Source)
	assert.True(t, fresh.Summary.VATDebit.Equal(dec("999")))
	assert.Equal(t, 0, fresh.Summary.ReceivedCount)

	ranking, err = f.service.GetRanking(ctx, "2026-01")
	require.NoError(t, err)
	assert.Empty(t, ranking)
}

func TestResolvePeriod_DropsReportsOverwrittenDuringRead(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	ctx := context.Background()
	_, err := f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)

	reportCache := cache.New(time.Minute, CacheCleanupInterval)
	svc := NewPeriodService(f.store, f.files, processors.NewPeriodAggregator(), reportCache)
	stale, err := svc.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)

	// Save and invalidate complete, then the earlier read stores its payload.
	f.write(t, "2026-01", models.DirectionIssued, otherIssuedCSV)
	_, err = svc.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)
	reportCache.Set("res_full_period_2026-01_all_all", cachedReport{updatedAt: *stale.UpdatedAt, value: stale}, cache.DefaultExpiration)

	fresh, err := svc.ResolvePeriod(ctx, PeriodQuery{Key: "2026-01"})
	require.NoError(t, err)
	assert.True(t, fresh.Summary.VATDebit.Equal(dec("999")))
}

func TestIngestFiles_SingleDirection(t *testing.T) {
	f := newPeriodFixture(t)
	f.write(t, "2025-12", models.DirectionReceived, receivedCSV)

	full, err := f.service.IngestFiles(context.Background(), "2025-12")
	require.NoError(t, err)

	assert.Equal(t, 0, full.Summary.IssuedCount)
	assert.True(t, full.Summary.VATDebit.IsZero())
	assert.True(t, full.Summary.VATPosition.Equal(dec("-11.3")))
	assert.Empty(t, full.Issued)
	assert.Nil(t, full.IssuedPagination)
	assert.Equal(t, "Diciembre 2025", full.Label)
}

func TestIngestFiles_Failures(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		f := newPeriodFixture(t)
		_, err := f.service.IngestFiles(context.Background(), "2026-01")
		assert.True(t, errors.Is(err, ErrPeriodNotFound))
	})

	t.Run("archive without csv leaves the store untouched", func(t *testing.T) {
		f := newPeriodFixture(t)
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("readme.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("nothing here"))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		f.write(t, "2026-01", models.DirectionIssued, buf.String())
		f.write(t, "2026-01", models.DirectionReceived, receivedCSV)

		_, err = f.service.IngestFiles(context.Background(), "2026-01")
		require.Error(t, err)
		assert.True(t, errors.Is(err, parsers.ErrMissingEntry))
		assert.Contains(t, err.Error(), "emitidos")

		has, err := f.store.HasPeriod(context.Background(), "2026-01")
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestListPeriods(t *testing.T) {
	f := newPeriodFixture(t)
	ctx := context.Background()

	empty, err := f.service.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	f.write(t, "2026-01", models.DirectionIssued, issuedCSV)
	_, err = f.service.IngestFiles(ctx, "2026-01")
	require.NoError(t, err)
	f.write(t, "2025-11", models.DirectionReceived, receivedCSV)
	f.write(t, "2026-02", models.DirectionIssued, issuedCSV)
	f.write(t, "2026-02", models.DirectionReceived, receivedCSV)

	periods, err := f.service.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02", "2026-01", "2025-11"}, periods)
}

func TestGetRanking(t *testing.T) {
	t.Run("computed from file without storing", func(t *testing.T) {
		f := newPeriodFixture(t)
		f.write(t, "2026-03", models.DirectionReceived, receivedCSV)

		ranking, err := f.service.GetRanking(context.Background(), "2026-03")
		require.NoError(t, err)
		require.Len(t, ranking, 2)
		assert.Equal(t, "PROVEEDOR A", ranking[0].CounterpartyName)
		assert.Equal(t, "30-1", ranking[0].CounterpartyTaxID)
		assert.Equal(t, "PROVEEDOR B", ranking[1].CounterpartyName)

		has, err := f.store.HasPeriod(context.Background(), "2026-03")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("no data", func(t *testing.T) {
		f := newPeriodFixture(t)
		ranking, err := f.service.GetRanking(context.Background(), "2026-03")
		require.NoError(t, err)
		assert.NotNil(t, ranking)
		assert.Empty(t, ranking)
	})

	t.Run("invalid period", func(t *testing.T) {
		f := newPeriodFixture(t)
		_, err := f.service.GetRanking(context.Background(), "marzo")
		assert.True(t, errors.Is(err, ErrInvalidPeriod))
	})
}

func TestSaveUpload(t *testing.T) {
	f := newPeriodFixture(t)

	path, err := f.service.SaveUpload("2026-01", models.DirectionReceived, []byte(receivedCSV))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.files.Dir(), "2026-01_recibidos.csv"), path)
	assert.True(t, f.files.Exists("2026-01", models.DirectionReceived))

	_, err = f.service.SaveUpload("2026-01", models.Direction("otro"), []byte(receivedCSV))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.service.SaveUpload("enero", models.DirectionIssued, []byte(issuedCSV))
	assert.True(t, errors.Is(err, ErrInvalidPeriod))
}
