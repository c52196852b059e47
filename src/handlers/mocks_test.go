package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/services"
)

type MockPeriodService struct {
	mock.Mock
}

func (m *MockPeriodService) ResolvePeriod(ctx context.Context, q services.PeriodQuery) (*models.FullPeriod, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FullPeriod), args.Error(1)
}

func (m *MockPeriodService) ListPeriods(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPeriodService) GetRanking(ctx context.Context, key string) ([]models.RankEntry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RankEntry), args.Error(1)
}

func (m *MockPeriodService) SaveUpload(period string, direction models.Direction, content []byte) (string, error) {
	args := m.Called(period, direction, content)
	return args.String(0), args.Error(1)
}

func (m *MockPeriodService) IngestFiles(ctx context.Context, key string) (*models.FullPeriod, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FullPeriod), args.Error(1)
}

type MockScraperService struct {
	mock.Mock
}

func (m *MockScraperService) Launch(period, dateFrom, dateTo string) (models.ScraperState, error) {
	args := m.Called(period, dateFrom, dateTo)
	return args.Get(0).(models.ScraperState), args.Error(1)
}

func (m *MockScraperService) GetStatus() models.ScraperState {
	return m.Called().Get(0).(models.ScraperState)
}

type MockAutomationService struct {
	mock.Mock
}

func (m *MockAutomationService) FetchInvoices(ctx context.Context, direction models.Direction, creds services.Credentials, dates services.DateRange) ([]parsers.RawRow, error) {
	args := m.Called(ctx, direction, creds, dates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]parsers.RawRow), args.Error(1)
}

func (m *MockAutomationService) FetchListing(ctx context.Context, direction models.Direction, creds services.Credentials, dates services.DateRange) (*models.InvoiceListing, error) {
	args := m.Called(ctx, direction, creds, dates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceListing), args.Error(1)
}

func (m *MockAutomationService) FetchPosition(ctx context.Context, creds services.Credentials, dates services.DateRange) (*models.FullPeriod, error) {
	args := m.Called(ctx, creds, dates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FullPeriod), args.Error(1)
}
