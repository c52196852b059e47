package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/processors"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// Numbers are kept as their literal text so tax ids and amounts survive decoding.
var automationJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const (
	automationName   = "mis-comprobantes"
	maxErrorBodySize = 2048

	jobStatusComplete = "complete"
	jobStatusError    = "error"
)

// Credentials authenticate against the automation service (Token) and the tax portal.
type Credentials struct {
	Token    string
	CUIT     string
	Username string
	Password string
}

func (c Credentials) validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "accessToken")
	}
	if c.CUIT == "" {
		missing = append(missing, "cuit")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// DateRange is an inclusive range of issue dates written dd/mm/yyyy.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) validate() error {
	if _, ok := utils.ParsePortalDate(r.From); !ok {
		return fmt.Errorf("%w: fechaDesde %q is not a dd/mm/yyyy date", ErrInvalidInput, r.From)
	}
	if _, ok := utils.ParsePortalDate(r.To); !ok {
		return fmt.Errorf("%w: fechaHasta %q is not a dd/mm/yyyy date", ErrInvalidInput, r.To)
	}
	return nil
}

type AutomationConfig struct {
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
	HTTPTimeout  time.Duration
}

// AutomationService runs "mis-comprobantes" jobs on the remote automation service.
type AutomationService interface {
	// FetchInvoices submits a job and blocks, polling, until it completes,
	// fails or exhausts the polling budget.
	FetchInvoices(ctx context.Context, direction models.Direction, creds Credentials, dates DateRange) ([]parsers.RawRow, error)
	FetchListing(ctx context.Context, direction models.Direction, creds Credentials, dates DateRange) (*models.InvoiceListing, error)
	FetchPosition(ctx context.Context, creds Credentials, dates DateRange) (*models.FullPeriod, error)
}

type automationServiceImpl struct {
	httpClient   *http.Client
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	aggregator   processors.PeriodAggregator
	log          zerolog.Logger
}

func NewAutomationService(cfg AutomationConfig, aggregator processors.PeriodAggregator) AutomationService {
	log := logger.WithComponent("automation")

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create cookie jar")
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &automationServiceImpl{
		httpClient:   &http.Client{Jar: jar, Timeout: cfg.HTTPTimeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		aggregator:   aggregator,
		log:          log,
	}
}

type automationRequest struct {
	Automation string           `json:"automation"`
	Params     automationParams `json:"params"`
}

type automationParams struct {
	CUIT     string            `json:"cuit"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Filters  automationFilters `json:"filters"`
}

type automationFilters struct {
	Direction string `json:"t"`
	IssueDate string `json:"fechaEmision"`
}

type jobStatus struct {
	Status string                   `json:"status"`
	Data   []map[string]interface{} `json:"data"`
	Error  interface{}              `json:"error"`
}

func (s *automationServiceImpl) FetchInvoices(ctx context.Context, direction models.Direction, creds Credentials, dates DateRange) ([]parsers.RawRow, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if err := dates.validate(); err != nil {
		return nil, err
	}

	jobID, err := s.submitJob(ctx, direction, creds, dates)
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("jobId", jobID).Str("direction", string(direction)).Logger()
	log.Info().Str("from", dates.From).Str("to", dates.To).Msg("Automation job submitted")

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= s.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, err := s.pollJob(ctx, creds.Token, jobID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case jobStatusComplete:
			rows := make([]parsers.RawRow, 0, len(status.Data))
			for _, item := range status.Data {
				rows = append(rows, toRawRow(item))
			}
			log.Info().Int("attempt", attempt).Int("rows", len(rows)).Msg("Automation job complete")
			return rows, nil
		case jobStatusError:
			detail := errorDetail(status.Error)
			log.Warn().Int("attempt", attempt).Str("detail", detail).Msg("Automation job failed")
			return nil, &RemoteJobFailed{JobID: jobID, Detail: detail}
		}

		log.Debug().Int("attempt", attempt).Str("status", status.Status).Msg("Automation job still pending")
		timer.Reset(s.pollInterval)
	}

	log.Warn().Int("polls", s.maxPolls).Msg("Automation job timed out")
	return nil, fmt.Errorf("%w: job %s after %d polls", ErrRemoteTimeout, jobID, s.maxPolls)
}

func (s *automationServiceImpl) submitJob(ctx context.Context, direction models.Direction, creds Credentials, dates DateRange) (string, error) {
	const op = "submit automation job"

	payload, err := automationJSON.Marshal(automationRequest{
		Automation: automationName,
		Params: automationParams{
			CUIT:     creds.CUIT,
			Username: creds.Username,
			Password: creds.Password,
			Filters: automationFilters{
				Direction: direction.FilterCode(),
				IssueDate: dates.From + " - " + dates.To,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	body, err := s.do(ctx, op, http.MethodPost, s.baseURL+"/automations", creds.Token, payload)
	if err != nil {
		return "", err
	}
	id := jsoniter.Get(body, "id").ToString()
	if id == "" {
		return "", &RemoteTransportError{Op: op, StatusCode: http.StatusOK, Body: truncate(string(body))}
	}
	return id, nil
}

func (s *automationServiceImpl) pollJob(ctx context.Context, token, jobID string) (*jobStatus, error) {
	const op = "poll automation job"

	body, err := s.do(ctx, op, http.MethodGet, s.baseURL+"/automations/"+jobID, token, nil)
	if err != nil {
		return nil, err
	}
	var status jobStatus
	if err := automationJSON.Unmarshal(body, &status); err != nil {
		return nil, &RemoteTransportError{Op: op, StatusCode: http.StatusOK, Body: truncate(string(body)), Err: err}
	}
	return &status, nil
}

// do performs one request. Non-2xx answers are returned as RemoteTransportError
// and never retried here.
func (s *automationServiceImpl) do(ctx context.Context, op, method, url, token string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteTransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteTransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteTransportError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

func (s *automationServiceImpl) FetchListing(ctx context.Context, direction models.Direction, creds Credentials, dates DateRange) (*models.InvoiceListing, error) {
	rows, err := s.FetchInvoices(ctx, direction, creds, dates)
	if err != nil {
		return nil, err
	}
	invoices := parsers.NormalizeAll(rows, parsers.RemoteSchema, periodOf(dates), direction)

	listing := &models.InvoiceListing{Count: len(invoices), Invoices: invoices}
	for _, inv := range invoices {
		listing.Total = listing.Total.Add(inv.TotalAmount)
		listing.VATTotal = listing.VATTotal.Add(inv.VATAmount)
	}
	listing.Total = utils.Round2(listing.Total)
	listing.VATTotal = utils.Round2(listing.VATTotal)
	return listing, nil
}

// FetchPosition fetches both directions concurrently and aggregates them.
// The result is not stored.
func (s *automationServiceImpl) FetchPosition(ctx context.Context, creds Credentials, dates DateRange) (*models.FullPeriod, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if err := dates.validate(); err != nil {
		return nil, err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	period := periodOf(dates)
	results := make(map[models.Direction][]models.Invoice, 2)

	for _, direction := range []models.Direction{models.DirectionIssued, models.DirectionReceived} {
		wg.Add(1)
		go func(direction models.Direction) {
			defer wg.Done()
			rows, err := s.FetchInvoices(ctx, direction, creds, dates)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", direction.FileToken(), err))
				return
			}
			results[direction] = parsers.NormalizeAll(rows, parsers.RemoteSchema, period, direction)
		}(direction)
	}
	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	issued, received := results[models.DirectionIssued], results[models.DirectionReceived]
	return &models.FullPeriod{
		Key:                period,
		Label:              utils.PeriodLabel(period),
		Source:             SourceRemote,
		Summary:            s.aggregator.Summarize(issued, received),
		Issued:             issued,
		IssuedPagination:   models.SinglePage(len(issued)),
		Received:           received,
		ReceivedPagination: models.SinglePage(len(received)),
		Ranking:            s.aggregator.Rank(received),
		Daily:              s.aggregator.DailySeries(issued, received),
	}, nil
}

// periodOf is the YYYY-MM of the first day of the range.
func periodOf(dates DateRange) string {
	t, ok := utils.ParsePortalDate(dates.From)
	if !ok {
		return ""
	}
	return t.Format("2006-01")
}

// toRawRow flattens a remote record to text. Numbers are rewritten with a
// decimal comma so they parse like portal amounts.
func toRawRow(item map[string]interface{}) parsers.RawRow {
	row := make(parsers.RawRow, len(item))
	for key, value := range item {
		switch v := value.(type) {
		case nil:
			row[key] = ""
		case string:
			row[key] = v
		case json.Number:
			row[key] = strings.Replace(v.String(), ".", ",", 1)
		case float64:
			row[key] = strings.Replace(decimal.NewFromFloat(v).String(), ".", ",", 1)
		case bool:
			row[key] = strconv.FormatBool(v)
		default:
			encoded, err := automationJSON.MarshalToString(v)
			if err != nil {
				encoded = fmt.Sprint(v)
			}
			row[key] = encoded
		}
	}
	return row
}

func errorDetail(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "unknown error"
	case string:
		if v == "" {
			return "unknown error"
		}
		return v
	default:
		encoded, err := automationJSON.MarshalToString(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return encoded
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBodySize {
		return s[:maxErrorBodySize] + "..."
	}
	return s
}
