package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

const timestampLayout = time.RFC3339Nano

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists periods and their invoices. Amounts are kept as integer cents
// so that grouped SQL sums are exact.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// SavePeriod replaces everything stored for key in a single transaction: the
// period row is upserted, its previous invoices deleted and the given ones
// inserted in order, issued first.
func (s *Store) SavePeriod(ctx context.Context, key, label string, summary models.Summary, issued, received []models.Invoice) (err error) {
	const op = "save period"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.L.Error().Err(rbErr).Str("period", key).Msg("Failed to roll back period save")
			}
		}
	}()

	now := s.now().UTC().Format(timestampLayout)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO periods (
			id, label, issued_total_cents, received_total_cents, vat_debit_cents, vat_credit_cents,
			vat_position_cents, issued_count, received_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			issued_total_cents = excluded.issued_total_cents,
			received_total_cents = excluded.received_total_cents,
			vat_debit_cents = excluded.vat_debit_cents,
			vat_credit_cents = excluded.vat_credit_cents,
			vat_position_cents = excluded.vat_position_cents,
			issued_count = excluded.issued_count,
			received_count = excluded.received_count,
			updated_at = excluded.updated_at`,
		key, label,
		utils.ToCents(summary.IssuedTotal), utils.ToCents(summary.ReceivedTotal),
		utils.ToCents(summary.VATDebit), utils.ToCents(summary.VATCredit), utils.ToCents(summary.VATPosition),
		summary.IssuedCount, summary.ReceivedCount, now, now,
	)
	if err != nil {
		return storageError(op+": upsert period", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM invoices WHERE period_id = ?`, key); err != nil {
		return storageError(op+": delete invoices", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invoices (
			period_id, direction, date, date_iso, day, document_type_code, document_type_name,
			point_of_sale, number_from, number_to, counterparty_name, counterparty_tax_id,
			taxable_cents, non_taxable_cents, exempt_cents, vat_cents, other_taxes_cents, total_cents,
			authorization_code, currency, exchange_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageError(op+": prepare insert", err)
	}
	defer stmt.Close()

	batches := []struct {
		direction models.Direction
		invoices  []models.Invoice
	}{
		{models.DirectionIssued, issued},
		{models.DirectionReceived, received},
	}
	for _, batch := range batches {
		for _, inv := range batch.invoices {
			_, err = stmt.ExecContext(ctx,
				key, string(batch.direction), inv.Date, utils.ISODate(inv.Date), utils.DayToken(inv.Date),
				inv.DocumentTypeCode, inv.DocumentTypeName, inv.PointOfSale, inv.NumberFrom, inv.NumberTo,
				inv.CounterpartyName, inv.CounterpartyTaxID,
				utils.ToCents(inv.TaxableAmount), utils.ToCents(inv.NonTaxableAmount), utils.ToCents(inv.ExemptAmount),
				utils.ToCents(inv.VATAmount), utils.ToCents(inv.OtherTaxesAmount), utils.ToCents(inv.TotalAmount),
				inv.AuthorizationCode, inv.Currency, inv.ExchangeRate.String(),
			)
			if err != nil {
				return storageError(op+": insert invoice", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return storageError(op+": commit", err)
	}
	logger.L.Info().Str("period", key).Int("issued", len(issued)).Int("received", len(received)).Msg("Period stored")
	return nil
}

func (s *Store) HasPeriod(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM periods WHERE id = ?)`, key).Scan(&exists)
	if err != nil {
		return false, storageError("has period", err)
	}
	return exists == 1, nil
}

// GetPeriod returns ErrNotFound when the period was never stored.
func (s *Store) GetPeriod(ctx context.Context, key string) (*models.Period, error) {
	return getPeriod(ctx, s.db, key)
}

func getPeriod(ctx context.Context, q querier, key string) (*models.Period, error) {
	rows, err := q.QueryContext(ctx, periodSelect+` WHERE id = ?`, key)
	if err != nil {
		return nil, storageError("get period", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storageError("get period", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	p, err := scanPeriod(rows)
	if err != nil {
		return nil, storageError("get period", err)
	}
	return p, nil
}

// ListPeriods returns every stored period, newest key first.
func (s *Store) ListPeriods(ctx context.Context) ([]models.Period, error) {
	rows, err := s.db.QueryContext(ctx, periodSelect+` ORDER BY id DESC`)
	if err != nil {
		return nil, storageError("list periods", err)
	}
	defer rows.Close()

	periods := []models.Period{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, storageError("list periods", err)
		}
		periods = append(periods, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list periods", err)
	}
	return periods, nil
}

const periodSelect = `
	SELECT id, label, issued_total_cents, received_total_cents, vat_debit_cents, vat_credit_cents,
		vat_position_cents, issued_count, received_count, created_at, updated_at
	FROM periods`

func scanPeriod(rows *sql.Rows) (*models.Period, error) {
	var (
		p                                                   models.Period
		issuedTotal, receivedTotal, debit, credit, position int64
		createdAt, updatedAt                                string
	)
	err := rows.Scan(&p.Key, &p.Label, &issuedTotal, &receivedTotal, &debit, &credit, &position,
		&p.Summary.IssuedCount, &p.Summary.ReceivedCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Summary.IssuedTotal = utils.FromCents(issuedTotal)
	p.Summary.ReceivedTotal = utils.FromCents(receivedTotal)
	p.Summary.VATDebit = utils.FromCents(debit)
	p.Summary.VATCredit = utils.FromCents(credit)
	p.Summary.VATPosition = utils.FromCents(position)
	if p.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if p.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &p, nil
}

// GetInvoices lists one direction of a period, newest date first and, within
// a date, last inserted first. A nil page returns every row without pagination.
func (s *Store) GetInvoices(ctx context.Context, key string, direction models.Direction, page *models.PageRequest) (models.InvoicePage, error) {
	return getInvoices(ctx, s.db, key, direction, page)
}

func getInvoices(ctx context.Context, q querier, key string, direction models.Direction, page *models.PageRequest) (models.InvoicePage, error) {
	const op = "get invoices"
	query := `
		SELECT date, date_iso, day, document_type_code, document_type_name, point_of_sale,
			number_from, number_to, counterparty_name, counterparty_tax_id,
			taxable_cents, non_taxable_cents, exempt_cents, vat_cents, other_taxes_cents, total_cents,
			authorization_code, currency, exchange_rate
		FROM invoices
		WHERE period_id = ? AND direction = ?
		ORDER BY date_iso DESC, id DESC`
	args := []any{key, string(direction)}

	paged := page != nil && page.PageSize > 0
	if paged {
		if page.Page < 1 {
			page = &models.PageRequest{Page: 1, PageSize: page.PageSize}
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.PageSize, page.Offset())
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return models.InvoicePage{}, storageError(op, err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv := models.Invoice{Period: key, Direction: direction}
		var taxable, nonTaxable, exempt, vat, other, total int64
		var rate string
		err := rows.Scan(&inv.Date, &inv.DateISO, &inv.Day, &inv.DocumentTypeCode, &inv.DocumentTypeName,
			&inv.PointOfSale, &inv.NumberFrom, &inv.NumberTo, &inv.CounterpartyName, &inv.CounterpartyTaxID,
			&taxable, &nonTaxable, &exempt, &vat, &other, &total,
			&inv.AuthorizationCode, &inv.Currency, &rate)
		if err != nil {
			return models.InvoicePage{}, storageError(op, err)
		}
		inv.TaxableAmount = utils.FromCents(taxable)
		inv.NonTaxableAmount = utils.FromCents(nonTaxable)
		inv.ExemptAmount = utils.FromCents(exempt)
		inv.VATAmount = utils.FromCents(vat)
		inv.OtherTaxesAmount = utils.FromCents(other)
		inv.TotalAmount = utils.FromCents(total)
		if inv.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
			inv.ExchangeRate = decimal.Zero
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return models.InvoicePage{}, storageError(op, err)
	}

	if !paged {
		return models.InvoicePage{Rows: invoices, Total: len(invoices)}, nil
	}

	var count int
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE period_id = ? AND direction = ?`,
		key, string(direction)).Scan(&count)
	if err != nil {
		return models.InvoicePage{}, storageError(op+": count", err)
	}
	return models.InvoicePage{
		Rows:  invoices,
		Total: count,
		Pagination: &models.Pagination{
			Total:      count,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: (count + page.PageSize - 1) / page.PageSize,
		},
	}, nil
}

// GetRanking groups the received invoices of a period by counterparty name
// (blank names share one bucket), ordered by VAT total and then by first appearance.
func (s *Store) GetRanking(ctx context.Context, key string) ([]models.RankEntry, error) {
	return getRanking(ctx, s.db, key)
}

func getRanking(ctx context.Context, q querier, key string) ([]models.RankEntry, error) {
	// With a single MIN() aggregate SQLite takes bare columns from the row
	// holding the minimum, so tax_id is the one of the first invoice.
	rows, err := q.QueryContext(ctx, `
		SELECT name, tax_id, vat, taxable, total, cnt FROM (
			SELECT COALESCE(NULLIF(counterparty_name, ''), ?) AS name,
				counterparty_tax_id AS tax_id,
				MIN(id) AS first_id,
				SUM(vat_cents) AS vat,
				SUM(taxable_cents) AS taxable,
				SUM(total_cents) AS total,
				COUNT(*) AS cnt
			FROM invoices
			WHERE period_id = ? AND direction = ?
			GROUP BY name
		)
		ORDER BY vat DESC, first_id ASC`,
		models.UnknownCounterparty, key, string(models.DirectionReceived))
	if err != nil {
		return nil, storageError("get ranking", err)
	}
	defer rows.Close()

	ranking := []models.RankEntry{}
	for rows.Next() {
		var r models.RankEntry
		var vat, taxable, total int64
		if err := rows.Scan(&r.CounterpartyName, &r.CounterpartyTaxID, &vat, &taxable, &total, &r.Count); err != nil {
			return nil, storageError("get ranking", err)
		}
		r.VATTotal = utils.FromCents(vat)
		r.TaxableTotal = utils.FromCents(taxable)
		r.AmountTotal = utils.FromCents(total)
		ranking = append(ranking, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get ranking", err)
	}
	return ranking, nil
}

// GetDailySeries sums VAT per day of month; rows without a day token are left out.
func (s *Store) GetDailySeries(ctx context.Context, key string) ([]models.DailyEntry, error) {
	return getDailySeries(ctx, s.db, key)
}

func getDailySeries(ctx context.Context, q querier, key string) ([]models.DailyEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT day,
			SUM(CASE WHEN direction = ? THEN vat_cents ELSE 0 END),
			SUM(CASE WHEN direction = ? THEN vat_cents ELSE 0 END)
		FROM invoices
		WHERE period_id = ? AND day != ''
		GROUP BY day
		ORDER BY day`,
		string(models.DirectionIssued), string(models.DirectionReceived), key)
	if err != nil {
		return nil, storageError("get daily series", err)
	}
	defer rows.Close()

	series := []models.DailyEntry{}
	for rows.Next() {
		var e models.DailyEntry
		var debit, credit int64
		if err := rows.Scan(&e.Day, &debit, &credit); err != nil {
			return nil, storageError("get daily series", err)
		}
		e.Debit = utils.FromCents(debit)
		e.Credit = utils.FromCents(credit)
		series = append(series, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get daily series", err)
	}
	return series, nil
}

// GetFullPeriod assembles the dashboard payload inside one read transaction so
// every part reflects the same save.
func (s *Store) GetFullPeriod(ctx context.Context, key string, issuedPage, receivedPage *models.PageRequest) (*models.FullPeriod, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("get full period", err)
	}
	defer tx.Rollback()

	period, err := getPeriod(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	issued, err := getInvoices(ctx, tx, key, models.DirectionIssued, issuedPage)
	if err != nil {
		return nil, err
	}
	received, err := getInvoices(ctx, tx, key, models.DirectionReceived, receivedPage)
	if err != nil {
		return nil, err
	}
	ranking, err := getRanking(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	daily, err := getDailySeries(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	updatedAt := period.UpdatedAt
	return &models.FullPeriod{
		Key:                period.Key,
		Label:              period.Label,
		Summary:            period.Summary,
		Issued:             issued.Rows,
		IssuedPagination:   paginationFor(issued),
		Received:           received.Rows,
		ReceivedPagination: paginationFor(received),
		Ranking:            ranking,
		Daily:              daily,
		UpdatedAt:          &updatedAt,
	}, nil
}

func paginationFor(page models.InvoicePage) *models.Pagination {
	if page.Total > 0 && page.Pagination != nil {
		return page.Pagination
	}
	return models.SinglePage(page.Total)
}
