package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the VAT position of a period.
type Summary struct {
	IssuedTotal   decimal.Decimal `json:"facturacion_emitida"`
	ReceivedTotal decimal.Decimal `json:"facturacion_recibida"`
	VATDebit      decimal.Decimal `json:"iva_debito"`
	VATCredit     decimal.Decimal `json:"iva_credito"`
	VATPosition   decimal.Decimal `json:"posicion_iva"`
	IssuedCount   int             `json:"cantidad_emitidas"`
	ReceivedCount int             `json:"cantidad_recibidas"`
}

// CreditRatio is credit/debit, defined as 0 when there is no debit.
func (s Summary) CreditRatio() decimal.Decimal {
	if s.VATDebit.IsZero() {
		return decimal.Zero
	}
	return s.VATCredit.DivRound(s.VATDebit, 4)
}

type DailyEntry struct {
	Day    string          `json:"dia"`
	Debit  decimal.Decimal `json:"debito"`
	Credit decimal.Decimal `json:"credito"`
}

// UnknownCounterparty is the ranking bucket for invoices without a counterparty name.
const UnknownCounterparty = "UNKNOWN"

// RankEntry is one supplier in the received-invoice ranking, ordered by VAT credit.
type RankEntry struct {
	CounterpartyName  string          `json:"denominacion"`
	CounterpartyTaxID string          `json:"nroDoc"`
	VATTotal          decimal.Decimal `json:"ivaTotal"`
	TaxableTotal      decimal.Decimal `json:"netoTotal"`
	AmountTotal       decimal.Decimal `json:"importeTotal"`
	Count             int             `json:"cantidad"`
}

// Period is the cached header row of an ingested month.
type Period struct {
	Key       string    `json:"id"`
	Label     string    `json:"periodo"`
	Summary   Summary   `json:"resumen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageRequest asks for a 1-based page. A nil *PageRequest means "everything".
type PageRequest struct {
	Page     int
	PageSize int
}

func (p *PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// SinglePage describes an unpaged listing of total rows. Empty listings carry no pagination.
func SinglePage(total int) *Pagination {
	if total == 0 {
		return nil
	}
	return &Pagination{Total: total, Page: 1, PageSize: total, TotalPages: 1}
}

// InvoicePage is the result of an invoice listing. Pagination is nil when no page was requested.
type InvoicePage struct {
	Rows       []Invoice
	Total      int
	Pagination *Pagination
}

// FullPeriod is the dashboard payload for one period.
type FullPeriod struct {
	Key                string       `json:"id"`
	Label              string       `json:"periodo"`
	Source             string       `json:"source"`
	Summary            Summary      `json:"resumen"`
	Issued             []Invoice    `json:"emitidas"`
	IssuedPagination   *Pagination  `json:"emitidas_pagination"`
	Received           []Invoice    `json:"recibidas"`
	ReceivedPagination *Pagination  `json:"recibidas_pagination"`
	Ranking            []RankEntry  `json:"proveedores"`
	Daily              []DailyEntry `json:"iva_diario"`
	UpdatedAt          *time.Time   `json:"updated_at,omitempty"`
}

// InvoiceListing is a one-direction answer from the remote automation.
type InvoiceListing struct {
	Count    int             `json:"cantidad"`
	Total    decimal.Decimal `json:"total"`
	VATTotal decimal.Decimal `json:"iva_total"`
	Invoices []Invoice       `json:"comprobantes"`
}
