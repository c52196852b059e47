package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Monetary fields leave the API as JSON numbers, the way the dashboard consumes them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Direction tells whether the taxpayer issued (sold) or received (bought) an invoice.
type Direction string

const (
	DirectionIssued   Direction = "emitido"
	DirectionReceived Direction = "recibido"
)

// FileToken is the direction part of the on-disk file name: {period}_{token}.csv
func (d Direction) FileToken() string {
	if d == DirectionReceived {
		return "recibidos"
	}
	return "emitidos"
}

// FilterCode is the direction filter understood by the remote automation ("E" or "R").
func (d Direction) FilterCode() string {
	if d == DirectionReceived {
		return "R"
	}
	return "E"
}

func (d Direction) Valid() bool {
	return d == DirectionIssued || d == DirectionReceived
}

// ParseDirection accepts the spellings used across the API, the file names and the remote filter.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emitido", "emitidos", "emitidas", "issued", "e":
		return DirectionIssued, true
	case "recibido", "recibidos", "recibidas", "received", "r":
		return DirectionReceived, true
	}
	return "", false
}

// Invoice is the canonical, source-independent invoice record ("comprobante").
// Every parser and the remote client produce this shape; the store persists it.
type Invoice struct {
	// --- Ownership / derived fields, not part of the wire payload ---
	Period    string    `json:"-"`
	Direction Direction `json:"-"`
	DateISO   string    `json:"-"` // yyyy-mm-dd, empty when the source date is unparsable
	Day       string    `json:"-"` // two-digit day of month, empty when unparsable

	// --- Fields populated from the source row ---
	Date              string          `json:"fecha"`
	DocumentTypeCode  int             `json:"tipoCodigo"`
	DocumentTypeName  string          `json:"tipoNombre"`
	PointOfSale       string          `json:"puntoVenta"`
	NumberFrom        string          `json:"numeroDesde"`
	NumberTo          string          `json:"numeroHasta"`
	CounterpartyName  string          `json:"denominacion"`
	CounterpartyTaxID string          `json:"nroDoc"`
	TaxableAmount     decimal.Decimal `json:"netoGravado"`
	NonTaxableAmount  decimal.Decimal `json:"netoNoGravado"`
	ExemptAmount      decimal.Decimal `json:"exento"`
	VATAmount         decimal.Decimal `json:"iva"`
	OtherTaxesAmount  decimal.Decimal `json:"otrosTributos"`
	TotalAmount       decimal.Decimal `json:"total"`
	AuthorizationCode string          `json:"cae"`
	Currency          string          `json:"moneda"`
	ExchangeRate      decimal.Decimal `json:"tipoCambio"`
}
