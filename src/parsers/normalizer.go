package parsers

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

const (
	defaultCurrency     = "PES"
	defaultExchangeRate = "1"
)

var documentTypeNames = map[int]string{
	1:  "Factura A",
	2:  "Nota de Débito A",
	3:  "Nota de Crédito A",
	6:  "Factura B",
	7:  "Nota de Débito B",
	8:  "Nota de Crédito B",
	11: "Factura C",
	12: "Nota de Débito C",
	13: "Nota de Crédito C",
}

// DocumentTypeName maps an AFIP document type code to its display name.
func DocumentTypeName(code int) string {
	if name, ok := documentTypeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Tipo %d", code)
}

// Normalize maps one raw row to the canonical invoice. It never fails: missing
// or malformed values become zero or the empty string.
func Normalize(row RawRow, schema Schema) models.Invoice {
	l := newLookup(row)

	code := leadingInt(l.first(schema.DocumentType))
	date := l.first(schema.Date)

	currency := l.first(schema.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	rate := l.first(schema.ExchangeRate)
	if rate == "" {
		rate = defaultExchangeRate
	}

	return models.Invoice{
		DateISO:           utils.ISODate(date),
		Day:               utils.DayToken(date),
		Date:              date,
		DocumentTypeCode:  code,
		DocumentTypeName:  DocumentTypeName(code),
		PointOfSale:       l.first(schema.PointOfSale),
		NumberFrom:        l.first(schema.NumberFrom),
		NumberTo:          l.first(schema.NumberTo),
		CounterpartyName:  l.first(schema.CounterpartyName),
		CounterpartyTaxID: l.first(schema.CounterpartyTaxID),
		TaxableAmount:     firstNonZero(l.amount(schema.TaxableTotal), l.amount(schema.TaxableLegacy)),
		NonTaxableAmount:  l.amount(schema.NonTaxable),
		ExemptAmount:      l.amount(schema.Exempt),
		VATAmount:         firstNonZero(l.amount(schema.VATTotal), l.sum(schema.VATRates), l.amount(schema.VATLegacy)),
		OtherTaxesAmount:  l.amount(schema.OtherTaxes),
		TotalAmount:       l.amount(schema.Total),
		AuthorizationCode: l.first(schema.AuthorizationCode),
		Currency:          currency,
		ExchangeRate:      utils.ParseDecimalAR(rate),
	}
}

// NormalizeAll maps a batch of rows, tagging each invoice with its period and direction.
func NormalizeAll(rows []RawRow, schema Schema, period string, direction models.Direction) []models.Invoice {
	out := make([]models.Invoice, 0, len(rows))
	for _, row := range rows {
		inv := Normalize(row, schema)
		inv.Period = period
		inv.Direction = direction
		out = append(out, inv)
	}
	return out
}

// A zero tier counts as absent and falls through to the next one.
func firstNonZero(tiers ...decimal.Decimal) decimal.Decimal {
	for _, d := range tiers {
		if !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// lookup resolves aliases against a row, first by exact column name and then
// by an accent- and case-folded name.
type lookup struct {
	row    RawRow
	folded map[string]string
}

func newLookup(row RawRow) *lookup {
	return &lookup{row: row}
}

func (l *lookup) first(aliases []string) string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(l.row[alias]); v != "" {
			return v
		}
	}
	if len(aliases) == 0 {
		return ""
	}
	if l.folded == nil {
		l.folded = make(map[string]string, len(l.row))
		for k, v := range l.row {
			key := foldKey(k)
			if _, seen := l.folded[key]; !seen || strings.TrimSpace(l.folded[key]) == "" {
				l.folded[key] = v
			}
		}
	}
	for _, alias := range aliases {
		if v := strings.TrimSpace(l.folded[foldKey(alias)]); v != "" {
			return v
		}
	}
	return ""
}

func (l *lookup) amount(aliases []string) decimal.Decimal {
	return utils.ParseAmountAR(l.first(aliases))
}

func (l *lookup) sum(columns []string) decimal.Decimal {
	total := decimal.Zero
	for _, col := range columns {
		total = total.Add(l.amount([]string{col}))
	}
	return total
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func foldKey(s string) string {
	s = accentFolder.Replace(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
}
