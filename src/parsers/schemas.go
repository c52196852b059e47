package parsers

// Schema lists, per canonical field, the column names a source has used over
// time. Lookup walks each list in order and takes the first non-blank value.
type Schema struct {
	Name string

	DocumentType      []string
	Date              []string
	PointOfSale       []string
	NumberFrom        []string
	NumberTo          []string
	CounterpartyName  []string
	CounterpartyTaxID []string

	// Taxable base: aggregate column first, legacy column second.
	TaxableTotal  []string
	TaxableLegacy []string

	NonTaxable []string
	Exempt     []string

	// VAT: aggregate column, else the sum of the per-rate columns, else legacy.
	VATTotal  []string
	VATRates  []string
	VATLegacy []string

	OtherTaxes        []string
	Total             []string
	AuthorizationCode []string
	Currency          []string
	ExchangeRate      []string
}

// FileSchema covers "Mis Comprobantes" CSV downloads from the tax portal, which
// split VAT and taxable base per rate.
var FileSchema = Schema{
	Name:              "file",
	DocumentType:      []string{"Tipo de Comprobante", "Tipo"},
	Date:              []string{"Fecha de Emisión", "Fecha"},
	PointOfSale:       []string{"Punto de Venta"},
	NumberFrom:        []string{"Número Desde", "Numero Desde"},
	NumberTo:          []string{"Número Hasta", "Numero Hasta"},
	CounterpartyName:  []string{"Denominación Receptor", "Denominación Emisor", "Denominacion Receptor", "Denominacion Emisor"},
	CounterpartyTaxID: []string{"Nro. Doc. Receptor", "Nro. Doc. Emisor"},
	TaxableTotal:      []string{"Imp. Neto Gravado Total"},
	TaxableLegacy:     []string{"Imp. Neto Gravado"},
	NonTaxable:        []string{"Imp. Neto No Gravado"},
	Exempt:            []string{"Imp. Op. Exentas"},
	VATTotal:          []string{"Total IVA"},
	VATRates:          []string{"IVA 21%", "IVA 10,5%", "IVA 27%", "IVA 5%", "IVA 2,5%"},
	VATLegacy:         []string{"IVA"},
	OtherTaxes:        []string{"Otros Tributos"},
	Total:             []string{"Imp. Total"},
	AuthorizationCode: []string{"Cód. Autorización", "Cod. Autorizacion"},
	Currency:          []string{"Moneda"},
	ExchangeRate:      []string{"Tipo Cambio"},
}

// RemoteSchema covers rows returned by the remote automation, which report a
// single VAT column and a single taxable base.
var RemoteSchema = Schema{
	Name:              "remote",
	DocumentType:      []string{"Tipo de Comprobante", "Tipo"},
	Date:              []string{"Fecha de Emisión", "Fecha"},
	PointOfSale:       []string{"Punto de Venta"},
	NumberFrom:        []string{"Número Desde"},
	NumberTo:          []string{"Número Hasta"},
	CounterpartyName:  []string{"Denominación Receptor", "Denominación Emisor"},
	CounterpartyTaxID: []string{"Nro. Doc. Receptor", "Nro. Doc. Emisor"},
	TaxableLegacy:     []string{"Imp. Neto Gravado"},
	NonTaxable:        []string{"Imp. Neto No Gravado"},
	Exempt:            []string{"Imp. Op. Exentas"},
	VATLegacy:         []string{"IVA"},
	OtherTaxes:        []string{"Otros Tributos"},
	Total:             []string{"Imp. Total"},
	AuthorizationCode: []string{"Cód. Autorización"},
	Currency:          []string{"Moneda"},
	ExchangeRate:      []string{"Tipo Cambio"},
}
