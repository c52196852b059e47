package processors

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// periodAggregatorImpl implements the PeriodAggregator interface.
type periodAggregatorImpl struct{}

// NewPeriodAggregator creates a new instance of PeriodAggregator.
func NewPeriodAggregator() PeriodAggregator {
	return &periodAggregatorImpl{}
}

func (a *periodAggregatorImpl) Summarize(issued, received []models.Invoice) models.Summary {
	issuedTotal, debit := sumTotalAndVAT(issued)
	receivedTotal, credit := sumTotalAndVAT(received)

	return models.Summary{
		IssuedTotal:   utils.Round2(issuedTotal),
		ReceivedTotal: utils.Round2(receivedTotal),
		VATDebit:      utils.Round2(debit),
		VATCredit:     utils.Round2(credit),
		VATPosition:   utils.Round2(debit.Sub(credit)),
		IssuedCount:   len(issued),
		ReceivedCount: len(received),
	}
}

func sumTotalAndVAT(invoices []models.Invoice) (total, vat decimal.Decimal) {
	for _, inv := range invoices {
		total = total.Add(inv.TotalAmount)
		vat = vat.Add(inv.VATAmount)
	}
	return total, vat
}

// DailySeries groups VAT by day of month. Invoices whose date has no
// recognizable day are left out.
func (a *periodAggregatorImpl) DailySeries(issued, received []models.Invoice) []models.DailyEntry {
	byDay := make(map[string]*models.DailyEntry)
	entry := func(day string) *models.DailyEntry {
		e, ok := byDay[day]
		if !ok {
			e = &models.DailyEntry{Day: day, Debit: decimal.Zero, Credit: decimal.Zero}
			byDay[day] = e
		}
		return e
	}

	for _, inv := range issued {
		if day := utils.DayToken(inv.Date); day != "" {
			e := entry(day)
			e.Debit = e.Debit.Add(inv.VATAmount)
		}
	}
	for _, inv := range received {
		if day := utils.DayToken(inv.Date); day != "" {
			e := entry(day)
			e.Credit = e.Credit.Add(inv.VATAmount)
		}
	}

	series := make([]models.DailyEntry, 0, len(byDay))
	for _, e := range byDay {
		series = append(series, models.DailyEntry{
			Day:    e.Day,
			Debit:  utils.Round2(e.Debit),
			Credit: utils.Round2(e.Credit),
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Day < series[j].Day })
	return series
}

// Rank groups received invoices by counterparty name, largest VAT credit first.
// The tax id is taken from the first invoice of each group; equal VAT totals
// keep the order in which their counterparties first appear.
func (a *periodAggregatorImpl) Rank(received []models.Invoice) []models.RankEntry {
	index := make(map[string]int)
	var ranking []models.RankEntry

	for _, inv := range received {
		name := inv.CounterpartyName
		if name == "" {
			name = models.UnknownCounterparty
		}
		i, ok := index[name]
		if !ok {
			i = len(ranking)
			index[name] = i
			ranking = append(ranking, models.RankEntry{
				CounterpartyName:  name,
				CounterpartyTaxID: inv.CounterpartyTaxID,
			})
		}
		r := &ranking[i]
		r.VATTotal = r.VATTotal.Add(inv.VATAmount)
		r.TaxableTotal = r.TaxableTotal.Add(inv.TaxableAmount)
		r.AmountTotal = r.AmountTotal.Add(inv.TotalAmount)
		r.Count++
	}

	for i := range ranking {
		ranking[i].VATTotal = utils.Round2(ranking[i].VATTotal)
		ranking[i].TaxableTotal = utils.Round2(ranking[i].TaxableTotal)
		ranking[i].AmountTotal = utils.Round2(ranking[i].AmountTotal)
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].VATTotal.GreaterThan(ranking[j].VATTotal)
	})
	if ranking == nil {
		ranking = []models.RankEntry{}
	}
	return ranking
}
