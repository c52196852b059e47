package processors

import (
	"github.com/matichattellino/euphoria-iva/src/models"
)

// PeriodAggregator derives the period aggregates from canonical invoices.
// Inputs are not retained or modified.
type PeriodAggregator interface {
	Summarize(issued, received []models.Invoice) models.Summary
	DailySeries(issued, received []models.Invoice) []models.DailyEntry
	Rank(received []models.Invoice) []models.RankEntry
}
