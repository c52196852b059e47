package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Invoice dates arrive as dd/mm/yyyy from the portal files and the remote
// automation, and occasionally as yyyy-mm-dd.
var invoiceDateLayouts = []string{"02/01/2006", "2/1/2006", "2006-01-02"}

// PortalDateLayout is the only date format the portal scraper and the remote
// "fechaEmision" filter accept.
const PortalDateLayout = "02/01/2006"

var periodPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// ParseInvoiceDate parses an invoice date in any of the accepted layouts.
func ParseInvoiceDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParsePortalDate parses a dd/mm/yyyy date as sent to the portal. Unlike
// ParseInvoiceDate it rejects every other layout, since the value is forwarded verbatim.
func ParsePortalDate(raw string) (time.Time, bool) {
	t, err := time.Parse(PortalDateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DayToken returns the two-digit day of month of an invoice date, or "" when
// the date cannot be parsed.
func DayToken(raw string) string {
	t, ok := ParseInvoiceDate(raw)
	if !ok {
		return ""
	}
	return t.Format("02")
}

// ISODate returns the yyyy-mm-dd form of an invoice date, or "".
func ISODate(raw string) string {
	t, ok := ParseInvoiceDate(raw)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// ValidPeriod reports whether key is a YYYY-MM period with a real month.
func ValidPeriod(key string) bool {
	if !periodPattern.MatchString(key) {
		return false
	}
	month, _ := strconv.Atoi(key[5:])
	return month >= 1 && month <= 12
}

// MonthName returns the Spanish name of a month (1-12).
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthNames[month-1]
}

// PeriodLabel turns "2026-01" into "Enero 2026". Invalid keys are returned unchanged.
func PeriodLabel(key string) string {
	if !ValidPeriod(key) {
		return key
	}
	month, _ := strconv.Atoi(key[5:])
	return fmt.Sprintf("%s %s", MonthName(month), key[:4])
}

// PeriodRange returns the first and last day of the period as dd/mm/yyyy.
func PeriodRange(key string) (from, to string, err error) {
	if !ValidPeriod(key) {
		return "", "", fmt.Errorf("invalid period %q", key)
	}
	start, err := time.Parse("2006-01", key)
	if err != nil {
		return "", "", fmt.Errorf("invalid period %q: %w", key, err)
	}
	end := start.AddDate(0, 1, -1)
	return start.Format(PortalDateLayout), end.Format(PortalDateLayout), nil
}
