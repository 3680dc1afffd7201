package transform

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ParseBRDecimal parses a locale-formatted amount such as "1234,56",
// "-10,5" or "1.234,56". The decimal comma becomes a point; when both
// separators are present the points are thousands separators and dropped.
func ParseBRDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	if s == "" {
		return decimal.Zero, eris.New("transform: empty amount")
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "transform: parse amount %q", s)
	}
	return d, nil
}

// ledgerDateLayouts are tried in order: day-first layouts first, then ISO.
var ledgerDateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// ParseLedgerDate parses a day-first ledger date.
func ParseLedgerDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	for _, layout := range ledgerDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("transform: unrecognized date %q", s)
}

// NormalizeState upper-cases and trims a two-letter UF code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
