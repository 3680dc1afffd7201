package etl

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ans-cli/internal/model"
)

// statPlaces is the rounding applied to every aggregated figure.
const statPlaces = 2

type groupKey struct {
	name  string
	state string
}

// Aggregate groups rows by (legal name, state) and computes the total, the
// mean and the sample standard deviation of their amounts, rounded to two
// places. Names and states are grouped and persisted as they arrive; rows
// with a blank name or state are excluded. The result is
// sorted by total descending; ties keep the order in which groups were first
// seen.
func Aggregate(rows []model.ValidatedExpense) ([]model.AggregatedStat, AggregateReport) {
	report := AggregateReport{Input: len(rows)}

	var order []groupKey
	groups := make(map[groupKey][]decimal.Decimal)
	for _, r := range rows {
		key := groupKey{name: r.LegalName, state: r.State}
		if strings.TrimSpace(key.name) == "" || strings.TrimSpace(key.state) == "" {
			report.Excluded++
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r.Amount)
	}

	stats := make([]model.AggregatedStat, 0, len(order))
	for _, key := range order {
		stats = append(stats, summarize(key, groups[key]))
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Total.GreaterThan(stats[j].Total)
	})

	report.Groups = len(stats)
	return stats, report
}

func summarize(key groupKey, amounts []decimal.Decimal) model.AggregatedStat {
	n := decimal.NewFromInt(int64(len(amounts)))
	total := decimal.Sum(amounts[0], amounts[1:]...)
	mean := total.Div(n)

	return model.AggregatedStat{
		CompanyName: key.name,
		State:       key.state,
		Total:       total.Round(statPlaces),
		Average:     mean.Round(statPlaces),
		StdDev:      sampleStdDev(amounts, mean),
	}
}

// sampleStdDev returns the n-1 standard deviation, invalid when n < 2.
func sampleStdDev(amounts []decimal.Decimal, mean decimal.Decimal) decimal.NullDecimal {
	if len(amounts) < 2 {
		return decimal.NullDecimal{}
	}
	m := mean.InexactFloat64()
	var ss float64
	for _, a := range amounts {
		d := a.InexactFloat64() - m
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(amounts)-1))
	return decimal.NewNullDecimal(decimal.NewFromFloat(sd).Round(statPlaces))
}
