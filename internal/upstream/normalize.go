package upstream

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeBars truncates periods to the bucket, widens high/low to contain
// open and close, defaults the currency, collapses duplicate buckets (the
// later bar wins) and sorts oldest first.
func NormalizeBars(bars []Bar, g models.Granularity, currency string) []Bar {
	currency = models.NormalizeCurrency(currency)
	byPeriod := make(map[time.Time]int, len(bars))
	out := make([]Bar, 0, len(bars))

	for _, b := range bars {
		b.Period = g.Truncate(b.Period)
		if b.Currency == "" {
			b.Currency = currency
		} else {
			b.Currency = models.NormalizeCurrency(b.Currency)
		}
		b.High = decimal.Max(b.High, b.Open, b.Close, b.Low)
		b.Low = decimal.Min(b.Low, b.Open, b.Close, b.High)
		if b.Volume < 0 {
			b.Volume = 0
		}

		if i, ok := byPeriod[b.Period]; ok {
			out[i] = b
			continue
		}
		byPeriod[b.Period] = len(out)
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}
