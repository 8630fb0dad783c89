package inflight

import (
	"strconv"
	"strings"
)

// Key builds a registry key from the parts that make two requests identical
func Key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(p)
	}
	return b.String()
}

// HistoryKey identifies a history request
func HistoryKey(symbol string, months int, granularity string) string {
	return Key("history", strings.ToUpper(symbol), strconv.Itoa(months), granularity)
}

// PredictionKey identifies a prediction request
func PredictionKey(symbol, horizon string) string {
	return Key("prediction", strings.ToUpper(symbol), horizon)
}
