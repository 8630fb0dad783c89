package upstream

import (
	"strings"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// CategoryMatcher tags symbols that follow one lexical convention
type CategoryMatcher struct {
	Category string
	Match    func(symbol string) bool
}

func hasPrefix(prefix string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, prefix) }
}

func hasSuffix(suffixes ...string) func(string) bool {
	return func(s string) bool {
		for _, suffix := range suffixes {
			if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
				return true
			}
		}
		return false
	}
}

// DefaultMatchers are evaluated in order; the first match wins
var DefaultMatchers = []CategoryMatcher{
	{Category: models.CategoryIndex, Match: hasPrefix("^")},
	{Category: models.CategoryCurrency, Match: hasSuffix("=X")},
	{Category: models.CategoryCommodity, Match: hasSuffix("=F")},
	{Category: models.CategoryCrypto, Match: hasSuffix("-USD", "-USDT", "-USDC", "-EUR", "-GBP", "-BTC", "-ETH")},
}

// InferCategory guesses an asset category from symbol conventions and falls
// back to stock
func InferCategory(symbol string) string {
	return InferCategoryWith(DefaultMatchers, symbol)
}

// InferCategoryWith evaluates a custom matcher list
func InferCategoryWith(matchers []CategoryMatcher, symbol string) string {
	symbol = NormalizeSymbol(symbol)
	for _, m := range matchers {
		if m.Match(symbol) {
			return m.Category
		}
	}
	return models.CategoryStock
}
