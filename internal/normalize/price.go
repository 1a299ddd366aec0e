// Package normalize validates raw source records and commits them to the
// append-only observation log. Unparseable records are dropped and counted,
// never fatal for the pass.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// currencySymbols are stripped from price text before numeric parsing.
var currencySymbols = []string{"$", "€", "£", "¥", "USD", "EUR", "GBP"}

// ParsePrice extracts a numeric price from display text such as
// "$3.49", "1,299.99" or "3.49 USD".
func ParsePrice(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("empty price text")
	}

	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %v", price)
	}
	return price, nil
}
