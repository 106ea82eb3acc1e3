// Package webhook implements distill webhook ingestion: payload
// validation, text-to-value parsing, and persistence with synchronous
// monitor recompute.
package webhook

import (
	"fmt"
	"strconv"
	"strings"
)

// currencyUnits are checked before crypto tickers. This means a text like
// "$1 BTC" is tagged "$"; observed upstream behavior, kept as-is.
var currencyUnits = []string{"%", "$", "€", "£"}

// tickerUnits are crypto suffix tokens, checked after currency symbols.
var tickerUnits = []string{"SOL", "ETH", "BTC"}

// ParsedValue is the outcome of parsing a captured text snippet.
type ParsedValue struct {
	Value *float64
	Unit  string
}

// ParseText extracts a numeric value and unit from captured text such as
// "1,234.56%", "-0.42", "3.5k SOL", "$1.2M". On parse failure Value is
// nil and the caller retains the raw text.
func ParseText(text string) ParsedValue {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedValue{}
	}

	unit := detectUnit(trimmed)

	cleaned := trimmed
	switch {
	case unit == "":
	case isTicker(unit):
		// Tickers are suffix tokens, matched case-insensitively.
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-len(unit)])
	default:
		cleaned = strings.ReplaceAll(cleaned, unit, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	multiplier := 1.0
	if len(cleaned) > 0 {
		switch cleaned[len(cleaned)-1] {
		case 'k', 'K':
			multiplier = 1e3
			cleaned = cleaned[:len(cleaned)-1]
		case 'm', 'M':
			multiplier = 1e6
			cleaned = cleaned[:len(cleaned)-1]
		case 'b', 'B':
			multiplier = 1e9
			cleaned = cleaned[:len(cleaned)-1]
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return ParsedValue{Unit: unit}
	}

	v := value * multiplier
	return ParsedValue{Value: &v, Unit: unit}
}

func isTicker(unit string) bool {
	for _, u := range tickerUnits {
		if u == unit {
			return true
		}
	}
	return false
}

func detectUnit(text string) string {
	for _, u := range currencyUnits {
		if strings.Contains(text, u) {
			return u
		}
	}
	upper := strings.ToUpper(text)
	for _, u := range tickerUnits {
		if strings.HasSuffix(upper, u) {
			return u
		}
	}
	return ""
}

// FormatValue renders a value with its unit so that re-parsing yields the
// same (value, unit) pair. Inverse of ParseText for in-grammar inputs.
func FormatValue(value float64, unit string, decimalPlaces int) string {
	if decimalPlaces < 0 {
		decimalPlaces = 2
	}
	num := strconv.FormatFloat(value, 'f', decimalPlaces, 64)

	switch unit {
	case "":
		return num
	case "%":
		return num + "%"
	case "$", "€", "£":
		if strings.HasPrefix(num, "-") {
			return "-" + unit + num[1:]
		}
		return unit + num
	default:
		return fmt.Sprintf("%s %s", num, unit)
	}
}
