package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		text  string
		value float64
		unit  string
	}{
		{"1,234.56%", 1234.56, "%"},
		{"-0.42", -0.42, ""},
		{"3.5k SOL", 3500, "SOL"},
		{"$1.2M", 1.2e6, "$"},
		{"€500", 500, "€"},
		{"£2.5b", 2.5e9, "£"},
		{"0.001 BTC", 0.001, "BTC"},
		{"12 ETH", 12, "ETH"},
		{"42", 42, ""},
		{"  7.5%  ", 7.5, "%"},
	}

	for _, tt := range tests {
		parsed := ParseText(tt.text)
		require.NotNil(t, parsed.Value, "text %q should parse", tt.text)
		assert.InDelta(t, tt.value, *parsed.Value, 1e-9, tt.text)
		assert.Equal(t, tt.unit, parsed.Unit, tt.text)
	}
}

func TestParseText_Unparseable(t *testing.T) {
	for _, text := range []string{"", "n/a", "BTC", "--", "hello world"} {
		parsed := ParseText(text)
		assert.Nil(t, parsed.Value, "text %q should not parse", text)
	}
}

func TestParseText_CurrencyBeforeTicker(t *testing.T) {
	// Currency symbols win over crypto tickers; observed upstream behavior.
	parsed := ParseText("$1 BTC")
	assert.Equal(t, "$", parsed.Unit)
}

func TestFormatValue_RoundTrip(t *testing.T) {
	tests := []struct {
		value    float64
		unit     string
		decimals int
	}{
		{1234.56, "%", 2},
		{-0.42, "", 2},
		{3500, "SOL", 0},
		{1200000, "$", 0},
		{500, "€", 2},
		{-5.25, "$", 2},
		{0.001, "BTC", 3},
	}

	for _, tt := range tests {
		formatted := FormatValue(tt.value, tt.unit, tt.decimals)
		parsed := ParseText(formatted)
		require.NotNil(t, parsed.Value, "formatted %q should re-parse", formatted)
		assert.InDelta(t, tt.value, *parsed.Value, 1e-9, formatted)
		assert.Equal(t, tt.unit, parsed.Unit, formatted)
	}
}
