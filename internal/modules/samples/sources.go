package samples

import "fmt"

// Source id conventions shared by the pollers, the formula resolver, and
// the downsampler. Webhook samples use the raw webhook id as source id.

// FundingSourceID names a funding-rate series for one venue and symbol.
func FundingSourceID(venue, symbol string) string {
	return fmt.Sprintf("funding_%s_%s", venue, symbol)
}

// SpotSourceID names a spot-price series for one venue and symbol.
func SpotSourceID(venue, symbol string) string {
	return fmt.Sprintf("spot_%s_%s", venue, symbol)
}

// AccountValueSourceID names an account equity series.
func AccountValueSourceID(label string) string {
	return fmt.Sprintf("account_%s_value", label)
}

// PositionSourceID names a signed position-size series.
func PositionSourceID(label, symbol string) string {
	return fmt.Sprintf("account_%s_%s_position", label, symbol)
}

// HedgeSourceID names a derived net-exposure series.
func HedgeSourceID(label, symbol string) string {
	return fmt.Sprintf("hedge_%s_%s", label, symbol)
}
