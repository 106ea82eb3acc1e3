// Package adapters contains one source adapter per external venue. Each
// adapter fetches a snapshot over the venue's public REST API and
// normalizes funding periodicity to an 8-hour basis.
package adapters

import (
	"context"
	"time"
)

// NormalizedRate is the uniform funding-rate record produced by every
// venue adapter. Optional fields are nil when the venue does not report
// them.
type NormalizedRate struct {
	Venue           string     `json:"venue"`
	Symbol          string     `json:"symbol"`
	Rate8h          *float64   `json:"rate_8h"`
	AnnualizedRate  *float64   `json:"annualized_rate"`
	MarkPrice       *float64   `json:"mark_price"`
	NextFundingTime *time.Time `json:"next_funding_time"`
	Volume24h       *float64   `json:"volume_24h"`
	Turnover24h     *float64   `json:"turnover_24h"`

	// FundingIntervalHours records the upstream's declared periodicity
	// so consumers can audit the 8h scaling. 0 means the venue did not
	// declare one and 8h was assumed.
	FundingIntervalHours int `json:"funding_interval_hours"`

	// HasBinanceSpot is annotated by the snapshot cache, not adapters.
	HasBinanceSpot bool `json:"has_binance_spot"`
}

// SpotPrice is one spot market price.
type SpotPrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// AccountData is the result of one account poll: total value plus signed
// position sizes per symbol.
type AccountData struct {
	AccountValue float64            `json:"account_value"`
	Positions    map[string]float64 `json:"positions"`
}

// Source is the uniform per-venue contract. FetchSnapshot returns a
// (possibly empty) batch or an error, never a partial mix.
type Source interface {
	Name() string
	FetchSnapshot(ctx context.Context) ([]NormalizedRate, error)
}

// AccountSource is implemented by venues that also expose account state.
type AccountSource interface {
	Name() string
	FetchAccountData(ctx context.Context, address, label string) (*AccountData, error)
}

// minPositionSize filters dust positions out of account data.
const minPositionSize = 1e-4

// Periodicity normalization. Annualized figures are percentages.

// Annualize8h projects an 8h funding rate to a yearly percentage.
func Annualize8h(rate8h float64) float64 {
	return rate8h * 3 * 365 * 100
}

// AnnualizeHourly projects a 1h funding rate to a yearly percentage.
func AnnualizeHourly(rate1h float64) float64 {
	return rate1h * 24 * 365 * 100
}

// ScaleTo8h converts a rate quoted over the given window to 8h basis.
func ScaleTo8h(rate float64, hours float64) float64 {
	if hours <= 0 {
		return rate
	}
	return rate * 8 / hours
}

func ptr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// filterPositions drops positions below the dust threshold.
func filterPositions(positions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for symbol, size := range positions {
		if size < minPositionSize && size > -minPositionSize {
			continue
		}
		out[symbol] = size
	}
	return out
}
