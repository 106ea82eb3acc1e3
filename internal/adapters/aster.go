package adapters

import (
	"context"
	"strconv"
	"time"
)

// Aster exposes a Binance-compatible futures API. Funding is quoted over
// 8 hours.
type Aster struct {
	baseURL string
	client  *Client
}

// NewAster creates a new Aster adapter
func NewAster() *Aster {
	return &Aster{
		baseURL: "https://fapi.asterdex.com",
		client:  NewClient("aster", defaultTimeout, 5),
	}
}

// Name implements Source.
func (a *Aster) Name() string { return "aster" }

// FetchSnapshot implements Source. Response shapes match the Binance
// futures API.
func (a *Aster) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var premiums []binancePremiumIndex
	if err := a.client.GetJSON(ctx, a.baseURL+"/fapi/v1/premiumIndex", &premiums); err != nil {
		return nil, err
	}

	var tickers []binanceTicker24h
	if err := a.client.GetJSON(ctx, a.baseURL+"/fapi/v1/ticker/24hr", &tickers); err != nil {
		return nil, err
	}
	turnover := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if v, err := strconv.ParseFloat(t.QuoteVolume, 64); err == nil {
			turnover[t.Symbol] = v
		}
	}

	rates := make([]NormalizedRate, 0, len(premiums))
	for _, p := range premiums {
		symbol, ok := baseFromUSDT(p.Symbol)
		if !ok {
			continue
		}
		rate8h, err := strconv.ParseFloat(p.LastFundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "aster",
			Symbol:               symbol,
			Rate8h:               ptr(rate8h),
			AnnualizedRate:       ptr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mark, err := strconv.ParseFloat(p.MarkPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if p.NextFundingTime > 0 {
			nr.NextFundingTime = timePtr(time.UnixMilli(p.NextFundingTime).UTC())
		}
		if v, ok := turnover[p.Symbol]; ok {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}
