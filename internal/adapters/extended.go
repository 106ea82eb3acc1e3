package adapters

import (
	"context"
	"strconv"
	"strings"
)

// Extended polls the markets info endpoint. Funding is quoted hourly.
type Extended struct {
	baseURL string
	client  *Client
}

// NewExtended creates a new Extended adapter
func NewExtended() *Extended {
	return &Extended{
		baseURL: "https://api.extended.exchange",
		client:  NewClient("extended", defaultTimeout, 5),
	}
}

// Name implements Source.
func (e *Extended) Name() string { return "extended" }

type extendedMarketsResponse struct {
	Data []struct {
		Name         string `json:"name"`
		MarketStats  struct {
			FundingRate string `json:"fundingRate"`
			MarkPrice   string `json:"markPrice"`
			DailyVolume string `json:"dailyVolume"`
		} `json:"marketStats"`
	} `json:"data"`
}

// FetchSnapshot implements Source.
func (e *Extended) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var resp extendedMarketsResponse
	if err := e.client.GetJSON(ctx, e.baseURL+"/api/v1/info/markets", &resp); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, 0, len(resp.Data))
	for _, m := range resp.Data {
		// Market names look like "BTC-USD".
		symbol, _, found := strings.Cut(m.Name, "-")
		if !found || symbol == "" {
			continue
		}
		rate1h, err := strconv.ParseFloat(m.MarketStats.FundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "extended",
			Symbol:               symbol,
			Rate8h:               ptr(ScaleTo8h(rate1h, 1)),
			AnnualizedRate:       ptr(AnnualizeHourly(rate1h)),
			FundingIntervalHours: 1,
		}
		if mark, err := strconv.ParseFloat(m.MarketStats.MarkPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if v, err := strconv.ParseFloat(m.MarketStats.DailyVolume, 64); err == nil {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}
