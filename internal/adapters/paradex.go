package adapters

import (
	"context"
	"strconv"
	"strings"
)

// Paradex polls the markets summary endpoint. Funding is quoted over 8
// hours.
type Paradex struct {
	baseURL string
	client  *Client
}

// NewParadex creates a new Paradex adapter
func NewParadex() *Paradex {
	return &Paradex{
		baseURL: "https://api.prod.paradex.trade",
		client:  NewClient("paradex", defaultTimeout, 5),
	}
}

// Name implements Source.
func (p *Paradex) Name() string { return "paradex" }

type paradexSummaryResponse struct {
	Results []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"funding_rate"`
		MarkPrice   string `json:"mark_price"`
		Volume24h   string `json:"volume_24h"`
	} `json:"results"`
}

// FetchSnapshot implements Source.
func (p *Paradex) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var resp paradexSummaryResponse
	url := p.baseURL + "/v1/markets/summary?market=ALL"
	if err := p.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, 0, len(resp.Results))
	for _, m := range resp.Results {
		symbol, ok := paradexBase(m.Symbol)
		if !ok {
			continue
		}
		rate8h, err := strconv.ParseFloat(m.FundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "paradex",
			Symbol:               symbol,
			Rate8h:               ptr(rate8h),
			AnnualizedRate:       ptr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mark, err := strconv.ParseFloat(m.MarkPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if v, err := strconv.ParseFloat(m.Volume24h, 64); err == nil {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}

// paradexBase extracts the base symbol from "BTC-USD-PERP".
func paradexBase(symbol string) (string, bool) {
	base, rest, found := strings.Cut(symbol, "-")
	if !found || base == "" || !strings.HasSuffix(rest, "PERP") {
		return "", false
	}
	return base, true
}
