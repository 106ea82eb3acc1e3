package adapters

import (
	"context"
	"strconv"
	"time"
)

// Bybit polls the v5 linear tickers endpoint. Funding is quoted over 8
// hours and the ticker already carries volume and turnover.
type Bybit struct {
	baseURL string
	client  *Client
}

// NewBybit creates a new Bybit adapter
func NewBybit() *Bybit {
	return &Bybit{
		baseURL: "https://api.bybit.com",
		client:  NewClient("bybit", defaultTimeout, 5),
	}
}

// Name implements Source.
func (b *Bybit) Name() string { return "bybit" }

type bybitTickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol          string `json:"symbol"`
			FundingRate     string `json:"fundingRate"`
			MarkPrice       string `json:"markPrice"`
			NextFundingTime string `json:"nextFundingTime"`
			Volume24h       string `json:"volume24h"`
			Turnover24h     string `json:"turnover24h"`
		} `json:"list"`
	} `json:"result"`
}

// FetchSnapshot implements Source.
func (b *Bybit) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var resp bybitTickersResponse
	url := b.baseURL + "/v5/market/tickers?category=linear"
	if err := b.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		symbol, ok := baseFromUSDT(t.Symbol)
		if !ok {
			continue
		}
		rate8h, err := strconv.ParseFloat(t.FundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "bybit",
			Symbol:               symbol,
			Rate8h:               ptr(rate8h),
			AnnualizedRate:       ptr(Annualize8h(rate8h)),
			FundingIntervalHours: 8,
		}
		if mark, err := strconv.ParseFloat(t.MarkPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if ms, err := strconv.ParseInt(t.NextFundingTime, 10, 64); err == nil && ms > 0 {
			nr.NextFundingTime = timePtr(time.UnixMilli(ms).UTC())
		}
		if v, err := strconv.ParseFloat(t.Volume24h, 64); err == nil {
			nr.Volume24h = ptr(v)
		}
		if v, err := strconv.ParseFloat(t.Turnover24h, 64); err == nil {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}
