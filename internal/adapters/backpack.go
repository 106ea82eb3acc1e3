package adapters

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Backpack polls the markPrices endpoint. Funding is quoted hourly and
// scaled by 8 to the common basis.
type Backpack struct {
	baseURL string
	client  *Client
}

// NewBackpack creates a new Backpack adapter
func NewBackpack() *Backpack {
	return &Backpack{
		baseURL: "https://api.backpack.exchange",
		client:  NewClient("backpack", defaultTimeout, 5),
	}
}

// Name implements Source.
func (b *Backpack) Name() string { return "backpack" }

type backpackMarkPrice struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	MarkPrice            string `json:"markPrice"`
	NextFundingTimestamp int64  `json:"nextFundingTimestamp"`
}

// FetchSnapshot implements Source.
func (b *Backpack) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var raw []backpackMarkPrice
	if err := b.client.GetJSON(ctx, b.baseURL+"/api/v1/markPrices", &raw); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, 0, len(raw))
	for _, m := range raw {
		symbol, ok := backpackBase(m.Symbol)
		if !ok {
			continue
		}
		rate1h, err := strconv.ParseFloat(m.FundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "backpack",
			Symbol:               symbol,
			Rate8h:               ptr(rate1h * 8),
			AnnualizedRate:       ptr(AnnualizeHourly(rate1h)),
			FundingIntervalHours: 1,
		}
		if mark, err := strconv.ParseFloat(m.MarkPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if m.NextFundingTimestamp > 0 {
			nr.NextFundingTime = timePtr(time.UnixMilli(m.NextFundingTimestamp).UTC())
		}
		rates = append(rates, nr)
	}
	return rates, nil
}

// backpackBase extracts the base symbol from "BTC_USDC_PERP".
func backpackBase(symbol string) (string, bool) {
	base, _, found := strings.Cut(symbol, "_")
	if !found || base == "" || !strings.HasSuffix(symbol, "_PERP") {
		return "", false
	}
	return base, true
}
