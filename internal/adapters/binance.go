package adapters

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Binance polls the USD-M futures API for funding and the spot API for
// prices. Funding is quoted over 8 hours.
type Binance struct {
	futuresURL string
	spotURL    string
	client     *Client
}

// NewBinance creates a new Binance adapter
func NewBinance() *Binance {
	return &Binance{
		futuresURL: "https://fapi.binance.com",
		spotURL:    "https://api.binance.com",
		client:     NewClient("binance", defaultTimeout, 10),
	}
}

// Name implements Source.
func (b *Binance) Name() string { return "binance" }

type binancePremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

type binanceTicker24h struct {
	Symbol      string `json:"symbol"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
}

// FetchSnapshot implements Source.
func (b *Binance) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var premiums []binancePremiumIndex
	if err := b.client.GetJSON(ctx, b.futuresURL+"/fapi/v1/premiumIndex", &premiums); err != nil {
		return nil, err
	}

	var tickers []binanceTicker24h
	if err := b.client.GetJSON(ctx, b.futuresURL+"/fapi/v1/ticker/24hr", &tickers); err != nil {
		return nil, err
	}
	turnover := make(map[string]float64, len(tickers))
	volume := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if v, err := strconv.ParseFloat(t.QuoteVolume, 64); err == nil {
			turnover[t.Symbol] = v
		}
		if v, err := strconv.ParseFloat(t.Volume, 64); err == nil {
			volume[t.Symbol] = v
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
			Venue:                "binance",
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
		if v, ok := volume[p.Symbol]; ok {
			nr.Volume24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}

type binanceSpotPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchSpotPrices returns current spot prices for all USDT pairs, keyed
// by base symbol.
func (b *Binance) FetchSpotPrices(ctx context.Context) ([]SpotPrice, error) {
	var raw []binanceSpotPrice
	if err := b.client.GetJSON(ctx, b.spotURL+"/api/v3/ticker/price", &raw); err != nil {
		return nil, err
	}

	prices := make([]SpotPrice, 0, len(raw))
	for _, p := range raw {
		symbol, ok := baseFromUSDT(p.Symbol)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			continue
		}
		prices = append(prices, SpotPrice{Symbol: symbol, Price: price})
	}
	return prices, nil
}

// FetchSpotUniverse returns the set of base symbols with a Binance USDT
// spot market. The snapshot cache uses it for the has_binance_spot
// annotation.
func (b *Binance) FetchSpotUniverse(ctx context.Context) (map[string]bool, error) {
	prices, err := b.FetchSpotPrices(ctx)
	if err != nil {
		return nil, err
	}
	universe := make(map[string]bool, len(prices))
	for _, p := range prices {
		universe[p.Symbol] = true
	}
	return universe, nil
}

// baseFromUSDT strips the USDT quote suffix: "BTCUSDT" -> "BTC".
func baseFromUSDT(pair string) (string, bool) {
	base, found := strings.CutSuffix(pair, "USDT")
	if !found || base == "" {
		return "", false
	}
	return base, true
}
