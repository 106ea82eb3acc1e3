package adapters

import (
	"context"
	"strconv"
)

// Lighter polls the zkLighter funding-rates endpoint. Rates are quoted
// hourly; volume comes from the order-book details endpoint.
type Lighter struct {
	baseURL string
	client  *Client
}

// NewLighter creates a new Lighter adapter
func NewLighter() *Lighter {
	return &Lighter{
		baseURL: "https://mainnet.zklighter.elliot.ai",
		client:  NewClient("lighter", defaultTimeout, 5),
	}
}

// Name implements Source.
func (l *Lighter) Name() string { return "lighter" }

type lighterFundingResponse struct {
	FundingRates []struct {
		MarketID int    `json:"market_id"`
		Symbol   string `json:"symbol"`
		Rate     string `json:"rate"`
	} `json:"funding_rates"`
}

type lighterOrderBooksResponse struct {
	OrderBooks []struct {
		Symbol            string `json:"symbol"`
		LastTradePrice    string `json:"last_trade_price"`
		DailyQuoteVolume  string `json:"daily_quote_token_volume"`
	} `json:"order_books"`
}

// FetchSnapshot implements Source.
func (l *Lighter) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var funding lighterFundingResponse
	if err := l.client.GetJSON(ctx, l.baseURL+"/api/v1/funding-rates", &funding); err != nil {
		return nil, err
	}

	// Order-book details are best-effort enrichment; funding alone is a
	// complete snapshot.
	marks := make(map[string]float64)
	turnovers := make(map[string]float64)
	var books lighterOrderBooksResponse
	if err := l.client.GetJSON(ctx, l.baseURL+"/api/v1/orderBookDetails", &books); err == nil {
		for _, ob := range books.OrderBooks {
			if v, err := strconv.ParseFloat(ob.LastTradePrice, 64); err == nil {
				marks[ob.Symbol] = v
			}
			if v, err := strconv.ParseFloat(ob.DailyQuoteVolume, 64); err == nil {
				turnovers[ob.Symbol] = v
			}
		}
	}

	rates := make([]NormalizedRate, 0, len(funding.FundingRates))
	for _, f := range funding.FundingRates {
		rate1h, err := strconv.ParseFloat(f.Rate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "lighter",
			Symbol:               f.Symbol,
			Rate8h:               ptr(ScaleTo8h(rate1h, 1)),
			AnnualizedRate:       ptr(AnnualizeHourly(rate1h)),
			FundingIntervalHours: 1,
		}
		if v, ok := marks[f.Symbol]; ok {
			nr.MarkPrice = ptr(v)
		}
		if v, ok := turnovers[f.Symbol]; ok {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}
