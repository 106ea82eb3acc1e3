package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Drift polls the data API's contracts endpoint for funding and the user
// endpoint for account state. Funding is quoted hourly.
type Drift struct {
	baseURL string
	client  *Client
}

// NewDrift creates a new Drift adapter
func NewDrift() *Drift {
	return &Drift{
		baseURL: "https://data.api.drift.trade",
		client:  NewClient("drift", defaultTimeout, 5),
	}
}

// Name implements Source.
func (d *Drift) Name() string { return "drift" }

type driftContractsResponse struct {
	Contracts []struct {
		TickerID        string `json:"ticker_id"`
		ProductType     string `json:"product_type"`
		FundingRate     string `json:"funding_rate"`
		IndexPrice      string `json:"index_price"`
		QuoteVolume     string `json:"quote_volume"`
		NextFundingRate string `json:"next_funding_rate"`
	} `json:"contracts"`
}

// FetchSnapshot implements Source.
func (d *Drift) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var resp driftContractsResponse
	if err := d.client.GetJSON(ctx, d.baseURL+"/contracts", &resp); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, 0, len(resp.Contracts))
	for _, c := range resp.Contracts {
		if c.ProductType != "PERP" {
			continue
		}
		// Ticker ids look like "SOL-PERP".
		symbol, _, found := strings.Cut(c.TickerID, "-")
		if !found || symbol == "" {
			continue
		}
		rate1h, err := strconv.ParseFloat(c.FundingRate, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "drift",
			Symbol:               symbol,
			Rate8h:               ptr(ScaleTo8h(rate1h, 1)),
			AnnualizedRate:       ptr(AnnualizeHourly(rate1h)),
			FundingIntervalHours: 1,
		}
		if mark, err := strconv.ParseFloat(c.IndexPrice, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if v, err := strconv.ParseFloat(c.QuoteVolume, 64); err == nil {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}

type driftUserResponse struct {
	TotalCollateral string `json:"total_collateral"`
	PerpPositions   []struct {
		Market        string `json:"market"`
		BaseAssetSize string `json:"base_asset_size"`
	} `json:"perp_positions"`
}

// FetchAccountData implements AccountSource.
func (d *Drift) FetchAccountData(ctx context.Context, address, label string) (*AccountData, error) {
	var user driftUserResponse
	url := d.baseURL + "/user?authority=" + address
	if err := d.client.GetJSON(ctx, url, &user); err != nil {
		return nil, err
	}

	value, err := strconv.ParseFloat(user.TotalCollateral, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad collateral %q", ErrFetchFailed, user.TotalCollateral)
	}

	positions := make(map[string]float64, len(user.PerpPositions))
	for _, p := range user.PerpPositions {
		symbol, _, found := strings.Cut(p.Market, "-")
		if !found || symbol == "" {
			continue
		}
		size, err := strconv.ParseFloat(p.BaseAssetSize, 64)
		if err != nil {
			continue
		}
		positions[symbol] = size
	}

	return &AccountData{
		AccountValue: value,
		Positions:    filterPositions(positions),
	}, nil
}
