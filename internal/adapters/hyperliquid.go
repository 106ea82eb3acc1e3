package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Hyperliquid polls the info endpoint. Funding is quoted hourly and
// scaled to the 8h basis. The same endpoint also serves account state.
type Hyperliquid struct {
	baseURL string
	client  *Client
}

// NewHyperliquid creates a new Hyperliquid adapter
func NewHyperliquid() *Hyperliquid {
	return &Hyperliquid{
		baseURL: "https://api.hyperliquid.xyz",
		client:  NewClient("hyperliquid", defaultTimeout, 5),
	}
}

// Name implements Source.
func (h *Hyperliquid) Name() string { return "hyperliquid" }

type hyperliquidMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type hyperliquidAssetCtx struct {
	Funding   string `json:"funding"`
	MarkPx    string `json:"markPx"`
	DayNtlVlm string `json:"dayNtlVlm"`
}

// FetchSnapshot implements Source. The response is a two-element array:
// asset metadata, then per-asset contexts in the same order.
func (h *Hyperliquid) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var raw []json.RawMessage
	body := map[string]string{"type": "metaAndAssetCtxs"}
	if err := h.client.PostJSON(ctx, h.baseURL+"/info", body, &raw); err != nil {
		return nil, err
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("%w: unexpected response shape", ErrFetchFailed)
	}

	var meta hyperliquidMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	var ctxs []hyperliquidAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(ctxs) != len(meta.Universe) {
		return nil, fmt.Errorf("%w: universe and context lengths differ", ErrFetchFailed)
	}

	rates := make([]NormalizedRate, 0, len(ctxs))
	for i, c := range ctxs {
		rate1h, err := strconv.ParseFloat(c.Funding, 64)
		if err != nil {
			continue
		}

		nr := NormalizedRate{
			Venue:                "hyperliquid",
			Symbol:               meta.Universe[i].Name,
			Rate8h:               ptr(ScaleTo8h(rate1h, 1)),
			AnnualizedRate:       ptr(AnnualizeHourly(rate1h)),
			FundingIntervalHours: 1,
		}
		if mark, err := strconv.ParseFloat(c.MarkPx, 64); err == nil {
			nr.MarkPrice = ptr(mark)
		}
		if v, err := strconv.ParseFloat(c.DayNtlVlm, 64); err == nil {
			nr.Turnover24h = ptr(v)
		}
		rates = append(rates, nr)
	}
	return rates, nil
}

type hyperliquidClearinghouse struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	AssetPositions []struct {
		Position struct {
			Coin string `json:"coin"`
			Szi  string `json:"szi"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// FetchAccountData implements AccountSource.
func (h *Hyperliquid) FetchAccountData(ctx context.Context, address, label string) (*AccountData, error) {
	var state hyperliquidClearinghouse
	body := map[string]string{"type": "clearinghouseState", "user": address}
	if err := h.client.PostJSON(ctx, h.baseURL+"/info", body, &state); err != nil {
		return nil, err
	}

	value, err := strconv.ParseFloat(state.MarginSummary.AccountValue, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad account value %q", ErrFetchFailed, state.MarginSummary.AccountValue)
	}

	positions := make(map[string]float64, len(state.AssetPositions))
	for _, p := range state.AssetPositions {
		size, err := strconv.ParseFloat(p.Position.Szi, 64)
		if err != nil {
			continue
		}
		positions[p.Position.Coin] = size
	}

	return &AccountData{
		AccountValue: value,
		Positions:    filterPositions(positions),
	}, nil
}
