package adapters

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// grvtFanout bounds per-instrument subrequest parallelism.
const grvtFanout = 5

// GRVT lists perpetual instruments and fans out one ticker request per
// instrument, bounded by a semaphore. The batch gets the long timeout.
// The 8h-average funding rate is preferred; the instantaneous rate of
// undeclared period is the fallback.
type GRVT struct {
	baseURL string
	client  *Client
}

// NewGRVT creates a new GRVT adapter
func NewGRVT() *GRVT {
	return &GRVT{
		baseURL: "https://market-data.grvt.io",
		client:  NewClient("grvt", batchTimeout, 5),
	}
}

// Name implements Source.
func (g *GRVT) Name() string { return "grvt" }

type grvtInstrumentsResponse struct {
	Result []struct {
		Instrument string `json:"instrument"`
		Base       string `json:"base"`
	} `json:"result"`
}

type grvtTickerResponse struct {
	Result struct {
		FundingRate8hAvg string `json:"funding_rate_8_h_avg"`
		FundingRate      string `json:"funding_rate"`
		MarkPrice        string `json:"mark_price"`
		NextFundingTime  int64  `json:"next_funding_time"`
		Volume24hQ       string `json:"volume_24_h_q"`
	} `json:"result"`
}

// FetchSnapshot implements Source.
func (g *GRVT) FetchSnapshot(ctx context.Context) ([]NormalizedRate, error) {
	var instruments grvtInstrumentsResponse
	listBody := map[string]any{"kind": []string{"PERPETUAL"}, "is_active": true}
	if err := g.client.PostJSON(ctx, g.baseURL+"/full/v1/instruments", listBody, &instruments); err != nil {
		return nil, err
	}

	rates := make([]NormalizedRate, len(instruments.Result))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(grvtFanout)

	for i, inst := range instruments.Result {
		i, inst := i, inst
		group.Go(func() error {
			var ticker grvtTickerResponse
			body := map[string]string{"instrument": inst.Instrument}
			if err := g.client.PostJSON(groupCtx, g.baseURL+"/full/v1/ticker", body, &ticker); err != nil {
				return err
			}

			raw := ticker.Result.FundingRate8hAvg
			if raw == "" {
				raw = ticker.Result.FundingRate
			}
			rate8h, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				// Leave the slot empty; compacted below.
				return nil
			}

			nr := NormalizedRate{
				Venue:                "grvt",
				Symbol:               inst.Base,
				Rate8h:               ptr(rate8h),
				AnnualizedRate:       ptr(Annualize8h(rate8h)),
				FundingIntervalHours: 8,
			}
			if mark, err := strconv.ParseFloat(ticker.Result.MarkPrice, 64); err == nil {
				nr.MarkPrice = ptr(mark)
			}
			if ticker.Result.NextFundingTime > 0 {
				nr.NextFundingTime = timePtr(time.UnixMilli(ticker.Result.NextFundingTime).UTC())
			}
			if v, err := strconv.ParseFloat(ticker.Result.Volume24hQ, 64); err == nil {
				nr.Turnover24h = ptr(v)
			}
			rates[i] = nr
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]NormalizedRate, 0, len(rates))
	for _, nr := range rates {
		if nr.Symbol != "" {
			out = append(out, nr)
		}
	}
	return out, nil
}
