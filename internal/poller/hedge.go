package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

// HedgeCalculator derives net-exposure samples from the latest account
// positions and spot prices: exposure = signed size * spot price. It
// reads and writes the same store the account and spot pollers feed.
type HedgeCalculator struct {
	repo     *samples.Repository
	labels   []string
	interval time.Duration
	log      zerolog.Logger
}

// NewHedgeCalculator creates a new hedge calculator
func NewHedgeCalculator(repo *samples.Repository, labels []string, interval time.Duration, log zerolog.Logger) *HedgeCalculator {
	if interval <= 0 {
		interval = HedgeInterval
	}
	return &HedgeCalculator{
		repo:     repo,
		labels:   labels,
		interval: interval,
		log:      log.With().Str("component", "hedge_calculator").Logger(),
	}
}

// Run loops until ctx is cancelled.
func (h *HedgeCalculator) Run(ctx context.Context) {
	if !sleep(ctx, warmUpDelay) {
		return
	}

	for {
		if err := h.calculate(); err != nil {
			h.log.Warn().Err(err).Msg("Hedge calculation failed")
		}
		if !sleep(ctx, h.interval) {
			return
		}
	}
}

func (h *HedgeCalculator) calculate() error {
	sources, err := h.repo.DistinctSources()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var rows []samples.Sample
	for _, label := range h.labels {
		for _, sourceID := range sources {
			symbol, ok := positionSymbol(sourceID, label)
			if !ok {
				continue
			}

			size, err := h.repo.LatestValue(sourceID)
			if err != nil {
				return err
			}
			price, err := h.repo.LatestValue(samples.SpotSourceID("binance", symbol))
			if err != nil {
				return err
			}
			if size == nil || price == nil {
				continue
			}

			exposure := *size * *price
			rows = append(rows, samples.Sample{
				SourceID:      samples.HedgeSourceID(label, symbol),
				DisplayName:   fmt.Sprintf("%s %s exposure", label, symbol),
				Value:         &exposure,
				Unit:          "$",
				DecimalPlaces: 2,
				Timestamp:     now,
				ReceivedAt:    now,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	if err := h.repo.InsertBatch(rows); err != nil {
		return err
	}
	h.log.Debug().Int("rows", len(rows)).Msg("Hedge exposures persisted")
	return nil
}

// positionSymbol extracts the symbol from "account_<label>_<SYM>_position".
func positionSymbol(sourceID, label string) (string, bool) {
	prefix := "account_" + label + "_"
	const suffix = "_position"
	if len(sourceID) <= len(prefix)+len(suffix) {
		return "", false
	}
	if sourceID[:len(prefix)] != prefix || sourceID[len(sourceID)-len(suffix):] != suffix {
		return "", false
	}
	return sourceID[len(prefix) : len(sourceID)-len(suffix)], true
}
