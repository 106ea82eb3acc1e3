// Package poller runs the long-lived fetch loops: one per venue adapter,
// one per polled account, and the derived hedge calculator. Each loop is
// isolated; a sick upstream never starves its siblings.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/adapters"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

// warmUpDelay staggers startup so the process comes up orderly before
// the first upstream round-trips.
const warmUpDelay = 5 * time.Second

// Poll intervals per class.
const (
	FundingInterval = 300 * time.Second
	SpotInterval    = 30 * time.Second
	AccountInterval = 30 * time.Second
	HedgeInterval   = 60 * time.Second
)

// Writer persists one poll batch. The samples repository implements it.
type Writer interface {
	InsertBatch(batch []samples.Sample) error
}

// Poller drives one funding-rate adapter on a fixed interval.
type Poller struct {
	source   adapters.Source
	writer   Writer
	interval time.Duration
	topN     int
	log      zerolog.Logger
}

// NewPoller creates a new funding poller
func NewPoller(source adapters.Source, writer Writer, interval time.Duration, topN int, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = FundingInterval
	}
	return &Poller{
		source:   source,
		writer:   writer,
		interval: interval,
		topN:     topN,
		log:      log.With().Str("component", "poller").Str("venue", source.Name()).Logger(),
	}
}

// Run loops until ctx is cancelled. Errors are logged and the loop
// continues on the next tick.
func (p *Poller) Run(ctx context.Context) {
	if !sleep(ctx, warmUpDelay) {
		return
	}

	for {
		if err := p.poll(ctx); err != nil {
			p.log.Warn().Err(err).Msg("Poll failed")
		}
		if !sleep(ctx, p.interval) {
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	batch, err := p.source.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	batch = TopN(batch, p.topN)
	if len(batch) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]samples.Sample, 0, len(batch))
	for _, r := range batch {
		if r.AnnualizedRate == nil {
			continue
		}
		rows = append(rows, samples.Sample{
			SourceID:      samples.FundingSourceID(r.Venue, r.Symbol),
			DisplayName:   fmt.Sprintf("%s %s funding", r.Venue, r.Symbol),
			Value:         r.AnnualizedRate,
			Unit:          "%",
			DecimalPlaces: 4,
			Timestamp:     now,
			ReceivedAt:    now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := p.writer.InsertBatch(rows); err != nil {
		return err
	}

	p.log.Debug().Int("rows", len(rows)).Msg("Funding batch persisted")
	return nil
}

// SpotPoller drives the binance spot-price fetch.
type SpotPoller struct {
	binance  *adapters.Binance
	writer   Writer
	interval time.Duration
	log      zerolog.Logger
}

// NewSpotPoller creates a new spot-price poller
func NewSpotPoller(binance *adapters.Binance, writer Writer, interval time.Duration, log zerolog.Logger) *SpotPoller {
	if interval <= 0 {
		interval = SpotInterval
	}
	return &SpotPoller{
		binance:  binance,
		writer:   writer,
		interval: interval,
		log:      log.With().Str("component", "spot_poller").Logger(),
	}
}

// Run loops until ctx is cancelled.
func (p *SpotPoller) Run(ctx context.Context) {
	if !sleep(ctx, warmUpDelay) {
		return
	}

	for {
		if err := p.poll(ctx); err != nil {
			p.log.Warn().Err(err).Msg("Spot poll failed")
		}
		if !sleep(ctx, p.interval) {
			return
		}
	}
}

func (p *SpotPoller) poll(ctx context.Context) error {
	prices, err := p.binance.FetchSpotPrices(ctx)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]samples.Sample, 0, len(prices))
	for _, sp := range prices {
		price := sp.Price
		rows = append(rows, samples.Sample{
			SourceID:      samples.SpotSourceID("binance", sp.Symbol),
			DisplayName:   fmt.Sprintf("binance %s spot", sp.Symbol),
			Value:         &price,
			Unit:          "$",
			DecimalPlaces: 2,
			Timestamp:     now,
			ReceivedAt:    now,
		})
	}
	if err := p.writer.InsertBatch(rows); err != nil {
		return err
	}

	p.log.Debug().Int("rows", len(rows)).Msg("Spot batch persisted")
	return nil
}

// AccountPoller polls one account on one venue.
type AccountPoller struct {
	source   adapters.AccountSource
	address  string
	label    string
	writer   Writer
	interval time.Duration
	log      zerolog.Logger
}

// NewAccountPoller creates a new account poller
func NewAccountPoller(source adapters.AccountSource, address, label string, writer Writer, interval time.Duration, log zerolog.Logger) *AccountPoller {
	if interval <= 0 {
		interval = AccountInterval
	}
	return &AccountPoller{
		source:   source,
		address:  address,
		label:    label,
		writer:   writer,
		interval: interval,
		log: log.With().
			Str("component", "account_poller").
			Str("venue", source.Name()).
			Str("label", label).
			Logger(),
	}
}

// Run loops until ctx is cancelled.
func (p *AccountPoller) Run(ctx context.Context) {
	if !sleep(ctx, warmUpDelay) {
		return
	}

	for {
		if err := p.poll(ctx); err != nil {
			p.log.Warn().Err(err).Msg("Account poll failed")
		}
		if !sleep(ctx, p.interval) {
			return
		}
	}
}

func (p *AccountPoller) poll(ctx context.Context) error {
	data, err := p.source.FetchAccountData(ctx, p.address, p.label)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	value := data.AccountValue
	rows := []samples.Sample{{
		SourceID:      samples.AccountValueSourceID(p.label),
		DisplayName:   fmt.Sprintf("%s account value", p.label),
		Value:         &value,
		Unit:          "$",
		DecimalPlaces: 2,
		Timestamp:     now,
		ReceivedAt:    now,
	}}
	for symbol, size := range data.Positions {
		size := size
		rows = append(rows, samples.Sample{
			SourceID:      samples.PositionSourceID(p.label, symbol),
			DisplayName:   fmt.Sprintf("%s %s position", p.label, symbol),
			Value:         &size,
			Unit:          symbol,
			DecimalPlaces: 4,
			Timestamp:     now,
			ReceivedAt:    now,
		})
	}
	return p.writer.InsertBatch(rows)
}

// sleep waits for d or cancellation. Returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
