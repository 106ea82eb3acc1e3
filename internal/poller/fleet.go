package poller

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Runner is one long-lived poll loop.
type Runner interface {
	Run(ctx context.Context)
}

// Fleet owns every poll loop and fans their lifecycles into one
// WaitGroup so shutdown can drain them together.
type Fleet struct {
	runners []Runner
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// NewFleet creates a new poller fleet
func NewFleet(log zerolog.Logger) *Fleet {
	return &Fleet{
		log: log.With().Str("component", "fleet").Logger(),
	}
}

// Add registers a runner. Must be called before Start.
func (f *Fleet) Add(r Runner) {
	f.runners = append(f.runners, r)
}

// Size reports how many runners are registered.
func (f *Fleet) Size() int {
	return len(f.runners)
}

// Start launches every runner. Each exits when ctx is cancelled.
func (f *Fleet) Start(ctx context.Context) {
	f.log.Info().Int("pollers", len(f.runners)).Msg("Starting poller fleet")
	for _, r := range f.runners {
		r := r
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			r.Run(ctx)
		}()
	}
}

// Wait blocks until every runner has exited.
func (f *Fleet) Wait() {
	f.wg.Wait()
	f.log.Info().Msg("Poller fleet drained")
}
