package adapters

// Registry is the compiled-in adapter set. Poller classes are enabled or
// disabled at wiring time; the registry itself always knows every venue.
type Registry struct {
	binance     *Binance
	hyperliquid *Hyperliquid
	drift       *Drift
	funding     []Source
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	binance := NewBinance()
	hyperliquid := NewHyperliquid()
	drift := NewDrift()

	return &Registry{
		binance:     binance,
		hyperliquid: hyperliquid,
		drift:       drift,
		funding: []Source{
			binance,
			NewBybit(),
			hyperliquid,
			NewLighter(),
			NewBackpack(),
			NewGRVT(),
			NewParadex(),
			NewAster(),
			NewExtended(),
			drift,
		},
	}
}

// FundingSources returns all rate-producing adapters.
func (r *Registry) FundingSources() []Source {
	return r.funding
}

// Binance returns the binance adapter, which doubles as the spot-price
// and spot-universe source.
func (r *Registry) Binance() *Binance {
	return r.binance
}

// AccountSource returns the account adapter for a venue, or nil.
func (r *Registry) AccountSource(venue string) AccountSource {
	switch venue {
	case "hyperliquid":
		return r.hyperliquid
	case "drift":
		return r.drift
	}
	return nil
}
