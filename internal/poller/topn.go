package poller

import (
	"sort"

	"github.com/ratewatch/ratewatch/internal/adapters"
)

// DefaultTopN caps how many rows a volume-ranked batch may persist.
const DefaultTopN = 50

// TopN retains the n highest-volume entries of a batch. Ranking uses
// Turnover24h, falling back to Volume24h; ties keep input order. Batches
// without any volume data, or at or under the cap, pass through
// unchanged.
func TopN(batch []adapters.NormalizedRate, n int) []adapters.NormalizedRate {
	if n <= 0 {
		n = DefaultTopN
	}
	if len(batch) <= n || !hasVolumeData(batch) {
		return batch
	}

	ranked := append([]adapters.NormalizedRate(nil), batch...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankVolume(ranked[i]) > rankVolume(ranked[j])
	})
	return ranked[:n]
}

func hasVolumeData(batch []adapters.NormalizedRate) bool {
	for i := range batch {
		if batch[i].Turnover24h != nil || batch[i].Volume24h != nil {
			return true
		}
	}
	return false
}

func rankVolume(r adapters.NormalizedRate) float64 {
	if r.Turnover24h != nil {
		return *r.Turnover24h
	}
	if r.Volume24h != nil {
		return *r.Volume24h
	}
	return 0
}
