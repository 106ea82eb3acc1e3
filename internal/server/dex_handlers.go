package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/adapters"
	"github.com/ratewatch/ratewatch/internal/api"
	"github.com/ratewatch/ratewatch/internal/snapshot"
)

// DexHandlers serves the merged funding-rate snapshot.
type DexHandlers struct {
	cache *snapshot.Cache
	log   zerolog.Logger
}

// NewDexHandlers creates new funding rate handlers
func NewDexHandlers(cache *snapshot.Cache, log zerolog.Logger) *DexHandlers {
	return &DexHandlers{
		cache: cache,
		log:   log.With().Str("component", "dex_handlers").Logger(),
	}
}

type symbolRatesResponse struct {
	Symbol      string                    `json:"symbol"`
	Rates       []adapters.NormalizedRate `json:"rates"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// HandleFundingRates returns the full cross-venue snapshot.
// ?force_refresh=true bypasses the TTL.
func (h *DexHandlers) HandleFundingRates(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Get(r.Context(), forceRefresh(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Snapshot unavailable")
		api.Error(w, http.StatusBadGateway, "failed to fetch funding rates from upstream venues")
		return
	}
	api.JSON(w, http.StatusOK, snap)
}

// HandleFundingRatesSymbol returns the snapshot filtered to one symbol
// prefix, e.g. /funding-rates/BTC matches BTC and BTC-family listings.
func (h *DexHandlers) HandleFundingRatesSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if symbol == "" {
		api.Error(w, http.StatusUnprocessableEntity, "symbol is required")
		return
	}

	snap, err := h.cache.Get(r.Context(), forceRefresh(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Snapshot unavailable")
		api.Error(w, http.StatusBadGateway, "failed to fetch funding rates from upstream venues")
		return
	}

	api.JSON(w, http.StatusOK, symbolRatesResponse{
		Symbol:      symbol,
		Rates:       snap.FilterSymbol(symbol),
		LastUpdated: snap.UpdatedAt,
	})
}

func forceRefresh(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("force_refresh"))
	return v == "true" || v == "1"
}
