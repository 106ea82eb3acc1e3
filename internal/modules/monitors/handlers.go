package monitors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/api"
)

// Handler handles monitor HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new monitors handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "monitors").Logger(),
	}
}

// monitorPayload is the create/update request body.
type monitorPayload struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Unit               string `json:"unit"`
	Color              string `json:"color"`
	Description        string `json:"description"`
	DecimalPlaces      *int   `json:"decimal_places"`
	Formula            string `json:"formula"`
	Enabled            *bool  `json:"enabled"`
	HeartbeatIntervalS int    `json:"heartbeat_interval_s"`
}

// monitorResponse pairs a definition with its latest cached value.
type monitorResponse struct {
	Monitor
	LatestValue *MonitorValue `json:"latest_value"`
}

// HandleList handles GET /monitors
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.service.Repo().GetAll(false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list monitors")
		api.Error(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}

	out := make([]monitorResponse, 0, len(monitors))
	for i := range monitors {
		latest, err := h.service.Values().Latest(monitors[i].ID)
		if err != nil {
			h.log.Error().Err(err).Str("monitor_id", monitors[i].ID).Msg("Failed to load latest value")
			api.Error(w, http.StatusInternalServerError, "failed to list monitors")
			return
		}
		out = append(out, monitorResponse{Monitor: monitors[i], LatestValue: latest})
	}

	api.JSON(w, http.StatusOK, out)
}

// HandleGet handles GET /monitors/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.service.Repo().GetByID(id)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("monitor_id", id).Msg("Failed to load monitor")
		api.Error(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}

	latest, err := h.service.Values().Latest(id)
	if err != nil {
		h.log.Error().Err(err).Str("monitor_id", id).Msg("Failed to load latest value")
		api.Error(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}

	api.JSON(w, http.StatusOK, monitorResponse{Monitor: *m, LatestValue: latest})
}

// HandleCreate handles POST /monitors
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var payload monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, ok := h.validate(w, &payload)
	if !ok {
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if err := h.service.Create(r.Context(), m); err != nil {
		h.writeServiceError(w, m.ID, err)
		return
	}

	api.JSON(w, http.StatusCreated, m)
}

// HandleUpdate handles PUT /monitors/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, ok := h.validate(w, &payload)
	if !ok {
		return
	}
	m.ID = id

	if err := h.service.Update(r.Context(), m); err != nil {
		h.writeServiceError(w, id, err)
		return
	}

	api.JSON(w, http.StatusOK, m)
}

// HandleDelete handles DELETE /monitors/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(id); err != nil {
		h.writeServiceError(w, id, err)
		return
	}

	api.JSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// HandleValues handles GET /monitors/{id}/values
func (h *Handler) HandleValues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.service.Repo().GetByID(id); errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "monitor not found")
		return
	} else if err != nil {
		api.Error(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 || l > 1000 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = l
	}

	values, err := h.service.Values().History(id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("monitor_id", id).Msg("Failed to load value history")
		api.Error(w, http.StatusInternalServerError, "failed to load values")
		return
	}
	if values == nil {
		values = []MonitorValue{}
	}

	api.JSON(w, http.StatusOK, values)
}

func (h *Handler) validate(w http.ResponseWriter, payload *monitorPayload) (*Monitor, bool) {
	if strings.TrimSpace(payload.Name) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "name is required")
		return nil, false
	}
	if strings.TrimSpace(payload.Formula) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "formula is required")
		return nil, false
	}
	if payload.HeartbeatIntervalS < 0 {
		api.Error(w, http.StatusUnprocessableEntity, "heartbeat_interval_s must be >= 0")
		return nil, false
	}

	decimals := 2
	if payload.DecimalPlaces != nil {
		if *payload.DecimalPlaces < 0 || *payload.DecimalPlaces > 10 {
			api.Error(w, http.StatusUnprocessableEntity, "decimal_places must be between 0 and 10")
			return nil, false
		}
		decimals = *payload.DecimalPlaces
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}

	return &Monitor{
		ID:                 strings.TrimSpace(payload.ID),
		Name:               payload.Name,
		Unit:               payload.Unit,
		Color:              payload.Color,
		Description:        payload.Description,
		DecimalPlaces:      decimals,
		Formula:            payload.Formula,
		Enabled:            enabled,
		HeartbeatIntervalS: payload.HeartbeatIntervalS,
	}, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, ErrCycleDetected):
		api.Error(w, http.StatusUnprocessableEntity, "cycle detected in monitor dependencies")
	case errors.Is(err, ErrNotFound):
		api.Error(w, http.StatusNotFound, "monitor not found")
	case strings.Contains(err.Error(), "invalid formula"):
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Str("monitor_id", id).Msg("Monitor operation failed")
		api.Error(w, http.StatusInternalServerError, "monitor operation failed")
	}
}
