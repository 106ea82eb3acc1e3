package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/api"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

// Recomputer recomputes monitors that depend on a freshly ingested source.
// Runs synchronously so the recompute happens-before the webhook response.
type Recomputer interface {
	OnSample(ctx context.Context, sourceID string) error
}

// Payload is the distill webhook body. id, uri and text are mandatory.
type Payload struct {
	ID            string   `json:"id"`
	URI           string   `json:"uri"`
	Text          string   `json:"text"`
	Name          string   `json:"name"`
	Timestamp     string   `json:"timestamp"`
	Value         *float64 `json:"value"`
	Status        string   `json:"status"`
	IsChange      bool     `json:"is_change"`
	ChangeType    string   `json:"change_type"`
	PreviousValue *float64 `json:"previous_value"`
}

// Handler handles webhook HTTP requests
type Handler struct {
	repo       *samples.Repository
	recomputer Recomputer
	secret     string
	log        zerolog.Logger
}

// NewHandler creates a new webhook handler. An empty secret disables the
// token check entirely.
func NewHandler(repo *samples.Repository, recomputer Recomputer, secret string, log zerolog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		recomputer: recomputer,
		secret:     secret,
		log:        log.With().Str("handler", "webhook").Logger(),
	}
}

// HandleDistill handles POST /webhook/distill?token=…
func (h *Handler) HandleDistill(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			api.Error(w, http.StatusUnauthorized, "missing token")
			return
		}
		if token != h.secret {
			api.Error(w, http.StatusForbidden, "invalid token")
			return
		}
	}

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(payload.ID) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "id is required")
		return
	}
	if strings.TrimSpace(payload.URI) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "uri is required")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "text is required")
		return
	}

	now := time.Now().UTC()
	timestamp := now
	if payload.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			timestamp = ts.UTC()
		}
	}

	value := payload.Value
	unit := ""
	if value == nil {
		parsed := ParseText(payload.Text)
		value = parsed.Value
		unit = parsed.Unit
	}

	displayName := payload.Name
	if displayName == "" {
		displayName = payload.ID
	}

	sample := samples.Sample{
		SourceID:      payload.ID,
		DisplayName:   displayName,
		Value:         value,
		Text:          payload.Text,
		Unit:          unit,
		DecimalPlaces: 2,
		Timestamp:     timestamp,
		ReceivedAt:    now,
		IsChange:      payload.IsChange,
		PreviousValue: payload.PreviousValue,
	}

	if _, err := h.repo.Insert(&sample); err != nil {
		h.log.Error().Err(err).Str("source_id", payload.ID).Msg("Failed to persist webhook sample")
		api.Error(w, http.StatusInternalServerError, "failed to persist sample")
		return
	}

	// Event-driven recompute before the response returns to the client.
	if h.recomputer != nil {
		if err := h.recomputer.OnSample(r.Context(), payload.ID); err != nil {
			h.log.Warn().Err(err).Str("source_id", payload.ID).Msg("Recompute after webhook failed")
		}
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"id":          sample.ID,
			"monitor_id":  payload.ID,
			"timestamp":   sample.Timestamp,
			"received_at": sample.ReceivedAt,
		},
	})
}
