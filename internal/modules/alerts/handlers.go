package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/api"
	"github.com/ratewatch/ratewatch/internal/formula"
)

// Handler handles alert rule and notification target HTTP requests
type Handler struct {
	engine *Engine
	log    zerolog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(engine *Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "alerts").Logger(),
	}
}

// rulePayload is the create/update request body for alert rules.
type rulePayload struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Condition          string `json:"condition"`
	Level              string `json:"level"`
	Enabled            *bool  `json:"enabled"`
	CooldownS          *int   `json:"cooldown_s"`
	HeartbeatEnabled   bool   `json:"heartbeat_enabled"`
	HeartbeatIntervalS int    `json:"heartbeat_interval_s"`
}

// HandleListRules handles GET /alert-rules
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.Rules().GetAll(false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alert rules")
		api.Error(w, http.StatusInternalServerError, "failed to list alert rules")
		return
	}
	if rules == nil {
		rules = []AlertRule{}
	}
	api.JSON(w, http.StatusOK, rules)
}

// HandleGetRule handles GET /alert-rules/{id}
func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := h.engine.Rules().GetByID(id)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "alert rule not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rule_id", id).Msg("Failed to load alert rule")
		api.Error(w, http.StatusInternalServerError, "failed to load alert rule")
		return
	}
	api.JSON(w, http.StatusOK, rule)
}

// HandleCreateRule handles POST /alert-rules
func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule, ok := h.validateRule(w, &payload)
	if !ok {
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	if err := h.engine.Rules().Create(rule); err != nil {
		h.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to create alert rule")
		api.Error(w, http.StatusInternalServerError, "failed to create alert rule")
		return
	}
	api.JSON(w, http.StatusCreated, rule)
}

// HandleUpdateRule handles PUT /alert-rules/{id}
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule, ok := h.validateRule(w, &payload)
	if !ok {
		return
	}
	rule.ID = id

	err := h.engine.Rules().Update(rule)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "alert rule not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rule_id", id).Msg("Failed to update alert rule")
		api.Error(w, http.StatusInternalServerError, "failed to update alert rule")
		return
	}

	// A disabled rule should not keep alerts latched open.
	if !rule.Enabled {
		if err := h.engine.States().ResolveAllForRule(id, time.Now().UTC()); err != nil {
			h.log.Warn().Err(err).Str("rule_id", id).Msg("Failed to resolve states on disable")
		}
	}
	api.JSON(w, http.StatusOK, rule)
}

// HandleDeleteRule handles DELETE /alert-rules/{id}
func (h *Handler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.engine.Rules().Delete(id)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "alert rule not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rule_id", id).Msg("Failed to delete alert rule")
		api.Error(w, http.StatusInternalServerError, "failed to delete alert rule")
		return
	}

	if err := h.engine.States().ResolveAllForRule(id, time.Now().UTC()); err != nil {
		h.log.Warn().Err(err).Str("rule_id", id).Msg("Failed to resolve states on delete")
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// HandleListStates handles GET /alerts
func (h *Handler) HandleListStates(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 || l > 1000 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = l
	}

	states, err := h.engine.States().Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alert states")
		api.Error(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if states == nil {
		states = []AlertState{}
	}
	api.JSON(w, http.StatusOK, states)
}

// targetPayload is the create/update request body for targets.
type targetPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	RecipientKey string  `json:"recipient_key"`
	AuthToken    *string `json:"auth_token"`
	Enabled      *bool   `json:"enabled"`
	MinLevel     string  `json:"min_level"`
}

// HandleListTargets handles GET /notification-targets
func (h *Handler) HandleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.engine.Targets().GetAll(false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list notification targets")
		api.Error(w, http.StatusInternalServerError, "failed to list notification targets")
		return
	}
	if targets == nil {
		targets = []NotificationTarget{}
	}
	api.JSON(w, http.StatusOK, targets)
}

// HandleCreateTarget handles POST /notification-targets
func (h *Handler) HandleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var payload targetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, ok := h.validateTarget(w, &payload)
	if !ok {
		return
	}
	if target.ID == "" {
		target.ID = uuid.NewString()
	}

	if err := h.engine.Targets().Create(target); err != nil {
		h.log.Error().Err(err).Str("target_id", target.ID).Msg("Failed to create notification target")
		api.Error(w, http.StatusInternalServerError, "failed to create notification target")
		return
	}
	api.JSON(w, http.StatusCreated, target)
}

// HandleUpdateTarget handles PUT /notification-targets/{id}
func (h *Handler) HandleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload targetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, ok := h.validateTarget(w, &payload)
	if !ok {
		return
	}
	target.ID = id

	err := h.engine.Targets().Update(target)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "notification target not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("target_id", id).Msg("Failed to update notification target")
		api.Error(w, http.StatusInternalServerError, "failed to update notification target")
		return
	}
	api.JSON(w, http.StatusOK, target)
}

// HandleDeleteTarget handles DELETE /notification-targets/{id}
func (h *Handler) HandleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.engine.Targets().Delete(id)
	if errors.Is(err, ErrNotFound) {
		api.Error(w, http.StatusNotFound, "notification target not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("target_id", id).Msg("Failed to delete notification target")
		api.Error(w, http.StatusInternalServerError, "failed to delete notification target")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (h *Handler) validateRule(w http.ResponseWriter, payload *rulePayload) (*AlertRule, bool) {
	if strings.TrimSpace(payload.Name) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "name is required")
		return nil, false
	}
	if strings.TrimSpace(payload.Condition) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "condition is required")
		return nil, false
	}
	if _, err := formula.ParseCondition(payload.Condition); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, "invalid condition: "+err.Error())
		return nil, false
	}

	level := payload.Level
	if level == "" {
		level = LevelMedium
	}
	if !ValidLevel(level) {
		api.Error(w, http.StatusUnprocessableEntity, "level must be one of low, medium, high, critical")
		return nil, false
	}

	cooldown := 300
	if payload.CooldownS != nil {
		if *payload.CooldownS < 0 {
			api.Error(w, http.StatusUnprocessableEntity, "cooldown_s must be >= 0")
			return nil, false
		}
		cooldown = *payload.CooldownS
	}
	if payload.HeartbeatIntervalS < 0 {
		api.Error(w, http.StatusUnprocessableEntity, "heartbeat_interval_s must be >= 0")
		return nil, false
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}

	return &AlertRule{
		ID:                 strings.TrimSpace(payload.ID),
		Name:               payload.Name,
		Condition:          payload.Condition,
		Level:              level,
		Enabled:            enabled,
		CooldownS:          cooldown,
		HeartbeatEnabled:   payload.HeartbeatEnabled,
		HeartbeatIntervalS: payload.HeartbeatIntervalS,
	}, true
}

func (h *Handler) validateTarget(w http.ResponseWriter, payload *targetPayload) (*NotificationTarget, bool) {
	if strings.TrimSpace(payload.Name) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "name is required")
		return nil, false
	}
	if strings.TrimSpace(payload.RecipientKey) == "" {
		api.Error(w, http.StatusUnprocessableEntity, "recipient_key is required")
		return nil, false
	}

	minLevel := payload.MinLevel
	if minLevel == "" {
		minLevel = LevelLow
	}
	if !ValidLevel(minLevel) {
		api.Error(w, http.StatusUnprocessableEntity, "min_level must be one of low, medium, high, critical")
		return nil, false
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}

	return &NotificationTarget{
		ID:           strings.TrimSpace(payload.ID),
		Name:         payload.Name,
		RecipientKey: payload.RecipientKey,
		AuthToken:    payload.AuthToken,
		Enabled:      enabled,
		MinLevel:     minLevel,
	}, true
}
