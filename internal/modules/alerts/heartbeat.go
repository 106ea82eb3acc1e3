package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/formula"
)

// LastComputed reports when a monitor last produced a cached value. The
// monitor service implements it.
type LastComputed interface {
	LastComputedAt(monitorID string) (*time.Time, error)
}

// HeartbeatChecker raises alerts when a monitored formula stops updating
// within its declared interval, and resolves them when values resume.
type HeartbeatChecker struct {
	rules  *RuleRepository
	states *StateRepository
	engine *Engine
	values LastComputed
	log    zerolog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewHeartbeatChecker creates a new heartbeat checker
func NewHeartbeatChecker(rules *RuleRepository, states *StateRepository, engine *Engine, values LastComputed, log zerolog.Logger) *HeartbeatChecker {
	return &HeartbeatChecker{
		rules:  rules,
		states: states,
		engine: engine,
		values: values,
		log:    log.With().Str("component", "heartbeat").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Tick checks every heartbeat-enabled rule once.
func (h *HeartbeatChecker) Tick(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rules, err := h.rules.GetAll(true)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load alert rules")
		return
	}

	for i := range rules {
		rule := &rules[i]
		if !rule.HeartbeatEnabled || rule.HeartbeatIntervalS <= 0 {
			continue
		}
		if err := h.checkRule(ctx, rule); err != nil {
			h.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Heartbeat check failed")
		}
	}
}

func (h *HeartbeatChecker) checkRule(ctx context.Context, rule *AlertRule) error {
	monitorID, ok := firstMonitorRef(rule.Condition)
	if !ok {
		// No monitor reference to watch.
		return nil
	}

	computedAt, err := h.values.LastComputedAt(monitorID)
	if err != nil {
		return err
	}

	now := h.now()
	interval := time.Duration(rule.HeartbeatIntervalS) * time.Second

	// A monitor that never computed counts as stale from the start of
	// time; elapsed is effectively infinite.
	stale := computedAt == nil || now.Sub(*computedAt) > interval

	active, err := h.states.Active(rule.ID, true)
	if err != nil {
		return err
	}

	if !stale {
		if active != nil {
			h.log.Info().Str("rule_id", rule.ID).Str("monitor_id", monitorID).Msg("Heartbeat recovered")
			return h.states.Resolve(active.ID, now)
		}
		return nil
	}

	if active != nil && now.Sub(active.LastNotifiedAt) < time.Duration(rule.CooldownS)*time.Second {
		return nil
	}

	level := HeartbeatLevel(rule.Level)
	body := fmt.Sprintf("%s: monitor %s has never updated (limit %s)", rule.Name, monitorID, interval)
	if computedAt != nil {
		body = fmt.Sprintf("%s: monitor %s last updated %s ago (limit %s)",
			rule.Name, monitorID, now.Sub(*computedAt).Round(time.Second), interval)
	}
	h.engine.Dispatch(ctx, level, rule.Name+" heartbeat", body)

	if active != nil {
		return h.states.Touch(active.ID, now)
	}
	_, err = h.states.Create(rule.ID, level, now)
	return err
}

// firstMonitorRef extracts the first monitor reference from a condition.
func firstMonitorRef(condition string) (string, bool) {
	cond, err := formula.ParseCondition(condition)
	if err != nil {
		return "", false
	}
	for _, ref := range cond.Refs {
		if ref.Kind == formula.KindMonitor {
			return ref.ID, true
		}
	}
	return "", false
}
