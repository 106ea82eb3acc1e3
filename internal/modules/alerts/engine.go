package alerts

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/formula"
	"github.com/ratewatch/ratewatch/internal/notify"
)

// Resolver is satisfied by the monitor service; it binds condition
// references to current values.
type Resolver interface {
	Resolver() formula.Resolver
}

// Engine evaluates alert rules on a fixed tick and dispatches
// notifications with cooldowns.
type Engine struct {
	rules    *RuleRepository
	states   *StateRepository
	targets  *TargetRepository
	monitors Resolver
	notifier notify.Notifier
	log      zerolog.Logger

	// Ticks run serially; the scheduler may overlap them under load.
	mu sync.Mutex

	// Overridable clock for tests.
	now func() time.Time
}

// NewEngine creates a new alert engine
func NewEngine(rules *RuleRepository, states *StateRepository, targets *TargetRepository, monitors Resolver, notifier notify.Notifier, log zerolog.Logger) *Engine {
	return &Engine{
		rules:    rules,
		states:   states,
		targets:  targets,
		monitors: monitors,
		notifier: notifier,
		log:      log.With().Str("component", "alert_engine").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Rules exposes the rule repository for handlers.
func (e *Engine) Rules() *RuleRepository { return e.rules }

// States exposes the state repository for handlers.
func (e *Engine) States() *StateRepository { return e.states }

// Targets exposes the target repository for handlers.
func (e *Engine) Targets() *TargetRepository { return e.targets }

// Tick evaluates every enabled rule once. Errors on individual rules are
// logged and never abort the pass.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules, err := e.rules.GetAll(true)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to load alert rules")
		return
	}

	resolver := e.monitors.Resolver()
	for i := range rules {
		if err := e.evaluateRule(ctx, &rules[i], resolver); err != nil {
			e.log.Warn().Err(err).Str("rule_id", rules[i].ID).Msg("Rule evaluation failed")
		}
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *AlertRule, resolver formula.Resolver) error {
	cond, err := formula.ParseCondition(rule.Condition)
	if err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}

	left, err := formula.Evaluate(ctx, cond.Left, resolver)
	if err != nil {
		return err
	}
	right, err := formula.Evaluate(ctx, cond.Right, resolver)
	if err != nil {
		return err
	}
	if left == nil || right == nil {
		// Unresolved dependency: neither trigger nor resolve.
		return nil
	}

	triggered, err := formula.Compare(*left, cond.Op, *right)
	if err != nil {
		return err
	}
	now := e.now()

	active, err := e.states.Active(rule.ID, false)
	if err != nil {
		return err
	}

	if !triggered {
		if active != nil {
			e.log.Info().Str("rule_id", rule.ID).Msg("Alert resolved")
			return e.states.Resolve(active.ID, now)
		}
		return nil
	}

	if active != nil && now.Sub(active.LastNotifiedAt) < time.Duration(rule.CooldownS)*time.Second {
		return nil
	}

	body := fmt.Sprintf("%s: %s %s %s (condition: %s)",
		rule.Name, formatFloat(*left), cond.Op, formatFloat(*right), rule.Condition)
	e.Dispatch(ctx, rule.Level, rule.Name, body)

	if active != nil {
		return e.states.Touch(active.ID, now)
	}
	_, err = e.states.Create(rule.ID, rule.Level, now)
	return err
}

// formatFloat renders without trailing zeros so "150" reads as "150".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Dispatch sends one alert to every enabled target whose min_level is at
// or below the alert's level. Per-target failures are logged only.
func (e *Engine) Dispatch(ctx context.Context, level, title, body string) {
	targets, err := e.targets.GetAll(true)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to load notification targets")
		return
	}

	rank := levelRank(level)
	for i := range targets {
		if rank < levelRank(targets[i].MinLevel) {
			continue
		}
		if err := e.notifier.Send(ctx, targets[i].RecipientKey, level, title, body, ""); err != nil {
			e.log.Warn().Err(err).
				Str("target_id", targets[i].ID).
				Str("level", level).
				Msg("Notification delivery failed")
		}
	}
}
