package monitors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/formula"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

// Service evaluates monitor formulas against the store and maintains the
// value cache. It also guards the registry against dependency cycles.
type Service struct {
	repo    *Repository
	values  *ValueRepository
	samples *samples.Repository
	log     zerolog.Logger

	// Serializes full sweeps so the periodic job and webhook-driven
	// recomputes do not interleave whole passes.
	sweepMu sync.Mutex
}

// NewService creates a new monitor service
func NewService(repo *Repository, values *ValueRepository, sampleRepo *samples.Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		values:  values,
		samples: sampleRepo,
		log:     log.With().Str("service", "monitors").Logger(),
	}
}

// Repo exposes the definition repository for handlers.
func (s *Service) Repo() *Repository { return s.repo }

// Values exposes the value cache repository for handlers and the
// heartbeat checker.
func (s *Service) Values() *ValueRepository { return s.values }

// Create validates the formula, runs cycle detection, and persists.
func (s *Service) Create(ctx context.Context, m *Monitor) error {
	refs, err := formula.Refs(m.Formula)
	if err != nil {
		return fmt.Errorf("invalid formula: %w", err)
	}
	if err := s.checkCycles(m.ID, refs); err != nil {
		return err
	}
	if err := s.repo.Create(m); err != nil {
		return err
	}

	// First evaluation so the monitor has a value as soon as possible.
	if m.Enabled {
		if _, err := s.Evaluate(ctx, m.ID); err != nil {
			s.log.Warn().Err(err).Str("monitor_id", m.ID).Msg("Initial evaluation failed")
		}
	}
	return nil
}

// Update validates the new formula against the rest of the registry
// before persisting; a rejected update leaves the monitor unchanged.
func (s *Service) Update(ctx context.Context, m *Monitor) error {
	refs, err := formula.Refs(m.Formula)
	if err != nil {
		return fmt.Errorf("invalid formula: %w", err)
	}
	if err := s.checkCycles(m.ID, refs); err != nil {
		return err
	}
	if err := s.repo.Update(m); err != nil {
		return err
	}

	if m.Enabled {
		if _, err := s.Evaluate(ctx, m.ID); err != nil {
			s.log.Warn().Err(err).Str("monitor_id", m.ID).Msg("Re-evaluation after update failed")
		}
	}
	return nil
}

// Delete removes a monitor; its cached values cascade.
func (s *Service) Delete(id string) error {
	return s.repo.Delete(id)
}

// checkCycles walks monitor->monitor edges depth-first starting from the
// new formula's references. Reaching the monitor being written means the
// write would close a cycle.
func (s *Service) checkCycles(monitorID string, refs []formula.Ref) error {
	visited := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if id == monitorID {
			return ErrCycleDetected
		}
		if visited[id] {
			return nil
		}
		visited[id] = true

		m, err := s.repo.GetByID(id)
		if err == ErrNotFound {
			// Dangling reference; not a cycle.
			return nil
		}
		if err != nil {
			return err
		}

		childRefs, err := formula.Refs(m.Formula)
		if err != nil {
			// A stored formula that no longer parses cannot extend the walk.
			return nil
		}
		for _, ref := range childRefs {
			if ref.Kind != formula.KindMonitor {
				continue
			}
			if err := visit(ref.ID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ref := range refs {
		if ref.Kind != formula.KindMonitor {
			continue
		}
		if err := visit(ref.ID); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate computes a monitor's current value and caches it per the
// change rule. Returns nil when any dependency is unresolved.
func (s *Service) Evaluate(ctx context.Context, monitorID string) (*float64, error) {
	return s.evaluate(ctx, monitorID, make(map[string]bool))
}

func (s *Service) evaluate(ctx context.Context, monitorID string, visiting map[string]bool) (*float64, error) {
	if visiting[monitorID] {
		// The registry is kept acyclic on write; this guards against
		// concurrent modification mid-walk.
		return nil, ErrCycleDetected
	}
	visiting[monitorID] = true
	defer delete(visiting, monitorID)

	m, err := s.repo.GetByID(monitorID)
	if err != nil {
		return nil, err
	}

	node, refs, err := formula.Parse(m.Formula)
	if err != nil {
		return nil, fmt.Errorf("monitor %s has invalid formula: %w", monitorID, err)
	}

	value, err := formula.Evaluate(ctx, node, s.resolver(visiting))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	deps := make([]string, len(refs))
	for i, ref := range refs {
		deps[i] = ref.String()
	}
	if _, err := s.values.RecordIfChanged(monitorID, *value, deps); err != nil {
		return nil, err
	}
	return value, nil
}

// resolver binds formula references to the store and, for monitor
// references, back into the engine.
func (s *Service) resolver(visiting map[string]bool) formula.Resolver {
	return formula.ResolverFunc(func(ctx context.Context, ref formula.Ref) (*float64, error) {
		switch ref.Kind {
		case formula.KindMonitor:
			// Prefer the cached value; fall back to a recursive
			// evaluation when the monitor has never computed.
			cached, err := s.values.Latest(ref.ID)
			if err != nil {
				return nil, err
			}
			if cached != nil {
				v := cached.Value
				return &v, nil
			}
			v, err := s.evaluate(ctx, ref.ID, visiting)
			if err == ErrNotFound {
				return nil, nil
			}
			return v, err

		case formula.KindWebhook:
			return s.samples.LatestValue(ref.ID)

		case formula.KindFunding:
			venue, symbol, ok := splitVenueSymbol(ref.ID)
			if !ok {
				return nil, nil
			}
			return s.samples.LatestValue(samples.FundingSourceID(venue, symbol))

		case formula.KindSpot:
			venue, symbol, ok := splitVenueSymbol(ref.ID)
			if !ok {
				return nil, nil
			}
			return s.samples.LatestValue(samples.SpotSourceID(venue, symbol))
		}
		return nil, nil
	})
}

// Resolver exposes the store-backed resolver for the alert engine.
func (s *Service) Resolver() formula.Resolver {
	return s.resolver(make(map[string]bool))
}

// LastComputedAt reports when a monitor last produced a cached value,
// or nil if it never has. Used by the heartbeat checker.
func (s *Service) LastComputedAt(monitorID string) (*time.Time, error) {
	v, err := s.values.Latest(monitorID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	t := v.ComputedAt
	return &t, nil
}

// splitVenueSymbol splits "exchange-SYMBOL" on the first dash.
func splitVenueSymbol(id string) (string, string, bool) {
	idx := strings.IndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

// RecomputeAll evaluates every (enabled) monitor. Used by the periodic
// sweep as a safety net beside the event-driven path.
func (s *Service) RecomputeAll(ctx context.Context, enabledOnly bool) error {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	monitors, err := s.repo.GetAll(enabledOnly)
	if err != nil {
		return err
	}

	for i := range monitors {
		if _, err := s.Evaluate(ctx, monitors[i].ID); err != nil {
			s.log.Warn().Err(err).Str("monitor_id", monitors[i].ID).Msg("Recompute failed")
		}
	}
	return nil
}

// OnSample recomputes all enabled monitors that depend, directly or
// transitively, on the given webhook source. Transitive edges go through
// monitor references; the registry being acyclic bounds the walk.
func (s *Service) OnSample(ctx context.Context, sourceID string) error {
	monitors, err := s.repo.GetAll(true)
	if err != nil {
		return err
	}

	// Reverse index: dependency -> dependent monitor ids.
	dependents := make(map[string][]string)
	for i := range monitors {
		refs, err := formula.Refs(monitors[i].Formula)
		if err != nil {
			continue
		}
		for _, ref := range refs {
			key := ref.String()
			dependents[key] = append(dependents[key], monitors[i].ID)
		}
	}

	seed := formula.Ref{Kind: formula.KindWebhook, ID: sourceID}.String()
	queue := append([]string(nil), dependents[seed]...)
	recomputed := make(map[string]bool)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if recomputed[id] {
			continue
		}
		recomputed[id] = true

		if _, err := s.Evaluate(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("monitor_id", id).Msg("Webhook-driven recompute failed")
			continue
		}

		// Propagate to monitors referencing this one.
		key := formula.Ref{Kind: formula.KindMonitor, ID: id}.String()
		queue = append(queue, dependents[key]...)
	}

	return nil
}
