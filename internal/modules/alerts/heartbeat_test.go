package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/modules/monitors"
)

func setupHeartbeat(t *testing.T) (*testEnv, *HeartbeatChecker) {
	t.Helper()
	env := setupEngine(t)
	checker := NewHeartbeatChecker(
		env.engine.Rules(), env.engine.States(), env.engine, env.monitors, zerolog.Nop(),
	)
	return env, checker
}

func TestHeartbeat_BreachAndResolve(t *testing.T) {
	env, checker := setupHeartbeat(t)
	ctx := context.Background()

	env.writeSample(t, "pricing", 10)
	require.NoError(t, env.monitors.Create(ctx, &monitors.Monitor{
		ID: "price", Name: "price", Formula: "${webhook:pricing}", Enabled: true,
	}))
	env.addTarget(t, "t1", LevelLow)
	env.addRule(t, AlertRule{
		ID: "r1", Name: "price fresh", Condition: "${monitor:price} > 0",
		Level: LevelHigh, Enabled: true, CooldownS: 300,
		HeartbeatEnabled: true, HeartbeatIntervalS: 60,
	})

	// Value is fresh: no breach.
	checker.Tick(ctx)
	assert.Empty(t, env.notifier.all())

	// Pretend a long time passed since the last computed value.
	checker.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	checker.Tick(ctx)

	sent := env.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, HeartbeatLevel(LevelHigh), sent[0].Level)
	assert.Contains(t, sent[0].Body, "price")

	state, err := env.engine.States().Active("r1", true)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, HeartbeatLevel(LevelHigh), state.Level)

	// A fresh value resolves the heartbeat alert without notifying again.
	checker.now = func() time.Time { return time.Now().UTC() }
	env.writeSample(t, "pricing", 11)
	require.NoError(t, env.monitors.OnSample(ctx, "pricing"))
	checker.Tick(ctx)

	state, err = env.engine.States().Active("r1", true)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Len(t, env.notifier.all(), 1)
}

func TestHeartbeat_CooldownSuppressesRepeat(t *testing.T) {
	env, checker := setupHeartbeat(t)
	ctx := context.Background()

	env.writeSample(t, "pricing", 10)
	require.NoError(t, env.monitors.Create(ctx, &monitors.Monitor{
		ID: "price", Name: "price", Formula: "${webhook:pricing}", Enabled: true,
	}))
	env.addTarget(t, "t1", LevelLow)
	env.addRule(t, AlertRule{
		ID: "r1", Name: "price fresh", Condition: "${monitor:price} > 0",
		Level: LevelMedium, Enabled: true, CooldownS: 300,
		HeartbeatEnabled: true, HeartbeatIntervalS: 60,
	})

	checker.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	checker.Tick(ctx)
	checker.Tick(ctx)
	assert.Len(t, env.notifier.all(), 1)
}

func TestHeartbeat_KeepsThresholdStateSeparate(t *testing.T) {
	env, checker := setupHeartbeat(t)
	ctx := context.Background()

	env.writeSample(t, "pricing", 150)
	require.NoError(t, env.monitors.Create(ctx, &monitors.Monitor{
		ID: "price", Name: "price", Formula: "${webhook:pricing}", Enabled: true,
	}))
	env.addTarget(t, "t1", LevelLow)
	env.addRule(t, AlertRule{
		ID: "r1", Name: "price high", Condition: "${monitor:price} > 100",
		Level: LevelHigh, Enabled: true, CooldownS: 300,
		HeartbeatEnabled: true, HeartbeatIntervalS: 60,
	})

	// Threshold fires now; heartbeat fires later. Both states coexist.
	env.engine.Tick(ctx)
	checker.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	checker.Tick(ctx)

	threshold, err := env.engine.States().Active("r1", false)
	require.NoError(t, err)
	require.NotNil(t, threshold)
	assert.Equal(t, LevelHigh, threshold.Level)

	heartbeat, err := env.engine.States().Active("r1", true)
	require.NoError(t, err)
	require.NotNil(t, heartbeat)
	assert.Equal(t, HeartbeatLevel(LevelHigh), heartbeat.Level)
}

func TestHeartbeat_NoMonitorReferenceSkipped(t *testing.T) {
	env, checker := setupHeartbeat(t)
	ctx := context.Background()

	env.addTarget(t, "t1", LevelLow)
	env.addRule(t, AlertRule{
		ID: "r1", Name: "webhook only", Condition: "${webhook:pricing} > 0",
		Level: LevelHigh, Enabled: true, CooldownS: 300,
		HeartbeatEnabled: true, HeartbeatIntervalS: 60,
	})

	checker.Tick(ctx)
	assert.Empty(t, env.notifier.all())
}

func TestFirstMonitorRef(t *testing.T) {
	id, ok := firstMonitorRef("${monitor:alpha} + ${monitor:beta} > 5")
	require.True(t, ok)
	assert.Equal(t, "alpha", id)

	_, ok = firstMonitorRef("${webhook:x} > 5")
	assert.False(t, ok)

	_, ok = firstMonitorRef("not a condition")
	assert.False(t, ok)
}
