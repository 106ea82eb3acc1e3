package monitors

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/database"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return db.Conn()
}

func newTestService(t *testing.T) (*Service, *samples.Repository) {
	t.Helper()

	conn := setupTestDB(t)
	sampleRepo := samples.NewRepository(conn, zerolog.Nop())
	svc := NewService(
		NewRepository(conn, zerolog.Nop()),
		NewValueRepository(conn, zerolog.Nop()),
		sampleRepo,
		zerolog.Nop(),
	)
	return svc, sampleRepo
}

func writeSample(t *testing.T, repo *samples.Repository, sourceID string, value float64) {
	t.Helper()
	now := time.Now().UTC()
	v := value
	s := samples.Sample{
		SourceID: sourceID, DisplayName: sourceID, Value: &v,
		Timestamp: now, ReceivedAt: now,
	}
	_, err := repo.Insert(&s)
	require.NoError(t, err)
}

func createMonitor(t *testing.T, svc *Service, id, formulaStr string) {
	t.Helper()
	err := svc.Create(context.Background(), &Monitor{
		ID: id, Name: id, Formula: formulaStr, Enabled: true,
	})
	require.NoError(t, err)
}

func TestService_ConstantFormula(t *testing.T) {
	svc, _ := newTestService(t)
	createMonitor(t, svc, "zero", "0")

	// "0" evaluates to 0.0, not null, and a value row is written.
	v, err := svc.Evaluate(context.Background(), "zero")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 0.0, *v)

	latest, err := svc.Values().Latest("zero")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 0.0, latest.Value)
}

func TestService_UnresolvedDependencyWritesNoRow(t *testing.T) {
	svc, _ := newTestService(t)
	createMonitor(t, svc, "m1", "${webhook:never_seen} * 2")

	v, err := svc.Evaluate(context.Background(), "m1")
	require.NoError(t, err)
	assert.Nil(t, v)

	latest, err := svc.Values().Latest("m1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestService_WebhookAliasAndValueCache(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 150)
	createMonitor(t, svc, "m1", "${webhook:pricing}")

	latest, err := svc.Values().Latest("m1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 150.0, latest.Value, 1e-9)
	assert.Equal(t, []string{"${webhook:pricing}"}, latest.Dependencies)

	// Same value again: no new row.
	_, err = svc.Evaluate(context.Background(), "m1")
	require.NoError(t, err)
	history, err := svc.Values().History("m1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// Changed value: a new row.
	writeSample(t, sampleRepo, "pricing", 151)
	_, err = svc.Evaluate(context.Background(), "m1")
	require.NoError(t, err)
	history, err = svc.Values().History("m1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.InDelta(t, 151.0, history[0].Value, 1e-9)
}

func TestService_ChangeTolerance(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 100)
	createMonitor(t, svc, "m1", "${webhook:pricing}")

	// A sub-tolerance move writes no new row.
	writeSample(t, sampleRepo, "pricing", 100+5e-11)
	_, err := svc.Evaluate(context.Background(), "m1")
	require.NoError(t, err)

	history, err := svc.Values().History("m1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_FundingAndSpotResolution(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, samples.FundingSourceID("lighter", "BTC"), 12.5)
	writeSample(t, sampleRepo, samples.SpotSourceID("binance", "ETH"), 2400)

	createMonitor(t, svc, "m1", "${funding:lighter-BTC} + ${spot:binance-ETH}")

	latest, err := svc.Values().Latest("m1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 2412.5, latest.Value, 1e-9)
}

func TestService_MonitorReferences(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 10)
	createMonitor(t, svc, "base", "${webhook:pricing}")
	createMonitor(t, svc, "derived", "${monitor:base} * 3")

	latest, err := svc.Values().Latest("derived")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 30.0, latest.Value, 1e-9)
}

func TestService_CycleRejection(t *testing.T) {
	svc, _ := newTestService(t)
	createMonitor(t, svc, "a", "1")
	createMonitor(t, svc, "b", "${monitor:a} + 1")

	// Updating a to depend on b closes the cycle a -> b -> a.
	err := svc.Update(context.Background(), &Monitor{
		ID: "a", Name: "a", Formula: "${monitor:b} + 1", Enabled: true,
	})
	require.ErrorIs(t, err, ErrCycleDetected)

	// a is unchanged.
	m, err := svc.Repo().GetByID("a")
	require.NoError(t, err)
	assert.Equal(t, "1", m.Formula)
}

func TestService_SelfReferenceRejected(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Create(context.Background(), &Monitor{
		ID: "narcissus", Name: "narcissus", Formula: "${monitor:narcissus} + 1", Enabled: true,
	})
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestService_OnSamplePropagates(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 10)
	createMonitor(t, svc, "base", "${webhook:pricing}")
	createMonitor(t, svc, "derived", "${monitor:base} * 2")
	createMonitor(t, svc, "unrelated", "42")

	writeSample(t, sampleRepo, "pricing", 20)
	require.NoError(t, svc.OnSample(context.Background(), "pricing"))

	base, err := svc.Values().Latest("base")
	require.NoError(t, err)
	require.NotNil(t, base)
	assert.InDelta(t, 20.0, base.Value, 1e-9)

	derived, err := svc.Values().Latest("derived")
	require.NoError(t, err)
	require.NotNil(t, derived)
	assert.InDelta(t, 40.0, derived.Value, 1e-9)
}

func TestService_RecomputeAllSkipsDisabled(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 10)

	require.NoError(t, svc.Create(context.Background(), &Monitor{
		ID: "off", Name: "off", Formula: "${webhook:pricing}", Enabled: false,
	}))

	require.NoError(t, svc.RecomputeAll(context.Background(), true))

	latest, err := svc.Values().Latest("off")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestService_DeleteCascadesValues(t *testing.T) {
	svc, sampleRepo := newTestService(t)
	writeSample(t, sampleRepo, "pricing", 10)
	createMonitor(t, svc, "m1", "${webhook:pricing}")

	require.NoError(t, svc.Delete("m1"))

	history, err := svc.Values().History("m1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
