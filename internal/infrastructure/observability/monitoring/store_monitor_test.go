package monitoring

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*gate.SessionState, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Save(context.Context, string, *gate.SessionState) error {
	return errors.New("connection refused")
}
func (brokenStore) Clear(context.Context, string) error { return nil }
func (brokenStore) Close() error                        { return nil }

func TestMonitoredStore_CountsTraffic(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewDiscardLogger()
	m := NewMonitoredStore(stores.NewGateStatesStore(logger), "memory", logger)

	assert.Equal(t, StoreNoTraffic, m.Metrics().Health)

	_, err := m.Load(ctx, "anon:a")
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, "anon:a", gate.NewSessionState(time.Now())))
	_, err = m.Load(ctx, "anon:a")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, "anon:a"))

	got := m.Metrics()
	assert.Equal(t, int64(2), got.TotalLoads)
	assert.Equal(t, int64(1), got.Hits)
	assert.Equal(t, int64(1), got.Misses)
	assert.InDelta(t, 0.5, got.HitRatio, 1e-9)
	assert.Equal(t, int64(1), got.Writes)
	assert.Equal(t, int64(1), got.Deletes)
	assert.Equal(t, StoreHealthy, got.Health)
	assert.Equal(t, "memory", got.Driver)
}

func TestMonitoredStore_Errors(t *testing.T) {
	ctx := context.Background()
	m := NewMonitoredStore(brokenStore{}, "sqlite", logging.NewDiscardLogger())

	_, err := m.Load(ctx, "anon:a")
	assert.Error(t, err)
	assert.Error(t, m.Save(ctx, "anon:a", gate.NewSessionState(time.Now())))

	got := m.Metrics()
	assert.Equal(t, int64(2), got.Errors)
	assert.Equal(t, StoreCritical, got.Health)

	_, err = m.StageCounts(ctx)
	assert.ErrorIs(t, err, ErrCensusUnsupported)
}

func TestMonitoredStore_StageCounts(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewDiscardLogger()
	m := NewMonitoredStore(stores.NewGateStatesStore(logger), "memory", logger)

	s := gate.NewSessionState(time.Now())
	s.HasEmail = true
	s.UserEmail = "a@b.co"
	require.NoError(t, m.Save(ctx, gate.EmailKey("a@b.co"), s))
	require.NoError(t, m.Save(ctx, "anon:x", gate.NewSessionState(time.Now())))

	counts, err := m.StageCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"anonymous": 1, "email_user": 1}, counts)
}

func TestMonitoredStore_LogsEachCallOnce(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		Writer:       &buf,
		JSONFormat:   true,
		DefaultLevel: slog.LevelDebug,
	})
	require.NoError(t, err)
	m := NewMonitoredStore(stores.NewGateStatesStore(logger), "memory", logger)

	require.NoError(t, m.Save(ctx, "anon:a", gate.NewSessionState(time.Now())))
	_, err = m.Load(ctx, "anon:a")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, "anon:a"))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"operation":"save"`))
	assert.Equal(t, 1, strings.Count(out, `"operation":"load"`))
	assert.Equal(t, 1, strings.Count(out, `"operation":"clear"`))
}
