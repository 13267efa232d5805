package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

var _ gate.Store = (*GateStatesStore)(nil)
var _ gate.Purger = (*GateStatesStore)(nil)

func TestGateStatesStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := NewGateStatesStore(logging.NewDiscardLogger())

	got, err := s.Load(ctx, "anon:1")
	require.NoError(t, err)
	assert.Nil(t, got)

	st := gate.NewSessionState(time.Now())
	st.ViewedDrillIDs["d1"] = struct{}{}
	st.DrillsViewed = 1
	require.NoError(t, s.Save(ctx, "anon:1", st))

	got, err = s.Load(ctx, "anon:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasViewed("d1"))

	got.ViewedDrillIDs["d2"] = struct{}{}
	again, _ := s.Load(ctx, "anon:1")
	assert.False(t, again.HasViewed("d2"), "loads return independent copies")

	counts, err := s.CountByStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"anonymous": 1}, counts)

	require.NoError(t, s.Clear(ctx, "anon:1"))
	got, err = s.Load(ctx, "anon:1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGateStatesStore_CorruptPayload(t *testing.T) {
	s := NewGateStatesStore(nil)
	s.cache.Entries["anon:x"] = &types.GateStateEntry{Payload: []byte("{"), LastActivity: time.Now()}

	_, err := s.Load(context.Background(), "anon:x")
	assert.True(t, errors.Is(err, gate.ErrCorruptRecord))
}

func TestGateStatesStore_PurgeIdle(t *testing.T) {
	ctx := context.Background()
	s := NewGateStatesStore(nil)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return now.Add(-48 * time.Hour) }
	require.NoError(t, s.Save(ctx, "anon:old", gate.NewSessionState(now)))
	s.now = func() time.Time { return now }
	require.NoError(t, s.Save(ctx, "anon:new", gate.NewSessionState(now)))

	purged, err := s.PurgeIdle(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	old, _ := s.Load(ctx, "anon:old")
	assert.Nil(t, old)
	fresh, _ := s.Load(ctx, "anon:new")
	assert.NotNil(t, fresh)
}
