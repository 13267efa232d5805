// Package stores provides concrete cache store implementations
package stores

import (
	"context"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

// GateStatesStore keeps encoded gate records in process memory. Records are
// stored in their wire form so every Load returns an independent copy.
type GateStatesStore struct {
	cache  *types.GateStateCache
	logger *logging.ChanneledLogger
	now    func() time.Time
}

// NewGateStatesStore creates a new in-memory gate state store
func NewGateStatesStore(logger *logging.ChanneledLogger) *GateStatesStore {
	if logger != nil {
		logger.Cache().Info("Initializing gate state cache store")
	}
	return &GateStatesStore{
		cache:  types.NewGateStateCache(),
		logger: logger,
		now:    time.Now,
	}
}

// Load returns the record stored under key, or nil when absent
func (s *GateStatesStore) Load(_ context.Context, key string) (*gate.SessionState, error) {
	s.cache.Mu.RLock()
	entry, found := s.cache.Entries[key]
	var payload []byte
	if found {
		payload = entry.Payload
	}
	s.cache.Mu.RUnlock()

	if !found {
		return nil, nil
	}
	return gate.DecodeState(payload)
}

// Save replaces the record stored under key
func (s *GateStatesStore) Save(_ context.Context, key string, state *gate.SessionState) error {
	payload, err := gate.EncodeState(state)
	if err != nil {
		return err
	}

	s.cache.Mu.Lock()
	s.cache.Entries[key] = &types.GateStateEntry{
		Payload:      payload,
		Stage:        string(gate.CurrentStage(state)),
		LastActivity: s.now().UTC(),
	}
	s.cache.Mu.Unlock()
	return nil
}

// Clear removes the record stored under key
func (s *GateStatesStore) Clear(_ context.Context, key string) error {
	s.cache.Mu.Lock()
	delete(s.cache.Entries, key)
	s.cache.Mu.Unlock()
	return nil
}

// PurgeIdle drops records untouched for longer than olderThan
func (s *GateStatesStore) PurgeIdle(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)

	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	purged := 0
	for key, entry := range s.cache.Entries {
		if entry.LastActivity.Before(cutoff) {
			delete(s.cache.Entries, key)
			purged++
		}
	}
	s.cache.LastPurged = s.now().UTC()
	return purged, nil
}

// CountByStage returns the number of cached records by stage
func (s *GateStatesStore) CountByStage(_ context.Context) (map[string]int, error) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()

	counts := make(map[string]int)
	for _, entry := range s.cache.Entries {
		counts[entry.Stage]++
	}
	return counts, nil
}

// Close satisfies the container's store lifecycle
func (s *GateStatesStore) Close() error { return nil }
