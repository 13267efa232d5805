// Package monitoring tracks hit ratio and latency of the gate state store.
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

// ErrCensusUnsupported is returned by StageCounts for stores that cannot count.
var ErrCensusUnsupported = errors.New("store does not support stage counts")

// Store is a gate store that owns a connection.
type Store interface {
	gate.Store
	Close() error
}

// StageCounter reports how many records sit in each funnel stage.
type StageCounter interface {
	CountByStage(ctx context.Context) (map[string]int, error)
}

// StoreHealthStatus classifies the store by its error ratio.
type StoreHealthStatus string

const (
	StoreHealthy   StoreHealthStatus = "healthy"
	StoreWarning   StoreHealthStatus = "warning"
	StoreCritical  StoreHealthStatus = "critical"
	StoreNoTraffic StoreHealthStatus = "no_traffic"
)

// StoreMetrics is a point-in-time view of store traffic.
type StoreMetrics struct {
	Driver      string    `json:"driver"`
	LastUpdated time.Time `json:"lastUpdated"`

	TotalLoads int64   `json:"totalLoads"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRatio   float64 `json:"hitRatio"`
	Writes     int64   `json:"writes"`
	Deletes    int64   `json:"deletes"`
	Errors     int64   `json:"errors"`

	AvgLoadLatency  time.Duration `json:"avgLoadLatency"`
	AvgWriteLatency time.Duration `json:"avgWriteLatency"`

	Health StoreHealthStatus `json:"health"`
}

// MonitoredStore wraps a Store and records every call.
type MonitoredStore struct {
	Store

	driver string
	logger *logging.ChanneledLogger

	mu           sync.Mutex
	metrics      StoreMetrics
	loadLatency  time.Duration
	writeLatency time.Duration
}

// NewMonitoredStore instruments store.
func NewMonitoredStore(store Store, driver string, logger *logging.ChanneledLogger) *MonitoredStore {
	return &MonitoredStore{
		Store:   store,
		driver:  driver,
		logger:  logger,
		metrics: StoreMetrics{Driver: driver},
	}
}

// Load records a hit when a record exists.
func (m *MonitoredStore) Load(ctx context.Context, key string) (*gate.SessionState, error) {
	start := time.Now()
	state, err := m.Store.Load(ctx, key)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.metrics.TotalLoads++
	m.loadLatency += elapsed
	switch {
	case err != nil && !errors.Is(err, gate.ErrCorruptRecord):
		m.metrics.Errors++
	case state != nil:
		m.metrics.Hits++
	default:
		m.metrics.Misses++
	}
	m.metrics.LastUpdated = time.Now().UTC()
	m.mu.Unlock()

	m.logger.LogCacheOperation("load", key, state != nil, elapsed)
	return state, err
}

// Save records a write.
func (m *MonitoredStore) Save(ctx context.Context, key string, state *gate.SessionState) error {
	start := time.Now()
	err := m.Store.Save(ctx, key, state)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.metrics.Writes++
	m.writeLatency += elapsed
	if err != nil {
		m.metrics.Errors++
	}
	m.metrics.LastUpdated = time.Now().UTC()
	m.mu.Unlock()

	m.logger.LogCacheOperation("save", key, err == nil, elapsed)
	return err
}

// Clear records a delete.
func (m *MonitoredStore) Clear(ctx context.Context, key string) error {
	start := time.Now()
	err := m.Store.Clear(ctx, key)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.metrics.Deletes++
	if err != nil {
		m.metrics.Errors++
	}
	m.metrics.LastUpdated = time.Now().UTC()
	m.mu.Unlock()

	m.logger.LogCacheOperation("clear", key, err == nil, elapsed)
	return err
}

// Metrics returns the current counters with derived ratios.
func (m *MonitoredStore) Metrics() StoreMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.metrics
	if out.TotalLoads > 0 {
		out.HitRatio = float64(out.Hits) / float64(out.TotalLoads)
		out.AvgLoadLatency = m.loadLatency / time.Duration(out.TotalLoads)
	}
	if out.Writes > 0 {
		out.AvgWriteLatency = m.writeLatency / time.Duration(out.Writes)
	}
	out.Health = classify(out)
	return out
}

// StageCounts returns the record census when the wrapped store supports it.
func (m *MonitoredStore) StageCounts(ctx context.Context) (map[string]int, error) {
	counter, ok := m.Store.(StageCounter)
	if !ok {
		return nil, ErrCensusUnsupported
	}
	return counter.CountByStage(ctx)
}

// Unwrap returns the instrumented store.
func (m *MonitoredStore) Unwrap() Store { return m.Store }

func classify(s StoreMetrics) StoreHealthStatus {
	calls := s.TotalLoads + s.Writes + s.Deletes
	if calls == 0 {
		return StoreNoTraffic
	}
	ratio := float64(s.Errors) / float64(calls)
	switch {
	case ratio >= 0.25:
		return StoreCritical
	case ratio >= 0.05:
		return StoreWarning
	default:
		return StoreHealthy
	}
}
