package performance

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers map[string]*Marker
	mu      sync.RWMutex
	started time.Time
	config  *TrackerConfig
	seq     uint64
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers    int           `json:"maxMarkers"`
	Retention     time.Duration `json:"retention"`
	SlowThreshold time.Duration `json:"slowThreshold"`
}

// DefaultTrackerConfig returns the default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:    10000,
		Retention:     time.Hour,
		SlowThreshold: 500 * time.Millisecond,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		markers: make(map[string]*Marker),
		started: time.Now(),
		config:  config,
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, scope string) *Marker {
	marker := &Marker{Metric: Metric{
		Operation: operation,
		Scope:     scope,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true,
	}}

	t.mu.Lock()
	t.seq++
	t.markers[fmt.Sprintf("%s_%d", operation, t.seq)] = marker
	overflow := len(t.markers) > t.config.MaxMarkers
	t.mu.Unlock()

	if overflow {
		t.Cleanup()
	}
	return marker
}

// IsSlow reports whether a completed marker exceeded the slow threshold
func (t *Tracker) IsSlow(marker *Marker) bool {
	s := marker.snapshot()
	return s.Completed && t.config.SlowThreshold > 0 && s.Duration > t.config.SlowThreshold
}

// GetRecentMetrics returns markers completed within the given window. An
// empty scope matches every marker.
func (t *Tracker) GetRecentMetrics(scope string, within time.Duration) []Metric {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var metrics []Metric
	for _, marker := range t.markers {
		s := marker.snapshot()
		if (scope == "" || s.Scope == scope) && s.Completed && s.EndTime.After(cutoff) {
			metrics = append(metrics, s)
		}
	}
	return metrics
}

// Summarize groups recent markers by operation name
func (t *Tracker) Summarize(within time.Duration) []OperationStats {
	byOp := make(map[string]*OperationStats)
	var totals = make(map[string]time.Duration)
	for _, m := range t.GetRecentMetrics("", within) {
		st, ok := byOp[m.Operation]
		if !ok {
			st = &OperationStats{Operation: m.Operation}
			byOp[m.Operation] = st
		}
		st.Count++
		if !m.Success {
			st.Failures++
		}
		if m.Duration > st.Max {
			st.Max = m.Duration
		}
		totals[m.Operation] += m.Duration
	}

	out := make([]OperationStats, 0, len(byOp))
	for op, st := range byOp {
		st.Average = totals[op] / time.Duration(st.Count)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// Health classifies recent operations by failure ratio
func (t *Tracker) Health(within time.Duration) HealthStatus {
	metrics := t.GetRecentMetrics("", within)
	if len(metrics) == 0 {
		return HealthUnknown
	}
	failures := 0
	for _, m := range metrics {
		if !m.Success {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(metrics))
	switch {
	case ratio > 0.1:
		return HealthUnhealthy
	case ratio > 0.05:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Cleanup removes markers older than the retention window and trims the map
// down to MaxMarkers.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.config.Retention)
	for id, marker := range t.markers {
		s := marker.snapshot()
		if s.Completed && s.EndTime.Before(cutoff) {
			delete(t.markers, id)
		}
	}

	if len(t.markers) <= t.config.MaxMarkers {
		return
	}
	type aged struct {
		id    string
		start time.Time
	}
	all := make([]aged, 0, len(t.markers))
	for id, marker := range t.markers {
		all = append(all, aged{id, marker.snapshot().StartTime})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })
	for _, a := range all[:len(all)-t.config.MaxMarkers] {
		delete(t.markers, a.id)
	}
}

// GetOverallStats returns overall tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	active, completed := 0, 0
	for _, marker := range t.markers {
		if marker.snapshot().Completed {
			completed++
		} else {
			active++
		}
	}

	return map[string]any{
		"trackerUptime":       time.Since(t.started).String(),
		"totalMarkers":        len(t.markers),
		"activeOperations":    active,
		"completedOperations": completed,
		"memoryUsageMB":       memStats.Alloc / (1024 * 1024),
	}
}
