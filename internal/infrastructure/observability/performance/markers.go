// Package performance times gate operations and store round trips.
package performance

import (
	"sync"
	"time"
)

// Metric is the recorded measurement of one operation
type Metric struct {
	Operation string         `json:"operation"` // e.g. "gate:record_view", "store:save"
	Scope     string         `json:"scope"`     // Masked identity or component name
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Completed bool           `json:"completed"`
}

// Marker is a running measurement. Handlers defer Complete on it.
type Marker struct {
	Metric
	mu sync.Mutex
}

// Complete marks the operation as finished and records its duration
func (m *Marker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.mu.Lock()
	m.Success = success
	m.mu.Unlock()
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.Error = err.Error()
	m.Success = false
	m.mu.Unlock()
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

func (m *Marker) snapshot() Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	return Metric{
		Operation: m.Operation,
		Scope:     m.Scope,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Duration:  m.Duration,
		Success:   m.Success,
		Error:     m.Error,
		Metadata:  meta,
		Completed: m.Completed,
	}
}

// OperationStats aggregates completed markers for one operation name
type OperationStats struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Average   time.Duration `json:"average"`
	Max       time.Duration `json:"max"`
}

// HealthStatus represents the overall health of the service
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)
