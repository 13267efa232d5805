// Package types defines the cached gate record structures.
package types

import (
	"sync"
	"time"
)

// GateStateEntry is one encoded gate record held in memory
type GateStateEntry struct {
	Payload      []byte    `json:"payload"`
	Stage        string    `json:"stage"`
	LastActivity time.Time `json:"lastActivity"`
}

// GateStateCache holds gate records by identity key
type GateStateCache struct {
	Entries    map[string]*GateStateEntry
	LastPurged time.Time
	Mu         sync.RWMutex
}

// NewGateStateCache returns an empty cache
func NewGateStateCache() *GateStateCache {
	return &GateStateCache{Entries: make(map[string]*GateStateEntry)}
}
