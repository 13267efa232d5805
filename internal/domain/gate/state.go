// Package gate implements the progressive content gate: per-visitor drill view
// counting, email and broker gate activation, and the persisted session record
// that carries a visitor from anonymous to email user to broker user.
package gate

import (
	"sort"
	"time"
)

// Gate identifies which prompt, if any, currently blocks new drill content.
type Gate string

const (
	GateNone   Gate = "none"
	GateEmail  Gate = "email"
	GateBroker Gate = "broker"
)

// Valid reports whether g is one of the known gates.
func (g Gate) Valid() bool {
	switch g {
	case GateNone, GateEmail, GateBroker:
		return true
	}
	return false
}

// Stage is the visitor's position in the funnel.
type Stage string

const (
	StageAnonymous  Stage = "anonymous"
	StageEmailUser  Stage = "email_user"
	StageBrokerUser Stage = "broker_user"
)

// Unlimited is returned by RemainingViews once the visitor has full access.
const Unlimited = -1

// SessionState is the persisted record for one visitor identity.
// The active gate is never stored here; it is always derived.
type SessionState struct {
	SessionStart           time.Time
	HasEmail               bool
	UserEmail              string
	HasBrokerAccount       bool
	DrillsViewed           int
	DrillsViewedAfterEmail int
	ViewedDrillIDs         map[string]struct{}

	// DismissedGate is a presentation hint: the non-blocking gate the visitor
	// closed. Cleared whenever a new distinct item is counted.
	DismissedGate Gate
}

// NewSessionState returns a fresh anonymous state started at now.
func NewSessionState(now time.Time) *SessionState {
	return &SessionState{
		SessionStart:   now.UTC(),
		ViewedDrillIDs: make(map[string]struct{}),
		DismissedGate:  GateNone,
	}
}

// HasViewed reports whether itemID has already been counted.
func (s *SessionState) HasViewed(itemID string) bool {
	_, ok := s.ViewedDrillIDs[itemID]
	return ok
}

// ViewedIDs returns the counted item ids in sorted order.
func (s *SessionState) ViewedIDs() []string {
	ids := make([]string, 0, len(s.ViewedDrillIDs))
	for id := range s.ViewedDrillIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy safe to hand to callers.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.ViewedDrillIDs = make(map[string]struct{}, len(s.ViewedDrillIDs))
	for id := range s.ViewedDrillIDs {
		c.ViewedDrillIDs[id] = struct{}{}
	}
	return &c
}
