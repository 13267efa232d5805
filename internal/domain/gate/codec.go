package gate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is written into every encoded record.
// Version 1 records carried no version field, stored the derived activeGate
// and had no after-email counter.
const SchemaVersion = 2

type record struct {
	SchemaVersion          int      `json:"schemaVersion,omitempty"`
	SessionStart           int64    `json:"sessionStart"`
	HasEmail               bool     `json:"hasEmail"`
	UserEmail              *string  `json:"userEmail"`
	HasBrokerAccount       bool     `json:"hasBrokerAccount"`
	DrillsViewed           int      `json:"drillsViewed"`
	DrillsViewedAfterEmail *int     `json:"drillsViewedAfterEmail,omitempty"`
	ViewedDrillIDs         []itemID `json:"viewedDrillIds"`
	DismissedGate          Gate     `json:"dismissedGate,omitempty"`

	// ActiveGate only appears in version 1 records and is ignored.
	ActiveGate string `json:"activeGate,omitempty"`
}

// itemID accepts both JSON strings and numbers.
type itemID string

func (i *itemID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = itemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("drill id must be a string or number: %w", err)
	}
	*i = itemID(n.String())
	return nil
}

// EncodeState serializes s into the current record format.
func EncodeState(s *SessionState) ([]byte, error) {
	ids := s.ViewedIDs()
	rec := record{
		SchemaVersion:          SchemaVersion,
		SessionStart:           s.SessionStart.UnixMilli(),
		HasEmail:               s.HasEmail,
		HasBrokerAccount:       s.HasBrokerAccount,
		DrillsViewed:           s.DrillsViewed,
		DrillsViewedAfterEmail: &s.DrillsViewedAfterEmail,
		ViewedDrillIDs:         make([]itemID, len(ids)),
		DismissedGate:          s.DismissedGate,
	}
	if s.HasEmail {
		email := s.UserEmail
		rec.UserEmail = &email
	}
	for i, id := range ids {
		rec.ViewedDrillIDs[i] = itemID(id)
	}
	if !rec.DismissedGate.Valid() {
		rec.DismissedGate = GateNone
	}
	return json.Marshal(rec)
}

// DecodeState parses a record of any supported version. Counters are repaired
// to match the id set; records that break the ordering invariant are corrupt.
func DecodeState(data []byte) (*SessionState, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptRecord, rec.SchemaVersion)
	}
	if rec.SessionStart <= 0 {
		return nil, fmt.Errorf("%w: missing sessionStart", ErrCorruptRecord)
	}
	if rec.DrillsViewed < 0 || (rec.DrillsViewedAfterEmail != nil && *rec.DrillsViewedAfterEmail < 0) {
		return nil, fmt.Errorf("%w: negative view counter", ErrCorruptRecord)
	}
	if rec.HasBrokerAccount && !rec.HasEmail {
		return nil, fmt.Errorf("%w: broker account without email", ErrCorruptRecord)
	}

	state := &SessionState{
		SessionStart:     time.UnixMilli(rec.SessionStart).UTC(),
		HasEmail:         rec.HasEmail,
		HasBrokerAccount: rec.HasBrokerAccount,
		ViewedDrillIDs:   make(map[string]struct{}, len(rec.ViewedDrillIDs)),
		DismissedGate:    rec.DismissedGate,
	}
	if state.HasEmail {
		if rec.UserEmail == nil {
			return nil, fmt.Errorf("%w: hasEmail without userEmail", ErrCorruptRecord)
		}
		email, err := NormalizeEmail(*rec.UserEmail)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		state.UserEmail = email
	}

	for _, id := range rec.ViewedDrillIDs {
		trimmed := strings.TrimSpace(string(id))
		if trimmed == "" {
			continue
		}
		state.ViewedDrillIDs[trimmed] = struct{}{}
	}
	state.DrillsViewed = len(state.ViewedDrillIDs)

	if state.HasEmail && rec.DrillsViewedAfterEmail != nil {
		state.DrillsViewedAfterEmail = min(*rec.DrillsViewedAfterEmail, state.DrillsViewed)
	}
	if !state.DismissedGate.Valid() {
		state.DismissedGate = GateNone
	}
	return state, nil
}
