package gate_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeState_Shape(t *testing.T) {
	st := gate.NewSessionState(time.UnixMilli(1700000000000))
	st.HasEmail = true
	st.UserEmail = "a@b.com"
	st.ViewedDrillIDs["b"] = struct{}{}
	st.ViewedDrillIDs["a"] = struct{}{}
	st.DrillsViewed = 2
	st.DrillsViewedAfterEmail = 1

	data, err := gate.EncodeState(st)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, gate.SchemaVersion, raw["schemaVersion"])
	assert.EqualValues(t, 1700000000000, raw["sessionStart"])
	assert.Equal(t, "a@b.com", raw["userEmail"])
	assert.Equal(t, []any{"a", "b"}, raw["viewedDrillIds"])
	assert.EqualValues(t, 1, raw["drillsViewedAfterEmail"])
	assert.NotContains(t, raw, "activeGate")
}

func TestEncodeState_AnonymousEmailIsNull(t *testing.T) {
	data, err := gate.EncodeState(gate.NewSessionState(time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"userEmail":null`)
}

func TestDecodeState_LegacyRecord(t *testing.T) {
	legacy := `{
		"sessionStart": 1690000000000,
		"hasEmail": false,
		"userEmail": null,
		"hasBrokerAccount": false,
		"drillsViewed": 3,
		"viewedDrillIds": [101, "102", 103],
		"activeGate": "email"
	}`
	st, err := gate.DecodeState([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, 3, st.DrillsViewed)
	assert.True(t, st.HasViewed("101"))
	assert.True(t, st.HasViewed("102"))
	assert.Equal(t, 0, st.DrillsViewedAfterEmail)
	assert.Equal(t, gate.GateNone, st.DismissedGate)
}

func TestDecodeState_RepairsCounters(t *testing.T) {
	rec := `{"schemaVersion":2,"sessionStart":1,"hasEmail":true,"userEmail":"A@B.com",
		"hasBrokerAccount":false,"drillsViewed":9,"drillsViewedAfterEmail":7,
		"viewedDrillIds":["x","x","y",""]}`
	st, err := gate.DecodeState([]byte(rec))
	require.NoError(t, err)
	assert.Equal(t, 2, st.DrillsViewed, "counter follows the id set")
	assert.Equal(t, 2, st.DrillsViewedAfterEmail, "after-email count cannot exceed the total")
	assert.Equal(t, "a@b.com", st.UserEmail)
}

func TestDecodeState_Corrupt(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"future version":    `{"schemaVersion":99,"sessionStart":1,"viewedDrillIds":[]}`,
		"no session start":  `{"viewedDrillIds":[]}`,
		"negative counter":  `{"sessionStart":1,"drillsViewed":-1,"viewedDrillIds":[]}`,
		"broker no email":   `{"sessionStart":1,"hasBrokerAccount":true,"viewedDrillIds":[]}`,
		"email missing":     `{"sessionStart":1,"hasEmail":true,"viewedDrillIds":[]}`,
		"email malformed":   `{"sessionStart":1,"hasEmail":true,"userEmail":"nope","viewedDrillIds":[]}`,
		"bad id type":       `{"sessionStart":1,"viewedDrillIds":[true]}`,
		"negative after":    `{"sessionStart":1,"hasEmail":true,"userEmail":"a@b.co","drillsViewedAfterEmail":-2,"viewedDrillIds":[]}`,
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := gate.DecodeState([]byte(rec))
			require.Error(t, err)
			assert.True(t, errors.Is(err, gate.ErrCorruptRecord))
		})
	}
}

func TestDecodeState_RoundTrip(t *testing.T) {
	st := gate.NewSessionState(time.UnixMilli(1700000000123))
	st.HasEmail = true
	st.UserEmail = "x@y.io"
	st.HasBrokerAccount = true
	for _, id := range []string{"1", "2", "3"} {
		st.ViewedDrillIDs[id] = struct{}{}
	}
	st.DrillsViewed = 3
	st.DrillsViewedAfterEmail = 2
	st.DismissedGate = gate.GateBroker

	data, err := gate.EncodeState(st)
	require.NoError(t, err)
	got, err := gate.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}
