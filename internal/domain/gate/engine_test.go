package gate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps encoded records so tests exercise the codec on every round trip.
type memStore struct {
	mu      sync.Mutex
	records map[string][]byte
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, key string) (*gate.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return gate.DecodeState(data)
}

func (m *memStore) Save(_ context.Context, key string, st *gate.SessionState) error {
	data, err := gate.EncodeState(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = data
	m.saves++
	return nil
}

func (m *memStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context, string) (*gate.SessionState, error) { return nil, f.err }
func (f failingStore) Save(context.Context, string, *gate.SessionState) error  { return f.err }
func (f failingStore) Clear(context.Context, string) error                     { return f.err }

type stubVerifier struct{ valid map[string]string }

func (s stubVerifier) VerifyConfirmation(code, email string) error {
	if s.valid[code] != email {
		return errors.New("code does not match")
	}
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openEngine(t *testing.T, store gate.Store, email string, opts ...gate.Option) *gate.Engine {
	t.Helper()
	opts = append([]gate.Option{gate.WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := gate.Open(context.Background(), store, gate.DefaultConfig(), "device-1", email, opts...)
	require.NoError(t, err)
	return e
}

func viewN(t *testing.T, e *gate.Engine, from, to int) gate.Gate {
	t.Helper()
	var g gate.Gate
	for i := from; i <= to; i++ {
		var err error
		g, err = e.RecordView(context.Background(), fmt.Sprintf("drill-%d", i))
		require.NoError(t, err)
	}
	return g
}

func TestEngine_ScenarioWalkthrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := openEngine(t, store, "")

	g, err := e.RecordView(ctx, "drill-1")
	require.NoError(t, err)
	assert.Equal(t, gate.GateNone, g)
	assert.Equal(t, 1, e.Snapshot().DrillsViewed)

	g, err = e.RecordView(ctx, "drill-2")
	require.NoError(t, err)
	assert.Equal(t, gate.GateEmail, g)
	assert.Equal(t, 2, e.Snapshot().DrillsViewed)

	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))
	snap := e.Snapshot()
	assert.True(t, snap.HasEmail)
	assert.Equal(t, 0, snap.DrillsViewedAfterEmail)
	assert.Equal(t, 2, snap.DrillsViewed)
	assert.Equal(t, gate.GateNone, e.ActiveGate())

	g = viewN(t, e, 3, 10)
	assert.Equal(t, gate.GateNone, g)
	assert.Equal(t, 8, e.Snapshot().DrillsViewedAfterEmail)

	g = viewN(t, e, 11, 11)
	assert.Equal(t, gate.GateBroker, g)
	assert.Equal(t, 9, e.Snapshot().DrillsViewedAfterEmail)

	require.NoError(t, e.VerifyBroker(ctx))
	assert.True(t, e.Snapshot().HasBrokerAccount)
	assert.Equal(t, gate.GateNone, e.ActiveGate())
	g = viewN(t, e, 12, 40)
	assert.Equal(t, gate.GateNone, g)

	e.Reset(ctx)
	snap = e.Snapshot()
	assert.Equal(t, 0, snap.DrillsViewed)
	assert.False(t, snap.HasEmail)
	assert.False(t, snap.HasBrokerAccount)
	assert.Empty(t, snap.ViewedDrillIDs)
	assert.Equal(t, gate.GateNone, e.ActiveGate())
	assert.False(t, store.has(gate.EmailKey("a@b.com")))
}

func TestEngine_RecordViewIsIdempotentPerItem(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := openEngine(t, store, "")

	for i := 0; i < 5; i++ {
		_, err := e.RecordView(ctx, "drill-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.Snapshot().DrillsViewed)
	assert.Equal(t, 1, store.saves, "repeat views must not write")

	_, err := e.RecordView(ctx, "  drill-1 ")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Snapshot().DrillsViewed)
}

func TestEngine_RecordViewRejectsEmptyID(t *testing.T) {
	e := openEngine(t, newMemStore(), "")
	_, err := e.RecordView(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, gate.IsValidation(err))
	assert.Equal(t, 0, e.Snapshot().DrillsViewed)
}

func TestEngine_RepeatViewReportsActiveGate(t *testing.T) {
	e := openEngine(t, newMemStore(), "")
	viewN(t, e, 1, 2)

	g, err := e.RecordView(context.Background(), "drill-1")
	require.NoError(t, err)
	assert.Equal(t, gate.GateEmail, g)
}

func TestEngine_StatePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := openEngine(t, store, "")
	viewN(t, e, 1, 2)

	reopened := openEngine(t, store, "")
	assert.Equal(t, 2, reopened.Snapshot().DrillsViewed)
	assert.Equal(t, gate.GateEmail, reopened.ActiveGate())
	assert.True(t, fixedNow.Equal(reopened.Snapshot().SessionStart))

	require.NoError(t, reopened.SubmitEmail(ctx, "Reader@Example.com"))
	assert.False(t, store.has(gate.AnonymousKey("device-1")), "anonymous record is promoted")
	assert.True(t, store.has(gate.EmailKey("reader@example.com")))

	byEmail := openEngine(t, store, "reader@example.com")
	assert.Equal(t, gate.StageEmailUser, byEmail.CurrentStage())
	assert.Equal(t, 2, byEmail.Snapshot().DrillsViewed)
}

func TestEngine_LazyCreation(t *testing.T) {
	store := newMemStore()
	e := openEngine(t, store, "")
	assert.Equal(t, gate.GateNone, e.ActiveGate())
	assert.Equal(t, 0, store.saves)
	assert.False(t, store.has(gate.AnonymousKey("device-1")))
}

func TestEngine_SubmitEmailValidation(t *testing.T) {
	ctx := context.Background()
	cases := []string{"", "no-at-sign", "a@b", "a b@c.com", "@b.com", "a@.com", "a@b."}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			store := newMemStore()
			e := openEngine(t, store, "")
			viewN(t, e, 1, 2)
			before := e.Snapshot()

			err := e.SubmitEmail(ctx, raw)
			require.Error(t, err)
			var ve *gate.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "email", ve.Field)
			assert.Equal(t, before, e.Snapshot())
		})
	}
}

func TestEngine_SubmitSameEmailTwiceKeepsAllowance(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, newMemStore(), "")
	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))
	viewN(t, e, 1, 3)
	require.Equal(t, 3, e.Snapshot().DrillsViewedAfterEmail)

	require.NoError(t, e.SubmitEmail(ctx, "A@B.com "))
	assert.Equal(t, 3, e.Snapshot().DrillsViewedAfterEmail)
}

func TestEngine_IdentityIsolation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := openEngine(t, store, "")

	require.NoError(t, e.SubmitEmail(ctx, "alice@x.com"))
	viewN(t, e, 1, 4)
	require.Equal(t, 4, e.Snapshot().DrillsViewed)

	require.NoError(t, e.SubmitEmail(ctx, "bob@y.com"))
	assert.Equal(t, "bob@y.com", e.Snapshot().UserEmail)
	assert.Equal(t, 0, e.Snapshot().DrillsViewed)
	viewN(t, e, 100, 101)

	alice := openEngine(t, store, "alice@x.com")
	bob := openEngine(t, store, "bob@y.com")
	assert.Equal(t, 4, alice.Snapshot().DrillsViewed)
	assert.Equal(t, 2, bob.Snapshot().DrillsViewed)
	assert.False(t, alice.Snapshot().HasViewed("drill-100"))

	require.NoError(t, e.SubmitEmail(ctx, "alice@x.com"))
	assert.Equal(t, 4, e.Snapshot().DrillsViewed)
}

func TestEngine_ReturningEmailMergesDeviceViews(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	first := openEngine(t, store, "")
	require.NoError(t, first.SubmitEmail(ctx, "carol@z.com"))
	viewN(t, first, 1, 5)
	require.NoError(t, first.VerifyBroker(ctx))

	other, err := gate.Open(ctx, store, gate.DefaultConfig(), "device-2", "")
	require.NoError(t, err)
	for _, id := range []string{"fresh-1", "fresh-2", "fresh-3"} {
		_, err = other.RecordView(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, other.SubmitEmail(ctx, "carol@z.com"))

	snap := other.Snapshot()
	assert.Equal(t, 8, snap.DrillsViewed)
	assert.Len(t, snap.ViewedDrillIDs, 8)
	assert.Equal(t, 5, snap.DrillsViewedAfterEmail)
	assert.True(t, snap.HasBrokerAccount)
	assert.True(t, first.Snapshot().SessionStart.Equal(snap.SessionStart))
	assert.True(t, other.CanAccess("fresh-1"))
	assert.False(t, store.has(gate.AnonymousKey("device-2")))

	reopened := openEngine(t, store, "carol@z.com")
	assert.Equal(t, 8, reopened.Snapshot().DrillsViewed)
}

func TestEngine_ReturningEmailNeverLowersViewCount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	a, err := gate.Open(ctx, store, gate.DefaultConfig(), "device-a", "")
	require.NoError(t, err)
	_, err = a.RecordView(ctx, "drill-1")
	require.NoError(t, err)
	require.NoError(t, a.SubmitEmail(ctx, "a@b.com"))

	b, err := gate.Open(ctx, store, gate.DefaultConfig(), "device-b", "")
	require.NoError(t, err)
	for _, id := range []string{"x1", "x2", "x3", "x4", "x5"} {
		_, err = b.RecordView(ctx, id)
		require.NoError(t, err)
	}
	before := b.Snapshot().DrillsViewed
	require.NoError(t, b.SubmitEmail(ctx, "a@b.com"))

	after := b.Snapshot()
	assert.Equal(t, 5, before)
	assert.Equal(t, 6, after.DrillsViewed)
	assert.True(t, b.CanAccess("x3"))
	assert.True(t, b.CanAccess("drill-1"))
}

func TestEngine_VerifyBrokerRequiresEmail(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, newMemStore(), "")

	err := e.VerifyBroker(ctx)
	require.Error(t, err)
	assert.True(t, gate.IsInvalidState(err))
	assert.False(t, e.Snapshot().HasBrokerAccount)

	err = e.VerifyBrokerWithCode(ctx, "anything")
	assert.True(t, gate.IsInvalidState(err))
}

func TestEngine_VerifyBrokerWithCode(t *testing.T) {
	ctx := context.Background()
	verifier := stubVerifier{valid: map[string]string{"good": "a@b.com", "other": "z@b.com"}}
	e := openEngine(t, newMemStore(), "", gate.WithVerifier(verifier))
	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))

	err := e.VerifyBrokerWithCode(ctx, "")
	assert.True(t, gate.IsValidation(err))

	err = e.VerifyBrokerWithCode(ctx, "other")
	assert.True(t, gate.IsValidation(err))
	assert.False(t, e.Snapshot().HasBrokerAccount)

	require.NoError(t, e.VerifyBrokerWithCode(ctx, "good"))
	assert.Equal(t, gate.StageBrokerUser, e.CurrentStage())
	assert.Equal(t, gate.Unlimited, e.RemainingViews())
}

func TestEngine_VerifyBrokerWithCodeWithoutVerifier(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, newMemStore(), "")
	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))
	err := e.VerifyBrokerWithCode(ctx, "code")
	assert.True(t, gate.IsInvalidState(err))
}

func TestEngine_RemainingViews(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, newMemStore(), "")
	assert.Equal(t, 1, e.RemainingViews())
	viewN(t, e, 1, 1)
	assert.Equal(t, 0, e.RemainingViews())
	viewN(t, e, 2, 3)
	assert.Equal(t, 0, e.RemainingViews())

	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))
	assert.Equal(t, 8, e.RemainingViews())
	viewN(t, e, 4, 6)
	assert.Equal(t, 5, e.RemainingViews())
}

func TestEngine_CanAccess(t *testing.T) {
	e := openEngine(t, newMemStore(), "")
	assert.True(t, e.CanAccess("drill-1"))
	viewN(t, e, 1, 2)

	assert.True(t, e.CanAccess("drill-1"), "already counted items stay accessible")
	assert.True(t, e.CanAccess("drill-2"))
	assert.False(t, e.CanAccess("drill-3"))
}

func TestEngine_DismissGate(t *testing.T) {
	ctx := context.Background()
	cfg := gate.DefaultConfig()
	cfg.EmailGateBlocking = false
	store := newMemStore()
	e, err := gate.Open(ctx, store, cfg, "device-1", "")
	require.NoError(t, err)

	err = e.DismissGate(ctx)
	assert.True(t, gate.IsInvalidState(err), "nothing to dismiss yet")

	viewN(t, e, 1, 2)
	require.True(t, e.PromptVisible())
	require.NoError(t, e.DismissGate(ctx))
	assert.False(t, e.PromptVisible())
	assert.Equal(t, gate.GateEmail, e.ActiveGate(), "dismissal never changes the gate")
	assert.False(t, e.CanAccess("drill-3"))

	reopened, err := gate.Open(ctx, store, cfg, "device-1", "")
	require.NoError(t, err)
	assert.False(t, reopened.PromptVisible())

	viewN(t, reopened, 3, 3)
	assert.True(t, reopened.PromptVisible(), "a new view re-raises the prompt")
}

func TestEngine_DismissBlockingGate(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, newMemStore(), "")
	viewN(t, e, 1, 2)
	err := e.DismissGate(ctx)
	require.Error(t, err)
	assert.True(t, gate.IsInvalidState(err))
	assert.True(t, e.PromptVisible())
}

func TestEngine_DegradesWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	store := failingStore{err: errors.New("quota exceeded")}
	e, err := gate.Open(ctx, store, gate.DefaultConfig(), "device-1", "")
	require.NoError(t, err)
	assert.True(t, e.Degraded())

	g := viewN(t, e, 1, 2)
	assert.Equal(t, gate.GateEmail, g)
	require.NoError(t, e.SubmitEmail(ctx, "a@b.com"))
	assert.Equal(t, gate.StageEmailUser, e.CurrentStage())
}

func TestEngine_DegradesOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{memStore: newMemStore(), failSaves: true}
	e, err := gate.Open(ctx, store, gate.DefaultConfig(), "device-1", "")
	require.NoError(t, err)
	assert.False(t, e.Degraded())

	viewN(t, e, 1, 1)
	assert.True(t, e.Degraded())
	viewN(t, e, 2, 2)
	assert.Equal(t, 2, e.Snapshot().DrillsViewed)
	assert.Equal(t, 1, store.saveAttempts, "memory-only mode stops writing")
}

type flakyStore struct {
	*memStore
	failSaves    bool
	saveAttempts int
}

func (f *flakyStore) Save(ctx context.Context, key string, st *gate.SessionState) error {
	f.saveAttempts++
	if f.failSaves {
		return errors.New("disk full")
	}
	return f.memStore.Save(ctx, key, st)
}

func TestEngine_CorruptRecordTreatedAsAbsent(t *testing.T) {
	store := newMemStore()
	store.records[gate.AnonymousKey("device-1")] = []byte("{not json")

	e := openEngine(t, store, "")
	assert.False(t, e.Degraded())
	assert.Equal(t, 0, e.Snapshot().DrillsViewed)

	viewN(t, e, 1, 1)
	reopened := openEngine(t, store, "")
	assert.Equal(t, 1, reopened.Snapshot().DrillsViewed, "corrupt record is overwritten")
}

func TestEngine_OpenWithEmailWithoutRecord(t *testing.T) {
	e := openEngine(t, newMemStore(), "new@user.io")
	assert.Equal(t, gate.StageEmailUser, e.CurrentStage())
	assert.Equal(t, gate.EmailKey("new@user.io"), e.IdentityKey())
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := gate.Open(ctx, newMemStore(), gate.DefaultConfig(), "", "")
	assert.True(t, gate.IsValidation(err))

	_, err = gate.Open(ctx, newMemStore(), gate.DefaultConfig(), "device", "not-an-email")
	assert.True(t, gate.IsValidation(err))

	cfg := gate.DefaultConfig()
	cfg.BrokerGateThreshold = -1
	_, err = gate.Open(ctx, newMemStore(), cfg, "device", "")
	assert.Error(t, err)
}
