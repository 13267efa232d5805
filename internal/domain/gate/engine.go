package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

const maxItemIDLength = 128

// Engine is the gate state machine for one visitor. It loads the visitor's
// record on Open, applies transitions, and saves after every mutation.
//
// An Engine is owned by a single caller and is not safe for concurrent use.
// Two engines writing the same identity resolve by last write wins.
type Engine struct {
	store    Store
	cfg      Config
	verifier ConfirmationVerifier
	logger   *slog.Logger
	now      func() time.Time

	deviceID string
	state    *SessionState
	degraded bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger routes persistence warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithVerifier enables VerifyBrokerWithCode.
func WithVerifier(v ConfirmationVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// Open loads the record for the visitor identified by deviceID and, when
// known, email. A missing or corrupt record yields a fresh in-memory state
// that is persisted on the first mutation. A failing store puts the engine
// in memory-only mode instead of returning an error.
func Open(ctx context.Context, store Store, cfg Config, deviceID, email string, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &ValidationError{Field: "deviceId", Reason: "device id is required"}
	}

	e := &Engine{
		store:    store,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		deviceID: deviceID,
	}
	for _, opt := range opts {
		opt(e)
	}

	if email == "" {
		if st := e.load(ctx, AnonymousKey(deviceID)); st != nil && !st.HasEmail {
			e.state = st
		} else {
			e.state = NewSessionState(e.now())
		}
		return e, nil
	}

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if st := e.load(ctx, EmailKey(normalized)); st != nil && st.HasEmail && st.UserEmail == normalized {
		e.state = st
	} else {
		e.state = e.freshEmailState(normalized)
	}
	return e, nil
}

// RecordView counts itemID once and returns the recomputed gate.
func (e *Engine) RecordView(ctx context.Context, itemID string) (Gate, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return e.ActiveGate(), &ValidationError{Field: "itemId", Reason: "item id is required"}
	}
	if len(id) > maxItemIDLength {
		return e.ActiveGate(), &ValidationError{Field: "itemId", Reason: "item id is too long"}
	}
	if e.state.HasViewed(id) {
		return e.ActiveGate(), nil
	}

	e.state.ViewedDrillIDs[id] = struct{}{}
	e.state.DrillsViewed++
	if e.state.HasEmail {
		e.state.DrillsViewedAfterEmail++
	}
	e.state.DismissedGate = GateNone
	e.persist(ctx)
	return e.ActiveGate(), nil
}

// SubmitEmail records the visitor's email. The first submission promotes the
// anonymous record to an email-keyed one and starts a fresh after-email
// allowance. Resubmitting the same email is a no-op; a different email
// switches to that identity's own record.
func (e *Engine) SubmitEmail(ctx context.Context, raw string) error {
	email, err := NormalizeEmail(raw)
	if err != nil {
		return err
	}

	if e.state.HasEmail {
		if e.state.UserEmail == email {
			return nil
		}
		return e.switchIdentity(ctx, email)
	}

	anonKey := AnonymousKey(e.deviceID)
	if existing := e.load(ctx, EmailKey(email)); existing != nil && existing.HasEmail && existing.UserEmail == email {
		e.logger.Debug("Merging device views into existing email record",
			"drillsViewed", existing.DrillsViewed, "deviceViews", e.state.DrillsViewed)
		e.state = mergeInto(existing, e.state)
	} else {
		e.state.HasEmail = true
		e.state.UserEmail = email
		e.state.DrillsViewedAfterEmail = 0
		e.state.DismissedGate = GateNone
	}
	e.persist(ctx)
	e.clear(ctx, anonKey)
	return nil
}

// VerifyBroker records a successful broker verification.
func (e *Engine) VerifyBroker(ctx context.Context) error {
	if !e.state.HasEmail {
		return &InvalidStateError{Op: "verify broker", Reason: "email has not been submitted"}
	}
	if e.state.HasBrokerAccount {
		return nil
	}
	e.state.HasBrokerAccount = true
	e.state.DismissedGate = GateNone
	e.persist(ctx)
	return nil
}

// VerifyBrokerWithCode checks code against the visitor's email before
// recording the verification.
func (e *Engine) VerifyBrokerWithCode(ctx context.Context, code string) error {
	if !e.state.HasEmail {
		return &InvalidStateError{Op: "verify broker", Reason: "email has not been submitted"}
	}
	if e.verifier == nil {
		return &InvalidStateError{Op: "verify broker", Reason: "confirmation codes are not enabled"}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return &ValidationError{Field: "confirmationCode", Reason: "confirmation code is required"}
	}
	if err := e.verifier.VerifyConfirmation(code, e.state.UserEmail); err != nil {
		return &ValidationError{Field: "confirmationCode", Reason: err.Error()}
	}
	return e.VerifyBroker(ctx)
}

// DismissGate closes the active gate when it is not blocking.
func (e *Engine) DismissGate(ctx context.Context) error {
	g := e.ActiveGate()
	if g == GateNone {
		return &InvalidStateError{Op: "dismiss gate", Reason: "no gate is active"}
	}
	if e.cfg.IsBlocking(g) {
		return &InvalidStateError{Op: "dismiss gate", Reason: string(g) + " gate is blocking"}
	}
	if e.state.DismissedGate == g {
		return nil
	}
	e.state.DismissedGate = g
	e.persist(ctx)
	return nil
}

// Reset clears the persisted records for this visitor and starts over as an
// anonymous device.
func (e *Engine) Reset(ctx context.Context) {
	if e.state.HasEmail {
		e.clear(ctx, EmailKey(e.state.UserEmail))
	}
	e.clear(ctx, AnonymousKey(e.deviceID))
	e.state = NewSessionState(e.now())
}

// ActiveGate is recomputed from the counters on every call.
func (e *Engine) ActiveGate() Gate {
	return ComputeGate(e.state, e.cfg)
}

// RemainingViews returns free views left, or Unlimited.
func (e *Engine) RemainingViews() int {
	return RemainingViews(e.state, e.cfg)
}

// CurrentStage returns the visitor's funnel stage.
func (e *Engine) CurrentStage() Stage {
	return CurrentStage(e.state)
}

// CanAccess reports whether itemID may be rendered: counted items are always
// free, anything else only while no gate is active.
func (e *Engine) CanAccess(itemID string) bool {
	return e.state.HasViewed(strings.TrimSpace(itemID)) || e.ActiveGate() == GateNone
}

// PromptVisible reports whether the UI should show the active gate's prompt.
func (e *Engine) PromptVisible() bool {
	g := e.ActiveGate()
	if g == GateNone {
		return false
	}
	return e.cfg.IsBlocking(g) || e.state.DismissedGate != g
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() *SessionState {
	return e.state.Clone()
}

// IdentityKey is the key the current state is persisted under.
func (e *Engine) IdentityKey() string {
	if e.state.HasEmail {
		return EmailKey(e.state.UserEmail)
	}
	return AnonymousKey(e.deviceID)
}

// DeviceID returns the anonymous device identifier.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// Config returns the thresholds in effect.
func (e *Engine) Config() Config {
	return e.cfg
}

// Degraded reports whether persistence failed and the engine is memory-only.
func (e *Engine) Degraded() bool {
	return e.degraded
}

func (e *Engine) switchIdentity(ctx context.Context, email string) error {
	e.logger.Info("Switching email identity")
	if st := e.load(ctx, EmailKey(email)); st != nil && st.HasEmail && st.UserEmail == email {
		e.state = st
		return nil
	}
	e.state = e.freshEmailState(email)
	e.persist(ctx)
	return nil
}

// mergeInto folds the anonymous device's counted items into an existing email
// record. The email record keeps its after-email allowance, broker flag and
// start time; the total becomes the size of the union.
func mergeInto(record, anon *SessionState) *SessionState {
	before := len(record.ViewedDrillIDs)
	for id := range anon.ViewedDrillIDs {
		record.ViewedDrillIDs[id] = struct{}{}
	}
	record.DrillsViewed = len(record.ViewedDrillIDs)
	if record.DrillsViewed > before {
		record.DismissedGate = GateNone
	}
	return record
}

func (e *Engine) freshEmailState(email string) *SessionState {
	st := NewSessionState(e.now())
	st.HasEmail = true
	st.UserEmail = email
	return st
}

func (e *Engine) load(ctx context.Context, key string) *SessionState {
	if e.degraded {
		return nil
	}
	st, err := e.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrCorruptRecord):
		e.logger.Warn("Discarding corrupt gate record", "error", err.Error())
		return nil
	case err != nil:
		e.degrade("load", err)
		return nil
	}
	return st
}

func (e *Engine) persist(ctx context.Context) {
	if e.degraded {
		return
	}
	if err := e.store.Save(ctx, e.IdentityKey(), e.state); err != nil {
		e.degrade("save", err)
	}
}

func (e *Engine) clear(ctx context.Context, key string) {
	if e.degraded {
		return
	}
	if err := e.store.Clear(ctx, key); err != nil {
		e.degrade("clear", err)
	}
}

func (e *Engine) degrade(op string, err error) {
	e.degraded = true
	e.logger.Warn("Gate store unavailable, continuing in memory only", "op", op, "error", err.Error())
}
