// Package services provides application-level orchestration services
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/email"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/security"
)

// Publisher receives status events after every mutation.
type Publisher interface {
	Publish(identityKey string, event messaging.Event) int
	Rekey(from, to string)
}

// Visitor is what a request tells us about who is asking.
type Visitor struct {
	DeviceID string
	Token    string
}

// GateStatus is the client-facing snapshot of one visitor's gate state.
type GateStatus struct {
	DeviceID               string `json:"deviceId"`
	Identity               string `json:"identity"`
	ActiveGate             string `json:"activeGate"`
	Stage                  string `json:"stage"`
	RemainingViews         int    `json:"remainingViews"`
	Unlimited              bool   `json:"unlimited"`
	DrillsViewed           int    `json:"drillsViewed"`
	DrillsViewedAfterEmail int    `json:"drillsViewedAfterEmail"`
	HasEmail               bool   `json:"hasEmail"`
	HasBrokerAccount       bool   `json:"hasBrokerAccount"`
	PromptVisible          bool   `json:"promptVisible"`
	Degraded               bool   `json:"degraded"`
	CanAccess              *bool  `json:"canAccess,omitempty"`
	Token                  string `json:"token,omitempty"`
	TokenRevoked           bool   `json:"tokenRevoked,omitempty"`

	identityKey string
}

// IdentityKey is the store key the status was computed for.
func (s *GateStatus) IdentityKey() string { return s.identityKey }

// GateServiceOptions wires the optional collaborators.
type GateServiceOptions struct {
	Verifier gate.ConfirmationVerifier
	Tokens   *security.TokenIssuer
	Hub      Publisher
	Mailer   email.Service

	// Fallback holds visitor state while the primary store is failing.
	// Defaults to a process-local memory store.
	Fallback gate.Store
	// StoreRetry is how long the primary store is skipped after a failure.
	StoreRetry time.Duration
}

// GateService runs gate operations for HTTP and CLI callers. Each call opens
// a fresh engine under a per-identity lock, applies one operation and
// publishes the resulting status.
type GateService struct {
	store    gate.Store
	cfg      gate.Config
	verifier gate.ConfirmationVerifier
	tokens   *security.TokenIssuer
	hub      Publisher
	mailer   email.Service
	fallback gate.Store
	outage   *storeOutage
	revoked  *tokenRevocations
	locks    *identityLocks
	logger   *logging.ChanneledLogger
	tracker  *performance.Tracker
	mailWG   sync.WaitGroup
}

// NewGateService creates a new gate service
func NewGateService(store gate.Store, cfg gate.Config, opts GateServiceOptions, logger *logging.ChanneledLogger, tracker *performance.Tracker) *GateService {
	fallback := opts.Fallback
	if fallback == nil {
		fallback = stores.NewGateStatesStore(nil)
	}
	var tokenTTL time.Duration
	if opts.Tokens != nil {
		tokenTTL = opts.Tokens.TTL()
	}
	return &GateService{
		store:    store,
		cfg:      cfg,
		verifier: opts.Verifier,
		tokens:   opts.Tokens,
		hub:      opts.Hub,
		mailer:   opts.Mailer,
		fallback: fallback,
		outage:   newStoreOutage(opts.StoreRetry),
		revoked:  newTokenRevocations(tokenTTL),
		locks:    newIdentityLocks(),
		logger:   logger,
		tracker:  tracker,
	}
}

// Config returns the thresholds in effect.
func (s *GateService) Config() gate.Config { return s.cfg }

// identity is a resolved visitor.
type identity struct {
	deviceID string
	email    string
}

func (id identity) key() string {
	if id.email != "" {
		return gate.EmailKey(id.email)
	}
	return gate.AnonymousKey(id.deviceID)
}

// ResolveIdentity returns the device id and, when the token is valid, the
// email for v. Invalid device ids are replaced with a fresh ULID; invalid,
// expired or reset-revoked tokens are ignored.
func (s *GateService) ResolveIdentity(v Visitor) (deviceID, email string) {
	id := s.resolve(v)
	return id.deviceID, id.email
}

// IdentityKeyFor returns the store key a visitor's requests operate on.
func (s *GateService) IdentityKeyFor(v Visitor) string {
	return s.resolve(v).key()
}

func (s *GateService) resolve(v Visitor) identity {
	var id identity
	deviceID := strings.TrimSpace(v.DeviceID)
	if security.IsULID(deviceID) {
		id.deviceID = deviceID
	}

	if v.Token != "" && s.tokens != nil {
		claims, err := s.tokens.Validate(v.Token)
		switch {
		case err != nil:
			s.logger.LogAuthOperation("validate_identity_token", id.deviceID, false)
		case s.revoked.revoked(claims.Email, claims.IssuedAt):
			s.logger.LogAuthOperation("identity_token_revoked", gate.EmailKey(claims.Email), false)
		default:
			id.email = claims.Email
		}
		if err == nil && id.deviceID == "" && security.IsULID(claims.DeviceID) {
			id.deviceID = claims.DeviceID
		}
	}

	if id.deviceID == "" {
		id.deviceID = security.GenerateULID()
	}
	return id
}

// Status returns the visitor's current status. When itemID is set the result
// also reports whether that item may be rendered.
func (s *GateService) Status(ctx context.Context, v Visitor, itemID string) (*GateStatus, error) {
	id := s.resolve(v)
	marker := s.tracker.StartOperation("gate:status", logging.MaskIdentity(id.key()))
	defer marker.Complete()

	unlock := s.locks.Lock(id.key())
	defer unlock()

	e, err := s.open(ctx, id)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	status := buildStatus(e)
	if strings.TrimSpace(itemID) != "" {
		can := e.CanAccess(itemID)
		status.CanAccess = &can
	}
	return status, nil
}

// RecordView counts itemID for the visitor.
func (s *GateService) RecordView(ctx context.Context, v Visitor, itemID string) (*GateStatus, error) {
	return s.mutate(ctx, v, "record_view", func(e *gate.Engine) error {
		_, err := e.RecordView(ctx, itemID)
		return err
	})
}

// Dismiss closes the visitor's non-blocking gate prompt.
func (s *GateService) Dismiss(ctx context.Context, v Visitor) (*GateStatus, error) {
	return s.mutate(ctx, v, "dismiss_gate", func(e *gate.Engine) error {
		return e.DismissGate(ctx)
	})
}

// VerifyBroker records broker verification. When a verifier is configured a
// confirmation code is required.
func (s *GateService) VerifyBroker(ctx context.Context, v Visitor, code string) (*GateStatus, error) {
	status, err := s.mutate(ctx, v, "verify_broker", func(e *gate.Engine) error {
		if s.verifier != nil {
			return e.VerifyBrokerWithCode(ctx, code)
		}
		return e.VerifyBroker(ctx)
	})
	if s.verifier != nil {
		subject := ""
		if status != nil {
			subject = status.identityKey
		}
		s.logger.LogAuthOperation("verify_broker_code", subject, err == nil)
	}
	return status, err
}

// SubmitEmail records the visitor's email and returns a status carrying a
// fresh identity token.
func (s *GateService) SubmitEmail(ctx context.Context, v Visitor, rawEmail string) (*GateStatus, error) {
	normalized, err := gate.NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if s.tokens == nil {
		return nil, errors.New("identity tokens are not configured")
	}

	id := s.resolve(v)
	newKey := gate.EmailKey(normalized)
	marker := s.tracker.StartOperation("gate:submit_email", logging.MaskIdentity(id.key()))
	defer marker.Complete()

	unlock := s.locks.Lock(id.key(), newKey, gate.AnonymousKey(id.deviceID))
	defer unlock()

	e, err := s.open(ctx, id, newKey)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	oldKey := e.IdentityKey()
	before := e.ActiveGate()
	firstEmail := !e.Snapshot().HasEmail

	if err := e.SubmitEmail(ctx, normalized); err != nil {
		marker.SetError(err)
		return nil, err
	}
	s.settle(ctx, e, oldKey)
	s.revoked.allow(normalized)

	token, err := s.tokens.Issue(e.DeviceID(), normalized)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	status := buildStatus(e)
	s.logger.LogGateTransition(status.identityKey, "submit_email", string(before), status.ActiveGate, status.DrillsViewed)
	if s.hub != nil {
		s.hub.Rekey(oldKey, status.identityKey)
	}
	s.publish(status)

	if firstEmail {
		s.sendWelcome(normalized)
	}

	status.Token = token
	return status, nil
}

// Reset forgets the visitor and returns the fresh anonymous status. Clients
// must drop their identity token.
func (s *GateService) Reset(ctx context.Context, v Visitor) (*GateStatus, error) {
	id := s.resolve(v)
	marker := s.tracker.StartOperation("gate:reset", logging.MaskIdentity(id.key()))
	defer marker.Complete()

	unlock := s.locks.Lock(id.key(), gate.AnonymousKey(id.deviceID))
	defer unlock()

	e, err := s.open(ctx, id)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	oldKey := e.IdentityKey()
	snap := e.Snapshot()
	e.Reset(ctx)
	s.settle(ctx, e, oldKey)
	if snap.HasEmail {
		s.revoked.revoke(snap.UserEmail)
	}

	status := buildStatus(e)
	status.TokenRevoked = snap.HasEmail
	// Tabs still subscribed under the old key learn about the reset first.
	notice := *status
	notice.identityKey = oldKey
	s.publish(&notice)
	if s.hub != nil {
		s.hub.Rekey(oldKey, status.identityKey)
	}
	s.logger.Gate().Info("Visitor reset", "identity", logging.MaskIdentity(oldKey))
	return status, nil
}

// Inspect loads the stored record for an identity key without locking it.
// Operators use it from the CLI.
func (s *GateService) Inspect(ctx context.Context, identityKey string) (*gate.SessionState, error) {
	return s.store.Load(ctx, identityKey)
}

// Forget deletes the stored record for an identity key.
func (s *GateService) Forget(ctx context.Context, identityKey string) error {
	unlock := s.locks.Lock(identityKey)
	defer unlock()
	return s.store.Clear(ctx, identityKey)
}

// Close waits for pending welcome emails.
func (s *GateService) Close() {
	s.mailWG.Wait()
}

func (s *GateService) mutate(ctx context.Context, v Visitor, op string, apply func(*gate.Engine) error) (*GateStatus, error) {
	id := s.resolve(v)
	marker := s.tracker.StartOperation("gate:"+op, logging.MaskIdentity(id.key()))
	defer marker.Complete()

	unlock := s.locks.Lock(id.key())
	defer unlock()

	e, err := s.open(ctx, id)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	before := e.ActiveGate()
	if err := apply(e.Engine); err != nil {
		marker.SetError(err)
		return nil, err
	}
	s.settle(ctx, e)

	status := buildStatus(e)
	s.logger.LogGateTransition(status.identityKey, op, string(before), status.ActiveGate, status.DrillsViewed)
	if status.Degraded {
		s.logger.Gate().Warn("Gate operation ran without persistence", "operation", op)
	}
	s.publish(status)
	return status, nil
}

func (s *GateService) publish(status *GateStatus) {
	if s.hub == nil {
		return
	}
	event := *status
	event.Token = ""
	event.CanAccess = nil
	s.hub.Publish(status.identityKey, messaging.Event{Type: "status", Status: &event})
}

func (s *GateService) sendWelcome(to string) {
	if s.mailer == nil {
		return
	}
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		if err := s.mailer.SendWelcomeEmail(to, s.cfg.BrokerGateThreshold); err != nil {
			s.logger.LogError(logging.ChannelSystem, "send_welcome_email", err, gate.EmailKey(to))
			return
		}
		s.logger.System().Info("Welcome email sent", "identity", logging.MaskIdentity(gate.EmailKey(to)))
	}()
}

func buildStatus(e *gateSession) *GateStatus {
	st := e.Snapshot()
	remaining := e.RemainingViews()
	identity := "anonymous"
	if st.HasEmail {
		identity = "email"
	}
	return &GateStatus{
		DeviceID:               e.DeviceID(),
		Identity:               identity,
		ActiveGate:             string(e.ActiveGate()),
		Stage:                  string(e.CurrentStage()),
		RemainingViews:         remaining,
		Unlimited:              remaining == gate.Unlimited,
		DrillsViewed:           st.DrillsViewed,
		DrillsViewedAfterEmail: st.DrillsViewedAfterEmail,
		HasEmail:               st.HasEmail,
		HasBrokerAccount:       st.HasBrokerAccount,
		PromptVisible:          e.PromptVisible(),
		Degraded:               e.degraded(),
		identityKey:            e.IdentityKey(),
	}
}
