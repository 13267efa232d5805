package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

const defaultStoreRetry = 30 * time.Second

// storeOutage remembers when the primary store last failed. While it is
// active, requests run against the in-process fallback store.
type storeOutage struct {
	mu        sync.Mutex
	retry     time.Duration
	now       func() time.Time
	downUntil time.Time
}

func newStoreOutage(retry time.Duration) *storeOutage {
	if retry <= 0 {
		retry = defaultStoreRetry
	}
	return &storeOutage{retry: retry, now: time.Now}
}

// active reports whether the primary store should be skipped.
func (o *storeOutage) active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now().Before(o.downUntil)
}

// trip marks the primary store as failing for one retry interval. It returns
// true when the outage was not already active.
func (o *storeOutage) trip() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	wasActive := now.Before(o.downUntil)
	o.downUntil = now.Add(o.retry)
	return !wasActive
}

// gateSession is an engine together with the store its state lives in.
type gateSession struct {
	*gate.Engine
	onFallback bool
}

// degraded is true whenever the visitor's state is not in the primary store.
func (gs *gateSession) degraded() bool {
	return gs.onFallback || gs.Degraded()
}

func (s *GateService) openOn(ctx context.Context, store gate.Store, id identity) (*gate.Engine, error) {
	opts := []gate.Option{gate.WithLogger(s.logger.WithIdentity(logging.ChannelGate, id.key()))}
	if s.verifier != nil {
		opts = append(opts, gate.WithVerifier(s.verifier))
	}
	return gate.Open(ctx, store, s.cfg, id.deviceID, id.email, opts...)
}

// open loads the visitor from the primary store, or from the fallback while
// the primary is failing. related names other keys the operation may read;
// their fallback copies are written back first once the primary recovers.
func (s *GateService) open(ctx context.Context, id identity, related ...string) (*gateSession, error) {
	if !s.outage.active() {
		s.restore(ctx, append([]string{id.key()}, related...)...)
	}
	if !s.outage.active() {
		e, err := s.openOn(ctx, s.store, id)
		if err != nil {
			return nil, err
		}
		if !e.Degraded() {
			return &gateSession{Engine: e}, nil
		}
		s.tripOutage("load")
	}

	e, err := s.openOn(ctx, s.fallback, id)
	if err != nil {
		return nil, err
	}
	return &gateSession{Engine: e, onFallback: true}, nil
}

// settle copies the state of an engine whose primary writes failed into the
// fallback, so the next request continues from it. stale keys are dropped
// from the fallback.
func (s *GateService) settle(ctx context.Context, gs *gateSession, stale ...string) {
	if gs.onFallback || !gs.Degraded() {
		return
	}
	s.tripOutage("save")

	key := gs.IdentityKey()
	if err := s.fallback.Save(ctx, key, gs.Snapshot()); err != nil {
		s.logger.LogError(logging.ChannelGate, "fallback_save", err, key)
	}
	for _, k := range stale {
		if k != key {
			_ = s.fallback.Clear(ctx, k)
		}
	}
}

// restore moves fallback records for keys back into the primary store.
func (s *GateService) restore(ctx context.Context, keys ...string) {
	for _, key := range keys {
		st, err := s.fallback.Load(ctx, key)
		if err != nil || st == nil {
			continue
		}
		if err := s.store.Save(ctx, key, st); err != nil {
			s.tripOutage("restore")
			return
		}
		_ = s.fallback.Clear(ctx, key)
		s.logger.Gate().Info("Restored gate record from fallback", "identity", logging.MaskIdentity(key))
	}
}

func (s *GateService) tripOutage(op string) {
	if s.outage.trip() {
		s.logger.Gate().Warn("Gate store failing, serving from process memory",
			"operation", op, "retryAfter", s.outage.retry)
	}
}
