package services

import (
	"strings"
	"sync"
	"time"
)

// tokenRevocations remembers when an email identity was reset. Tokens issued
// at or before that moment no longer resolve to the email. Entries expire with
// the token lifetime and are local to this process.
type tokenRevocations struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	resetAt map[string]time.Time
}

func newTokenRevocations(ttl time.Duration) *tokenRevocations {
	return &tokenRevocations{ttl: ttl, now: time.Now, resetAt: make(map[string]time.Time)}
}

func (r *tokenRevocations) revoke(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.resetAt[strings.ToLower(email)] = r.now()
}

// allow lifts a revocation once the email is submitted again.
func (r *tokenRevocations) allow(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resetAt, strings.ToLower(email))
}

func (r *tokenRevocations) revoked(email string, issuedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.resetAt[strings.ToLower(email)]
	if !ok {
		return false
	}
	if r.ttl > 0 && r.now().Sub(at) > r.ttl {
		delete(r.resetAt, strings.ToLower(email))
		return false
	}
	return !issuedAt.After(at)
}

func (r *tokenRevocations) prune() {
	if r.ttl <= 0 {
		return
	}
	now := r.now()
	for email, at := range r.resetAt {
		if now.Sub(at) > r.ttl {
			delete(r.resetAt, email)
		}
	}
}
