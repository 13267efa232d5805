package gate

import (
	"context"
	"strings"
	"time"
)

const (
	anonymousKeyPrefix = "anon:"
	emailKeyPrefix     = "email:"
)

// Store persists one SessionState per identity key.
// Load returns (nil, nil) when no record exists and an error wrapping
// ErrCorruptRecord when the stored record cannot be used.
type Store interface {
	Load(ctx context.Context, identityKey string) (*SessionState, error)
	Save(ctx context.Context, identityKey string, state *SessionState) error
	Clear(ctx context.Context, identityKey string) error
}

// Purger is implemented by stores that can drop records idle for longer than a TTL.
type Purger interface {
	PurgeIdle(ctx context.Context, olderThan time.Duration) (int, error)
}

// ConfirmationVerifier checks a broker confirmation code issued for email.
type ConfirmationVerifier interface {
	VerifyConfirmation(code, email string) error
}

// AnonymousKey is the identity key for a device that has not submitted an email.
func AnonymousKey(deviceID string) string {
	return anonymousKeyPrefix + deviceID
}

// EmailKey is the identity key for a normalized email address.
func EmailKey(email string) string {
	return emailKeyPrefix + email
}

// IsEmailKey reports whether key belongs to an email identity.
func IsEmailKey(key string) bool {
	return strings.HasPrefix(key, emailKeyPrefix)
}
