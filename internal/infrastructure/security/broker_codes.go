package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const brokerPurpose = "broker_verified"

// GenerateBrokerCode signs a confirmation code proving email opened a broker
// account. Partner callbacks and the CLI mint these.
func GenerateBrokerCode(secret, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("broker code secret is required")
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":     strings.ToLower(strings.TrimSpace(email)),
		"purpose": brokerPurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BrokerCodeVerifier checks confirmation codes against the visitor's email.
type BrokerCodeVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewBrokerCodeVerifier returns nil when secret is empty, which disables
// coded verification.
func NewBrokerCodeVerifier(secret string) *BrokerCodeVerifier {
	if secret == "" {
		return nil
	}
	return &BrokerCodeVerifier{secret: []byte(secret), now: time.Now}
}

// VerifyConfirmation implements gate.ConfirmationVerifier.
func (v *BrokerCodeVerifier) VerifyConfirmation(code, email string) error {
	claims, err := validateHS256(code, v.secret, v.now)
	if err != nil {
		return errors.New("confirmation code is invalid or expired")
	}
	if purpose, _ := claims["purpose"].(string); purpose != brokerPurpose {
		return errors.New("confirmation code has the wrong purpose")
	}
	if sub, _ := claims["sub"].(string); sub != email {
		return errors.New("confirmation code was issued for a different email")
	}
	return nil
}
