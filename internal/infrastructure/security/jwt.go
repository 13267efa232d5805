package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or shape checks.
var ErrInvalidToken = errors.New("invalid token")

// IdentityClaims is what an identity token proves: this device submitted this email.
type IdentityClaims struct {
	DeviceID string
	Email    string
	IssuedAt time.Time
	Expires  time.Time
}

// TokenIssuer signs and validates identity tokens (HS256). The email claim is
// AES-GCM sealed so the token does not expose it to page scripts.
type TokenIssuer struct {
	secret []byte
	aesKey []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. An empty secret is rejected.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("identity token secret is required")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		aesKey: DeriveKey(secret, "identity-email"),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a token for deviceID and email.
func (ti *TokenIssuer) Issue(deviceID, email string) (string, error) {
	sealed, err := Encrypt(email, ti.aesKey)
	if err != nil {
		return "", fmt.Errorf("seal email claim: %w", err)
	}

	now := ti.now().UTC()
	claims := jwt.MapClaims{
		"deviceId": deviceID,
		"email":    sealed,
		"iat":      now.Unix(),
		"exp":      now.Add(ti.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Validate verifies tokenString and returns its claims.
func (ti *TokenIssuer) Validate(tokenString string) (*IdentityClaims, error) {
	claims, err := validateHS256(tokenString, ti.secret, ti.now)
	if err != nil {
		return nil, err
	}

	deviceID, _ := claims["deviceId"].(string)
	sealed, _ := claims["email"].(string)
	if deviceID == "" || sealed == "" {
		return nil, ErrInvalidToken
	}
	email, err := Decrypt(sealed, ti.aesKey)
	if err != nil {
		return nil, ErrInvalidToken
	}

	out := &IdentityClaims{DeviceID: deviceID, Email: email}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.Expires = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}

// validateHS256 parses a token, rejecting any non-HMAC signing method.
func validateHS256(tokenString string, secret []byte, now func() time.Time) (jwt.MapClaims, error) {
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(now().Unix(), true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns how long issued tokens stay valid.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}
