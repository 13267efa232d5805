package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// IdentityDigest returns the hex blake2b-256 digest of an identity key, used
// where the raw key (which may contain an email) must not appear.
func IdentityDigest(identityKey string) string {
	sum := blake2b.Sum256([]byte(identityKey))
	return hex.EncodeToString(sum[:])
}

// DeriveKey stretches an arbitrary secret to a 32-byte AES key bound to a
// purpose label.
func DeriveKey(secret, purpose string) []byte {
	h, _ := blake2b.New256([]byte(secret))
	h.Write([]byte(purpose))
	return h.Sum(nil)
}
