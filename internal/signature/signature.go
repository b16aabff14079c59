// Package signature verifies the device signature carried on every
// check-in. The scheme is HMAC-SHA256 over the device identifier, keyed
// by a versioned salt so salts can rotate without invalidating
// already-deployed clients.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrUnknownSaltVersion means the client claimed a salt version the
	// server doesn't have configured. Treated as a verification failure,
	// not a distinct error kind.
	ErrUnknownSaltVersion = errors.New("signature: unknown salt version")
	// ErrMismatch means the signature did not verify against the salt.
	ErrMismatch = errors.New("signature: mismatch")
)

// Sign computes the hex-encoded HMAC-SHA256 of deviceID keyed by salt. It
// is exported primarily so tests and client simulators can construct valid
// signatures without duplicating the scheme.
func Sign(deviceID, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(deviceID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against the HMAC of deviceID keyed by the salt
// registered under version. Comparison is constant-time via hmac.Equal.
func Verify(deviceID string, version int, sig string, salts map[int]string) error {
	salt, ok := salts[version]
	if !ok {
		return ErrUnknownSaltVersion
	}

	expected, err := hex.DecodeString(Sign(deviceID, salt))
	if err != nil {
		return ErrMismatch
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrMismatch
	}
	if !hmac.Equal(expected, got) {
		return ErrMismatch
	}
	return nil
}
