// Package auth implements the capability-token schemes used to prove
// control of an identity or a vault without a password.
//
// Two kinds exist: a session capability ("identity:hexsig", HMAC-SHA256
// over the identity) and the vault heartbeat capability (the decrypted
// heartbeat secret itself). Both are bearer credentials and both are
// verified with constant-time comparison only.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/pyoneerc/deadhand/internal/common"
)

// SignIdentity mints a session capability for identity in the
// "identity:hexsig" wire format.
func SignIdentity(identity string, secretKey []byte) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(identity))
	return identity + ":" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyIdentity checks a session capability and returns the proven
// identity. Every failure mode collapses into the opaque
// common.ErrorAuthFailed; callers must not learn which part was wrong.
func VerifyIdentity(token string, secretKey []byte) (string, error) {
	idx := strings.LastIndex(token, ":")
	if idx <= 0 {
		return "", common.ErrorAuthFailed
	}
	identity, sig := token[:idx], token[idx+1:]

	presented, err := hex.DecodeString(sig)
	if err != nil {
		return "", common.ErrorAuthFailed
	}

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(identity))
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, presented) != 1 {
		return "", common.ErrorAuthFailed
	}
	return identity, nil
}

// CheckSecret compares a stored secret against a presented candidate in
// constant time.
func CheckSecret(stored, presented []byte) bool {
	return subtle.ConstantTimeCompare(stored, presented) == 1
}
