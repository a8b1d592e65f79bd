// Package cryptox implements the two-layer envelope crypto protecting a
// vault: the custody secret is sealed under a key derived from the vault's
// heartbeat secret, and the heartbeat secret itself is sealed under the
// server master key. Sealed values are transport-safe base64 strings
// embedding a fresh 96-bit nonce and the GCM authentication tag.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pyoneerc/deadhand/internal/common"
	"golang.org/x/crypto/argon2"
)

const nonceSize = 12

// DeriveKey derives a 256-bit AES key from an input secret. The derivation
// is deterministic and one-way; the same secret always yields the same key.
func DeriveKey(secret []byte) []byte {
	hash := sha256.Sum256(secret)
	return hash[:]
}

// DeriveMasterKey stretches the configured master passphrase into the
// 32-byte server master key. The salt is environment-scoped configuration,
// not per-record data, so the result is stable across restarts.
func DeriveMasterKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-256-GCM under key and returns
// base64(nonce || ciphertext || tag). A fresh random nonce is generated
// for every call.
func Seal(plaintext []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := common.GenerateRandByteArray(nonceSize)

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// Open decrypts a value produced by Seal, verifying the authentication tag
// before returning plaintext. It fails closed: malformed encoding,
// truncated input and tag mismatch all surface as the single opaque
// common.ErrorAuthFailed so callers cannot be used as a decryption oracle.
func Open(sealed string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, common.ErrorAuthFailed
	}
	if len(data) < nonceSize {
		return nil, common.ErrorAuthFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.ErrorAuthFailed
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, common.ErrorAuthFailed
	}

	plaintext, err := aesgcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, common.ErrorAuthFailed
	}

	return plaintext, nil
}

// OpenOrLegacy decrypts stored with Open and, if that fails, treats the
// stored value as a legacy cleartext record written before envelope
// encryption was introduced. The decision is made once at read time and
// reported through the legacy flag.
//
// This is the only place a cleartext fallback is tolerated; new records
// are always sealed.
func OpenOrLegacy(stored string, key []byte) (value []byte, legacy bool) {
	plaintext, err := Open(stored, key)
	if err != nil {
		return []byte(stored), true
	}
	return plaintext, false
}
