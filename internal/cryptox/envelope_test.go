package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/pyoneerc/deadhand/internal/common"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey([]byte("heartbeat-token"))
	k2 := DeriveKey([]byte("heartbeat-token"))

	if !bytes.Equal(k1, k2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(k1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(k1))
	}

	// snapshot: sha256("heartbeat-token")
	expectedHex := "6c26cecf49ee670b09516ff4a57a5bd9b507636416646b523db40ba2b81d7d61"
	if hex.EncodeToString(k1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(k1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	k1 := DeriveKey([]byte("secret-1"))
	k2 := DeriveKey([]byte("secret-2"))

	if bytes.Equal(k1, k2) {
		t.Errorf("expected different keys for different secrets")
	}
}

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	k1 := DeriveMasterKey([]byte("passphrase"), []byte("env-salt"))
	k2 := DeriveMasterKey([]byte("passphrase"), []byte("env-salt"))

	if !bytes.Equal(k1, k2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(k1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(k1))
	}

	k3 := DeriveMasterKey([]byte("passphrase"), []byte("other-salt"))
	if bytes.Equal(k1, k3) {
		t.Errorf("expected different keys for different salts")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("some-secret"))

	sealed, err := Seal([]byte("shard-value"), key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}

	// transport safety: must decode as standard base64
	if _, err := base64.StdEncoding.DecodeString(sealed); err != nil {
		t.Fatalf("sealed value is not valid base64: %v", err)
	}

	plaintext, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if string(plaintext) != "shard-value" {
		t.Errorf("round trip mismatch: %q", plaintext)
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	key := DeriveKey([]byte("some-secret"))

	s1, err := Seal([]byte("x"), key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}
	s2, err := Seal([]byte("x"), key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}
	if s1 == s2 {
		t.Errorf("two seals of the same plaintext must differ (fresh nonce)")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, err := Seal([]byte("shard-value"), DeriveKey([]byte("key-one")))
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}

	_, err = Open(sealed, DeriveKey([]byte("key-two")))
	if !errors.Is(err, common.ErrorAuthFailed) {
		t.Errorf("want ErrorAuthFailed, got %v", err)
	}
}

func TestOpen_FailsClosed(t *testing.T) {
	key := DeriveKey([]byte("k"))

	tests := []struct {
		name   string
		sealed string
	}{
		{"not base64", "%%% not base64 %%%"},
		{"truncated", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.sealed, key)
			if !errors.Is(err, common.ErrorAuthFailed) {
				t.Errorf("want opaque ErrorAuthFailed, got %v", err)
			}
		})
	}
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	key := DeriveKey([]byte("k"))
	sealed, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Open(tampered, key)
	if !errors.Is(err, common.ErrorAuthFailed) {
		t.Errorf("want ErrorAuthFailed for tampered tag, got %v", err)
	}
}

func TestOpenOrLegacy(t *testing.T) {
	key := DeriveKey([]byte("master"))

	sealed, err := Seal([]byte("token-123"), key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}

	v, legacy := OpenOrLegacy(sealed, key)
	if legacy {
		t.Errorf("sealed value must not be treated as legacy")
	}
	if string(v) != "token-123" {
		t.Errorf("unexpected plaintext: %q", v)
	}

	v, legacy = OpenOrLegacy("plain-old-token", key)
	if !legacy {
		t.Errorf("unsealed value must be reported as legacy")
	}
	if string(v) != "plain-old-token" {
		t.Errorf("legacy value must be returned verbatim, got %q", v)
	}
}
