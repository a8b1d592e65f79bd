package integrity

import (
	"testing"
	"time"

	"github.com/pyoneerc/deadhand/internal/server/models"
)

var t0 = time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

func TestCommit_Deterministic(t *testing.T) {
	c1 := Commit("ben@example.com", "sealed", t0)
	c2 := Commit("ben@example.com", "sealed", t0)
	if c1 != c2 {
		t.Errorf("commitment must be deterministic")
	}
	if len(c1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(c1))
	}
}

func TestCommit_SensitiveToEachInput(t *testing.T) {
	base := Commit("ben@example.com", "sealed", t0)

	tests := []struct {
		name string
		got  string
	}{
		{"beneficiary", Commit("eve@example.com", "sealed", t0)},
		{"sealed secret", Commit("ben@example.com", "sealed2", t0)},
		{"created at", Commit("ben@example.com", "sealed", t0.Add(time.Nanosecond))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got == base {
				t.Errorf("changing %s must change the commitment", tc.name)
			}
		})
	}
}

func TestCommit_TimezoneNaive(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	same := t0.In(loc)

	if Commit("ben@example.com", "sealed", t0) != Commit("ben@example.com", "sealed", same) {
		t.Errorf("the same instant in a different zone must produce the same commitment")
	}
}

func TestVerify(t *testing.T) {
	v := &models.Vault{
		BeneficiaryEmail: "ben@example.com",
		SealedSecret:     "sealed",
		CreatedAt:        t0,
	}
	v.IntegrityCommitment = Commit(v.BeneficiaryEmail, v.SealedSecret, v.CreatedAt)

	if !Verify(v) {
		t.Fatalf("verify must succeed on an untouched record")
	}

	// out-of-band tamper, bypassing the beneficiary-change operation
	v.BeneficiaryEmail = "eve@example.com"
	if Verify(v) {
		t.Fatalf("verify must fail after out-of-band mutation")
	}
}
