// Package integrity builds and verifies the tamper-evidence commitment
// binding a vault's immutable-at-creation fields.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pyoneerc/deadhand/internal/server/models"
)

// commitTimeLayout renders the creation timestamp timezone-naive ISO-8601.
// The instant is first normalized to UTC so the digest does not depend on
// the server's local zone.
const commitTimeLayout = "2006-01-02T15:04:05.999999999"

const separator = "|"

// Commit computes the hex SHA-256 digest over the canonical concatenation
// of the three fields fixed at vault creation.
func Commit(beneficiary, sealedSecret string, createdAt time.Time) string {
	canonical := beneficiary + separator + sealedSecret + separator + createdAt.UTC().Format(commitTimeLayout)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the commitment over the record's current fields and
// compares it to the stored value. False means the record was corrupted or
// tampered with outside the protocol.
func Verify(v *models.Vault) bool {
	return Commit(v.BeneficiaryEmail, v.SealedSecret, v.CreatedAt) == v.IntegrityCommitment
}
