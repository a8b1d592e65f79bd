// Package models defines the persisted entities of the custody service.
package models

import "time"

// LifecycleState is the persisted state of a vault. The escalation tiers
// (remind / warn / release) are derived from heartbeat age, never stored.
type LifecycleState string

const (
	// StateActive means the owner is presumed alive and the secret is held.
	StateActive LifecycleState = "active"
	// StateReleased is terminal. There is no reverse edge: once the secret
	// has been disclosed a vault can only be superseded by a new one.
	StateReleased LifecycleState = "released"
)

// Vault is the central record pairing a sealed custody secret with its
// release conditions.
type Vault struct {
	ID               string
	OwnerEmail       string
	BeneficiaryEmail string

	// SealedSecret holds the custody secret, sealed under a key derived
	// from the vault's heartbeat secret.
	SealedSecret string

	// SealedHeartbeatSecret holds the liveness-proof secret, sealed under
	// the server master key. Exactly one exists per vault.
	SealedHeartbeatSecret string

	// IntegrityCommitment binds {BeneficiaryEmail, SealedSecret, CreatedAt}
	// at creation time. Recomputed and compared on every security-relevant
	// read; a mismatch is rejected, never repaired.
	IntegrityCommitment string

	CreatedAt       time.Time
	LastHeartbeatAt time.Time
	State           LifecycleState

	// BillingActive gates sweep processing. Written by the external
	// billing collaborator, read-only to the core.
	BillingActive bool
}

// Released reports whether the vault has reached its terminal state.
func (v *Vault) Released() bool {
	return v.State == StateReleased
}

// EscalationAction is the outcome of evaluating a vault's heartbeat age.
type EscalationAction int

const (
	ActionNone EscalationAction = iota
	ActionRemind
	ActionWarn
	ActionRelease
)

func (a EscalationAction) String() string {
	switch a {
	case ActionRemind:
		return "remind"
	case ActionWarn:
		return "warn"
	case ActionRelease:
		return "release"
	default:
		return "none"
	}
}

// Disclosure is the result of a release: the custody secret ready for
// delivery to the beneficiary.
type Disclosure struct {
	VaultID          string
	OwnerEmail       string
	BeneficiaryEmail string
	Secret           string
	ReleasedAt       time.Time

	// Repeated is true when the vault was already released and this call
	// merely re-derived the disclosure. No notification is sent then.
	Repeated bool
}
