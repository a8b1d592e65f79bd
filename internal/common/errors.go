// Package common defines shared constants and sentinel errors used across
// the custody service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Generic/internal flow control.
	ErrorInternal = errors.New("internal error")

	// Auth errors. ErrorAuthFailed is deliberately opaque: wrong vault id,
	// wrong secret and missing vault are indistinguishable to the caller.
	ErrorAuthFailed = errors.New("invalid credential")

	// Vault lifecycle errors.
	ErrorAlreadyExists   = errors.New("already exists")
	ErrorAlreadyReleased = errors.New("already released")

	// ErrorIntegrityMismatch is fatal for the affected vault: the record
	// was modified outside the protocol and must never be disclosed.
	ErrorIntegrityMismatch = errors.New("integrity mismatch")

	// ErrorNotDue means a release was requested for a vault whose current
	// heartbeat no longer warrants it, typically because a renew committed
	// after the caller made its decision.
	ErrorNotDue = errors.New("release not due")

	// ErrorNotify marks best-effort notification failures.
	ErrorNotify = errors.New("notification failed")
)
