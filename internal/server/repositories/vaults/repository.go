// Package vaults provides PostgreSQL-backed persistence for vault records.
package vaults

import (
	"context"
	"time"

	"github.com/pyoneerc/deadhand/internal/server/models"
)

// Repository is the persistence surface the state machine depends on.
type Repository interface {
	Create(ctx context.Context, v *models.Vault) (*models.Vault, error)

	// GetByID is a plain read; GetForUpdate additionally takes a row lock
	// and must be called inside a transaction. Renew, beneficiary change
	// and release all go through GetForUpdate so the read-modify-write of
	// lifecycle state is serialized per vault.
	GetByID(ctx context.Context, id string) (*models.Vault, error)
	GetForUpdate(ctx context.Context, id string) (*models.Vault, error)

	GetActiveByOwner(ctx context.Context, ownerEmail string) (*models.Vault, error)

	// ListForSweep returns all vaults that are active and billing-current.
	ListForSweep(ctx context.Context) ([]*models.Vault, error)

	UpdateHeartbeat(ctx context.Context, id string, at time.Time) error
	UpdateBeneficiary(ctx context.Context, id, beneficiaryEmail, commitment string) error
	MarkReleased(ctx context.Context, id string) error
}
