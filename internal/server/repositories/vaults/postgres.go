package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"time"

	"github.com/pyoneerc/deadhand/internal/common"
	"github.com/pyoneerc/deadhand/internal/dbx"
	"github.com/pyoneerc/deadhand/internal/server/models"
)

// PostgresRepository implements vault storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const vaultColumns = `id, owner_email, beneficiary_email, sealed_secret, sealed_heartbeat_secret,
		integrity_commitment, created_at, last_heartbeat_at, state, billing_active`

func scanVault(row interface{ Scan(dest ...any) error }) (*models.Vault, error) {
	v := &models.Vault{}
	err := row.Scan(
		&v.ID, &v.OwnerEmail, &v.BeneficiaryEmail, &v.SealedSecret, &v.SealedHeartbeatSecret,
		&v.IntegrityCommitment, &v.CreatedAt, &v.LastHeartbeatAt, &v.State, &v.BillingActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// Create inserts a new vault row and returns the stored record.
func (r *PostgresRepository) Create(ctx context.Context, v *models.Vault) (*models.Vault, error) {
	query := `
		INSERT INTO vaults (id, owner_email, beneficiary_email, sealed_secret, sealed_heartbeat_secret,
			integrity_commitment, created_at, last_heartbeat_at, state, billing_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.OwnerEmail, v.BeneficiaryEmail, v.SealedSecret, v.SealedHeartbeatSecret,
		v.IntegrityCommitment, v.CreatedAt, v.LastHeartbeatAt, v.State, v.BillingActive,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE id = $1`
	return scanVault(r.db.QueryRowContext(ctx, query, id))
}

// GetForUpdate reads a vault under a row lock. Must run inside a
// transaction; on its own connection FOR UPDATE is a no-op.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE id = $1 FOR UPDATE`
	return scanVault(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetActiveByOwner(ctx context.Context, ownerEmail string) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE owner_email = $1 AND state = 'active'`
	return scanVault(r.db.QueryRowContext(ctx, query, ownerEmail))
}

// ListForSweep returns every vault the daily sweep must visit.
func (r *PostgresRepository) ListForSweep(ctx context.Context) ([]*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE state = 'active' AND billing_active`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateHeartbeat advances last_heartbeat_at. The WHERE clause keeps the
// column forward-only and refuses released rows even if the caller raced.
func (r *PostgresRepository) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE vaults SET last_heartbeat_at = $2
		WHERE id = $1 AND state = 'active' AND last_heartbeat_at <= $2
	`
	return r.execExpectingOneRow(ctx, query, id, at)
}

// UpdateBeneficiary rewrites the beneficiary together with the recomputed
// commitment so the record never exists with a stale commitment.
func (r *PostgresRepository) UpdateBeneficiary(ctx context.Context, id, beneficiaryEmail, commitment string) error {
	query := `
		UPDATE vaults SET beneficiary_email = $2, integrity_commitment = $3
		WHERE id = $1 AND state = 'active'
	`
	return r.execExpectingOneRow(ctx, query, id, beneficiaryEmail, commitment)
}

// MarkReleased performs the one-way Active -> Released transition.
func (r *PostgresRepository) MarkReleased(ctx context.Context, id string) error {
	query := `UPDATE vaults SET state = 'released' WHERE id = $1 AND state = 'active'`
	return r.execExpectingOneRow(ctx, query, id)
}

func (r *PostgresRepository) execExpectingOneRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
