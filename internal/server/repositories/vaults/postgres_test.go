package vaults

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pyoneerc/deadhand/internal/common"
	"github.com/pyoneerc/deadhand/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func vaultRows(v *models.Vault) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_email", "beneficiary_email", "sealed_secret", "sealed_heartbeat_secret",
		"integrity_commitment", "created_at", "last_heartbeat_at", "state", "billing_active",
	}).AddRow(
		v.ID, v.OwnerEmail, v.BeneficiaryEmail, v.SealedSecret, v.SealedHeartbeatSecret,
		v.IntegrityCommitment, v.CreatedAt, v.LastHeartbeatAt, string(v.State), v.BillingActive,
	)
}

func sampleVault() *models.Vault {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.Vault{
		ID:                    "9e4f8c1a-0000-0000-0000-000000000001",
		OwnerEmail:            "owner@example.com",
		BeneficiaryEmail:      "ben@example.com",
		SealedSecret:          "c2VhbGVk",
		SealedHeartbeatSecret: "aGI=",
		IntegrityCommitment:   "deadbeef",
		CreatedAt:             now,
		LastHeartbeatAt:       now,
		State:                 models.StateActive,
		BillingActive:         true,
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVault()

	mock.ExpectExec(`INSERT INTO vaults`).
		WithArgs(
			v.ID, v.OwnerEmail, v.BeneficiaryEmail, v.SealedSecret, v.SealedHeartbeatSecret,
			v.IntegrityCommitment, v.CreatedAt, v.LastHeartbeatAt, v.State, v.BillingActive,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("unexpected vault returned: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVault()
	mock.ExpectExec(`INSERT INTO vaults`).
		WillReturnError(errors.New("db is down"))

	_, err := repo.Create(context.Background(), v)
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVault()
	mock.ExpectQuery(`SELECT .* FROM vaults WHERE id = \$1`).
		WithArgs(v.ID).
		WillReturnRows(vaultRows(v))

	got, err := repo.GetByID(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerEmail != v.OwnerEmail || got.State != models.StateActive {
		t.Errorf("unexpected vault: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM vaults WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetForUpdate_UsesRowLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVault()
	mock.ExpectQuery(`SELECT .* FROM vaults WHERE id = \$1 FOR UPDATE`).
		WithArgs(v.ID).
		WillReturnRows(vaultRows(v))

	if _, err := repo.GetForUpdate(context.Background(), v.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetActiveByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVault()
	mock.ExpectQuery(`SELECT .* FROM vaults WHERE owner_email = \$1 AND state = 'active'`).
		WithArgs(v.OwnerEmail).
		WillReturnRows(vaultRows(v))

	got, err := repo.GetActiveByOwner(context.Background(), v.OwnerEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("unexpected vault: %+v", got)
	}
}

func TestListForSweep(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v1 := sampleVault()
	v2 := sampleVault()
	v2.ID = "9e4f8c1a-0000-0000-0000-000000000002"
	v2.OwnerEmail = "second@example.com"

	rows := vaultRows(v1).AddRow(
		v2.ID, v2.OwnerEmail, v2.BeneficiaryEmail, v2.SealedSecret, v2.SealedHeartbeatSecret,
		v2.IntegrityCommitment, v2.CreatedAt, v2.LastHeartbeatAt, string(v2.State), v2.BillingActive,
	)

	mock.ExpectQuery(`SELECT .* FROM vaults WHERE state = 'active' AND billing_active`).
		WillReturnRows(rows)

	got, err := repo.ListForSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vaults, got %d", len(got))
	}
}

func TestUpdateHeartbeat_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE vaults SET last_heartbeat_at = \$2`).
		WithArgs("v1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateHeartbeat(context.Background(), "v1", at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateHeartbeat_NoRowMatched(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE vaults SET last_heartbeat_at = \$2`).
		WithArgs("v1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateHeartbeat(context.Background(), "v1", at)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestUpdateBeneficiary_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE vaults SET beneficiary_email = \$2, integrity_commitment = \$3`).
		WithArgs("v1", "new@example.com", "cafebabe").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateBeneficiary(context.Background(), "v1", "new@example.com", "cafebabe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkReleased_OnlyFromActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE vaults SET state = 'released' WHERE id = \$1 AND state = 'active'`).
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkReleased(context.Background(), "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkReleased_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE vaults SET state = 'released'`).
		WithArgs("v1").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	err := repo.MarkReleased(context.Background(), "v1")
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}
