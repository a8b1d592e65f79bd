// Package vaults implements the heartbeat state machine: vault creation,
// liveness renewal, beneficiary changes and the one-way release transition.
//
// Every mutation of a single vault runs inside a row-locked transaction so
// renew, beneficiary change and release are mutually exclusive per vault.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pyoneerc/deadhand/internal/common"
	"github.com/pyoneerc/deadhand/internal/cryptox"
	"github.com/pyoneerc/deadhand/internal/dbx"
	"github.com/pyoneerc/deadhand/internal/logging"
	"github.com/pyoneerc/deadhand/internal/server/auth"
	"github.com/pyoneerc/deadhand/internal/server/config"
	"github.com/pyoneerc/deadhand/internal/server/integrity"
	"github.com/pyoneerc/deadhand/internal/server/models"
	"github.com/pyoneerc/deadhand/internal/server/notify"
	"github.com/pyoneerc/deadhand/internal/server/repositories/repomanager"
)

// Archiver persists an audit record of a release. Implementations must not
// store the disclosed secret.
type Archiver interface {
	ArchiveRelease(ctx context.Context, d *models.Disclosure) error
}

// Service is the custody state machine.
type Service struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	notifier notify.Notifier
	archiver Archiver
	logger   logging.Logger

	masterKey     []byte
	sessionSecret []byte
	sessionTTL    time.Duration
	policy        Policy

	// now is a seam for tests.
	now func() time.Time
}

// NewService wires the state machine. The master passphrase is stretched
// once here; the cleartext passphrase is not retained. archiver may be nil
// when the release archive is disabled.
func NewService(db *sql.DB, rm repomanager.RepositoryManager, cfg *config.Config,
	notifier notify.Notifier, archiver Archiver, logger logging.Logger) *Service {
	return &Service{
		db:            db,
		rm:            rm,
		notifier:      notifier,
		archiver:      archiver,
		logger:        logger.With("module", "vaults"),
		masterKey:     cryptox.DeriveMasterKey([]byte(cfg.MasterKey), []byte(cfg.MasterKeySalt)),
		sessionSecret: []byte(cfg.SessionSecret),
		sessionTTL:    cfg.SessionTokenValidityDuration,
		policy:        PolicyFromConfig(cfg),
		now:           time.Now,
	}
}

// OpenVault creates a new active vault for owner and returns it together
// with the cleartext heartbeat secret for one-time delivery to the owner.
// The secret is never persisted in this form.
//
// An existing active vault for the same owner is an ErrorAlreadyExists;
// a released one may be superseded by a new record, never resurrected.
func (s *Service) OpenVault(ctx context.Context, owner, beneficiary, secret string) (*models.Vault, string, error) {
	heartbeatSecret, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	sealedSecret, err := cryptox.Seal([]byte(secret), cryptox.DeriveKey([]byte(heartbeatSecret)))
	if err != nil {
		return nil, "", common.ErrorInternal
	}
	sealedHeartbeat, err := cryptox.Seal([]byte(heartbeatSecret), s.masterKey)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	now := s.now().UTC()
	v := &models.Vault{
		ID:                    uuid.NewString(),
		OwnerEmail:            owner,
		BeneficiaryEmail:      beneficiary,
		SealedSecret:          sealedSecret,
		SealedHeartbeatSecret: sealedHeartbeat,
		IntegrityCommitment:   integrity.Commit(beneficiary, sealedSecret, now),
		CreatedAt:             now,
		LastHeartbeatAt:       now,
		State:                 models.StateActive,
		BillingActive:         true,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Vaults(tx)

		_, err := repo.GetActiveByOwner(ctx, owner)
		if err == nil {
			return common.ErrorAlreadyExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		_, err = repo.Create(ctx, v)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info(ctx, "vault opened", "vault_id", v.ID)
	return v, heartbeatSecret, nil
}

// authenticate loads a vault under a row lock and checks the presented
// heartbeat capability. Missing vault and wrong secret are both the same
// opaque ErrorAuthFailed.
func (s *Service) authenticate(ctx context.Context, repo interface {
	GetForUpdate(ctx context.Context, id string) (*models.Vault, error)
}, vaultID, presentedSecret string) (*models.Vault, error) {
	v, err := repo.GetForUpdate(ctx, vaultID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorAuthFailed
		}
		return nil, err
	}

	heartbeatSecret, legacy := cryptox.OpenOrLegacy(v.SealedHeartbeatSecret, s.masterKey)
	if legacy {
		s.logger.Warn(ctx, "legacy cleartext heartbeat secret", "vault_id", v.ID)
	}

	if !auth.CheckSecret(heartbeatSecret, []byte(presentedSecret)) {
		return nil, common.ErrorAuthFailed
	}
	return v, nil
}

// Renew proves liveness and resets the inactivity clock. A released vault
// cannot be renewed: the secret is already out, the owner must open a new
// vault instead.
func (s *Service) Renew(ctx context.Context, vaultID, presentedSecret string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Vaults(tx)

		v, err := s.authenticate(ctx, repo, vaultID, presentedSecret)
		if err != nil {
			return err
		}
		if v.Released() {
			return common.ErrorAlreadyReleased
		}

		now := s.now().UTC()
		if !now.After(v.LastHeartbeatAt) {
			// last_heartbeat_at only ever moves forward
			return nil
		}
		return repo.UpdateHeartbeat(ctx, v.ID, now)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "heartbeat renewed", "vault_id", vaultID)
	return nil
}

// ChangeBeneficiary rewrites the beneficiary and the integrity commitment
// in one atomic step, then notifies the owner so a leaked capability
// cannot silently redirect the disclosure.
func (s *Service) ChangeBeneficiary(ctx context.Context, vaultID, presentedSecret, newBeneficiary string) error {
	var owner string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Vaults(tx)

		v, err := s.authenticate(ctx, repo, vaultID, presentedSecret)
		if err != nil {
			return err
		}
		if v.Released() {
			return common.ErrorAlreadyReleased
		}

		owner = v.OwnerEmail
		commitment := integrity.Commit(newBeneficiary, v.SealedSecret, v.CreatedAt)
		return repo.UpdateBeneficiary(ctx, v.ID, newBeneficiary, commitment)
	})
	if err != nil {
		return err
	}

	if err := s.notifier.Notify(ctx, owner, notify.KindBeneficiaryChanged, map[string]string{
		"vault_id":        vaultID,
		"new_beneficiary": newBeneficiary,
	}); err != nil {
		s.logger.Warn(ctx, "beneficiary-change notification failed", "vault_id", vaultID, "error", err.Error())
	}

	s.logger.Info(ctx, "beneficiary changed", "vault_id", vaultID)
	return nil
}

// Evaluate derives the escalation action for a vault at the given instant.
func (s *Service) Evaluate(v *models.Vault, now time.Time) models.EscalationAction {
	return Evaluate(v.LastHeartbeatAt, now, s.policy)
}

// Release discloses the custody secret to the beneficiary and moves the
// vault to its terminal state. The state transition and the decision to
// disclose happen inside the same row-locked transaction as any competing
// renew: the escalation decision is recomputed against the locked row, so
// a heartbeat that committed after the caller's snapshot aborts the
// release with ErrorNotDue instead of disclosing. Calling Release on an
// already-released vault re-derives the same disclosure but sends no
// notification and writes no archive record.
func (s *Service) Release(ctx context.Context, vaultID string, now time.Time) (*models.Disclosure, error) {
	var disclosure *models.Disclosure

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Vaults(tx)

		v, err := repo.GetForUpdate(ctx, vaultID)
		if err != nil {
			return err
		}

		if !integrity.Verify(v) {
			s.logger.Error(ctx, "integrity commitment mismatch, release aborted", "vault_id", v.ID)
			return common.ErrorIntegrityMismatch
		}

		if !v.Released() && Evaluate(v.LastHeartbeatAt, now, s.policy) != models.ActionRelease {
			s.logger.Info(ctx, "release aborted, heartbeat is current", "vault_id", v.ID)
			return common.ErrorNotDue
		}

		heartbeatSecret, legacyToken := cryptox.OpenOrLegacy(v.SealedHeartbeatSecret, s.masterKey)
		secret, legacySecret := cryptox.OpenOrLegacy(v.SealedSecret, cryptox.DeriveKey(heartbeatSecret))
		if legacyToken || legacySecret {
			s.logger.Warn(ctx, "legacy cleartext fields during release", "vault_id", v.ID)
		}

		disclosure = &models.Disclosure{
			VaultID:          v.ID,
			OwnerEmail:       v.OwnerEmail,
			BeneficiaryEmail: v.BeneficiaryEmail,
			Secret:           string(secret),
			ReleasedAt:       now.UTC(),
			Repeated:         v.Released(),
		}

		if v.Released() {
			return nil
		}
		return repo.MarkReleased(ctx, v.ID)
	})
	if err != nil {
		return nil, err
	}

	if disclosure.Repeated {
		return disclosure, nil
	}

	if err := s.notifier.Notify(ctx, disclosure.BeneficiaryEmail, notify.KindDisclosure, map[string]string{
		"vault_id": disclosure.VaultID,
		"owner":    disclosure.OwnerEmail,
		"secret":   disclosure.Secret,
	}); err != nil {
		s.logger.Warn(ctx, "disclosure notification failed", "vault_id", disclosure.VaultID, "error", err.Error())
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveRelease(ctx, disclosure); err != nil {
			s.logger.Warn(ctx, "release archive failed", "vault_id", disclosure.VaultID, "error", err.Error())
		}
	}

	s.logger.Info(ctx, "vault released", "vault_id", disclosure.VaultID)
	return disclosure, nil
}

// ListForSweep exposes the sweep working set.
func (s *Service) ListForSweep(ctx context.Context) ([]*models.Vault, error) {
	return s.rm.Vaults(s.db).ListForSweep(ctx)
}

// NotifyEscalation sends the reminder/warning for an evaluated vault.
func (s *Service) NotifyEscalation(ctx context.Context, v *models.Vault, action models.EscalationAction, now time.Time) error {
	var kind notify.Kind
	switch action {
	case models.ActionRemind:
		kind = notify.KindReminder
	case models.ActionWarn:
		kind = notify.KindWarning
	default:
		return nil
	}

	days := int(now.Sub(v.LastHeartbeatAt).Hours() / 24)
	err := s.notifier.Notify(ctx, v.OwnerEmail, kind, map[string]string{
		"vault_id":    v.ID,
		"days_silent": fmt.Sprintf("%d", days),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorNotify, err)
	}
	return nil
}

// Status is the session-authenticated owner view of a vault.
type Status struct {
	VaultID          string
	State            models.LifecycleState
	BeneficiaryEmail string
	LastHeartbeatAt  time.Time
	NextAction       models.EscalationAction
}

// IssueSession mints an expiring session token for an identity.
func (s *Service) IssueSession(identity string) (string, error) {
	return auth.GenerateToken(identity, s.sessionSecret, s.sessionTTL)
}

// OwnerStatus resolves a session token to its identity and reports the
// state of that owner's active vault.
func (s *Service) OwnerStatus(ctx context.Context, sessionToken string) (*Status, error) {
	identity, err := auth.VerifySession(sessionToken, s.sessionSecret)
	if err != nil {
		return nil, err
	}

	v, err := s.rm.Vaults(s.db).GetActiveByOwner(ctx, identity)
	if err != nil {
		return nil, err
	}

	return &Status{
		VaultID:          v.ID,
		State:            v.State,
		BeneficiaryEmail: v.BeneficiaryEmail,
		LastHeartbeatAt:  v.LastHeartbeatAt,
		NextAction:       s.Evaluate(v, s.now().UTC()),
	}, nil
}
