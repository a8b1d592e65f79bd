// Package cli is the operator console for the custody server. It talks to
// the same database the server uses and drives the state machine directly;
// there is no network hop.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pyoneerc/deadhand/internal/common"
	"github.com/pyoneerc/deadhand/internal/logging"
	"github.com/pyoneerc/deadhand/internal/server/config"
	"github.com/pyoneerc/deadhand/internal/server/notify"
	"github.com/pyoneerc/deadhand/internal/server/repositories/repomanager"
	"github.com/pyoneerc/deadhand/internal/server/sweep"
	"github.com/pyoneerc/deadhand/internal/server/vaults"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config  *config.Config
	service *vaults.Service
	sweeper *sweep.Sweeper
	reader  *bufio.Reader

	// sessionToken is set after a successful login.
	sessionToken string
}

func NewApp(cfg *config.Config) (*App, error) {

	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger := logging.NewSlogLogger(l)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	notifier := notify.NewDedupNotifier(notify.NewLogNotifier(logger), notify.NewMemoryDeduper(), cfg.NotifyDedupTTL)
	service := vaults.NewService(db, rm, cfg, notifier, nil, logger)
	sweeper := sweep.New(service, logger, 4, cfg.SweepVaultTimeout)

	return &App{config: cfg, service: service, sweeper: sweeper, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) isLoggedIn() bool {
	return a.sessionToken != ""
}

func (a *App) Run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, scanner)
}

// Open creates a vault and prints the heartbeat secret exactly once; it
// cannot be recovered afterwards.
func (a *App) Open(ctx context.Context) error {
	owner, err := GetSimpleText(a.reader, "Owner email", os.Stdout)
	if err != nil {
		return err
	}
	beneficiary, err := GetSimpleText(a.reader, "Beneficiary email", os.Stdout)
	if err != nil {
		return err
	}
	secret, err := GetSecret("Secret to place in custody", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	v, heartbeatSecret, err := a.service.OpenVault(ctx, owner, beneficiary, string(secret))
	if err != nil {
		printlnFn("Error:", errText(err))
		return err
	}

	printlnFn("Vault opened:", v.ID)
	printlnFn("Heartbeat secret (shown once, store it safely):", heartbeatSecret)
	return nil
}

// Renew records a heartbeat for a vault.
func (a *App) Renew(ctx context.Context) error {
	vaultID, err := GetSimpleText(a.reader, "Vault ID", os.Stdout)
	if err != nil {
		return err
	}
	secret, err := GetSecret("Heartbeat secret", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	if err := a.service.Renew(ctx, vaultID, string(secret)); err != nil {
		printlnFn("Error:", errText(err))
		return err
	}
	printlnFn("Heartbeat recorded.")
	return nil
}

// ChangeBeneficiary redirects a vault's future disclosure.
func (a *App) ChangeBeneficiary(ctx context.Context) error {
	vaultID, err := GetSimpleText(a.reader, "Vault ID", os.Stdout)
	if err != nil {
		return err
	}
	secret, err := GetSecret("Heartbeat secret", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	beneficiary, err := GetSimpleText(a.reader, "New beneficiary email", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.service.ChangeBeneficiary(ctx, vaultID, string(secret), beneficiary); err != nil {
		printlnFn("Error:", errText(err))
		return err
	}
	printlnFn("Beneficiary changed.")
	return nil
}

// Login mints a session token for an owner identity.
func (a *App) Login(ctx context.Context) error {
	owner, err := GetSimpleText(a.reader, "Owner email", os.Stdout)
	if err != nil {
		return err
	}

	token, err := a.service.IssueSession(owner)
	if err != nil {
		printlnFn("Error:", errText(err))
		return err
	}

	a.sessionToken = token
	printlnFn("Logged in as", owner)
	return nil
}

// Status shows the owner's active vault and its next escalation action.
func (a *App) Status(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Not logged in.")
		return nil
	}

	status, err := a.service.OwnerStatus(ctx, a.sessionToken)
	if err != nil {
		printlnFn("Error:", errText(err))
		return err
	}

	printlnFn("Vault:", status.VaultID)
	printlnFn("State:", string(status.State))
	printlnFn("Beneficiary:", status.BeneficiaryEmail)
	printlnFn("Last heartbeat:", status.LastHeartbeatAt.Format(time.RFC3339))
	printlnFn("Next action:", status.NextAction.String())
	return nil
}

// Sweep runs a single escalation pass and prints the summary.
func (a *App) Sweep(ctx context.Context) error {
	summary, err := a.sweeper.Run(ctx)
	if err != nil {
		printlnFn("Error:", errText(err))
		return err
	}

	printlnFn(fmt.Sprintf("Checked %d, reminded %d, warned %d, released %d, errors %d",
		summary.Checked, summary.Reminded, summary.Warned, summary.Released, summary.Errors))
	return nil
}

// errText maps internal errors to operator-facing text without leaking
// which part of the check failed.
func errText(err error) string {
	switch {
	case errors.Is(err, common.ErrorAuthFailed):
		return "authentication failed"
	case errors.Is(err, common.ErrorAlreadyReleased):
		return "vault is already released"
	case errors.Is(err, common.ErrorAlreadyExists):
		return "owner already has an active vault"
	case errors.Is(err, common.ErrorNotFound):
		return "not found"
	default:
		return err.Error()
	}
}
