// Package sweep runs the periodic liveness check over all active vaults
// and drives the escalation ladder.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pyoneerc/deadhand/internal/common"
	"github.com/pyoneerc/deadhand/internal/logging"
	"github.com/pyoneerc/deadhand/internal/server/models"
)

// VaultService is the slice of the custody service the sweeper needs.
type VaultService interface {
	ListForSweep(ctx context.Context) ([]*models.Vault, error)
	Evaluate(v *models.Vault, now time.Time) models.EscalationAction
	NotifyEscalation(ctx context.Context, v *models.Vault, action models.EscalationAction, now time.Time) error
	Release(ctx context.Context, vaultID string, now time.Time) (*models.Disclosure, error)
}

// Summary is the outcome of a single sweep pass.
type Summary struct {
	Checked  int
	Reminded int
	Warned   int
	Released int
	Errors   int
}

// Sweeper walks the active vaults, evaluates each against the escalation
// policy and dispatches the resulting action. Vaults are processed
// concurrently up to a fixed limit; a failure on one vault never stops
// the pass.
type Sweeper struct {
	svc          VaultService
	logger       logging.Logger
	concurrency  int
	vaultTimeout time.Duration

	// now is a seam for tests.
	now func() time.Time
}

func New(svc VaultService, logger logging.Logger, concurrency int, vaultTimeout time.Duration) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		svc:          svc,
		logger:       logger.With("module", "sweep"),
		concurrency:  concurrency,
		vaultTimeout: vaultTimeout,
		now:          time.Now,
	}
}

// Run executes one sweep pass. The returned summary counts every vault
// exactly once; an error is returned only when the working set itself
// cannot be listed.
func (s *Sweeper) Run(ctx context.Context) (*Summary, error) {
	vaults, err := s.svc.ListForSweep(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	summary := &Summary{}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)

	for _, v := range vaults {
		wg.Add(1)
		sem <- struct{}{}
		go func(v *models.Vault) {
			defer wg.Done()
			defer func() { <-sem }()

			action, err := s.sweepOne(ctx, v, now)

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				summary.Errors++
				return
			}
			switch action {
			case models.ActionRemind:
				summary.Reminded++
			case models.ActionWarn:
				summary.Warned++
			case models.ActionRelease:
				summary.Released++
			}
		}(v)
	}
	wg.Wait()

	s.logger.Info(ctx, "sweep pass finished",
		"checked", summary.Checked,
		"reminded", summary.Reminded,
		"warned", summary.Warned,
		"released", summary.Released,
		"errors", summary.Errors,
	)
	return summary, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, v *models.Vault, now time.Time) (models.EscalationAction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.vaultTimeout)
	defer cancel()

	action := s.svc.Evaluate(v, now)

	var err error
	switch action {
	case models.ActionRemind, models.ActionWarn:
		err = s.svc.NotifyEscalation(ctx, v, action, now)
	case models.ActionRelease:
		_, err = s.svc.Release(ctx, v.ID, now)
		if errors.Is(err, common.ErrorNotDue) {
			// a renew won the race after our snapshot; nothing to do
			return models.ActionNone, nil
		}
	}
	if err != nil {
		s.logger.Error(ctx, "sweep action failed",
			"vault_id", v.ID, "action", action.String(), "error", err.Error())
		return action, err
	}
	return action, nil
}

// RunPeriodic runs a pass immediately and then on every tick until the
// context is cancelled.
func (s *Sweeper) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error(ctx, "sweep pass failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
