package vaults

import (
	"time"

	"github.com/pyoneerc/deadhand/internal/server/config"
	"github.com/pyoneerc/deadhand/internal/server/models"
)

// Policy holds the escalation tier bounds in whole days since the last
// heartbeat. The remind and warn tiers are closed intervals wide enough to
// survive sweep scheduling jitter; re-evaluating inside a tier is
// idempotent at the state level, duplicate sends are the notification
// layer's concern.
type Policy struct {
	RemindAfterDays  int
	RemindUntilDays  int
	WarnAfterDays    int
	WarnUntilDays    int
	ReleaseAfterDays int
}

// PolicyFromConfig copies the tier bounds out of the runtime configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		RemindAfterDays:  cfg.RemindAfterDays,
		RemindUntilDays:  cfg.RemindUntilDays,
		WarnAfterDays:    cfg.WarnAfterDays,
		WarnUntilDays:    cfg.WarnUntilDays,
		ReleaseAfterDays: cfg.ReleaseAfterDays,
	}
}

// Evaluate maps a heartbeat age onto an escalation action. It is a pure
// function of now - lastHeartbeat; nothing about the tiers is persisted.
func Evaluate(lastHeartbeat, now time.Time, p Policy) models.EscalationAction {
	days := int(now.Sub(lastHeartbeat).Hours() / 24)

	switch {
	case days >= p.ReleaseAfterDays:
		return models.ActionRelease
	case days >= p.WarnAfterDays && days <= p.WarnUntilDays:
		return models.ActionWarn
	case days >= p.RemindAfterDays && days <= p.RemindUntilDays:
		return models.ActionRemind
	default:
		return models.ActionNone
	}
}
