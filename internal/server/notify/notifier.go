// Package notify defines the notification collaborator contract consumed
// by the state machine and the sweep, plus an slog-backed implementation
// and a TTL deduplication layer.
//
// Delivery failures are best-effort by contract: the core logs and moves
// on, it never blocks a state transition on a lost email.
package notify

import (
	"context"

	"github.com/pyoneerc/deadhand/internal/logging"
)

// Kind identifies the notification template to deliver.
type Kind string

const (
	KindReminder           Kind = "reminder"
	KindWarning            Kind = "warning"
	KindDisclosure         Kind = "disclosure"
	KindBeneficiaryChanged Kind = "beneficiary_changed"
)

// Notifier delivers a notification of the given kind to recipient.
// Implementations own retries and deduplication; returned errors are
// informational to the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind Kind, payload map[string]string) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// the external delivery collaborator; payload values are logged as-is, so
// callers must not place secrets in the payload of non-disclosure kinds.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient string, kind Kind, payload map[string]string) error {
	args := []any{"recipient", recipient, "kind", string(kind)}
	for k, v := range payload {
		if kind == KindDisclosure && k == "secret" {
			v = "<redacted>"
		}
		args = append(args, "payload."+k, v)
	}
	n.logger.Info(ctx, "notification", args...)
	return nil
}
