package lifecycle

import (
	"context"
	"time"

	"school-device-issuance/internal/storage"
)

// Event describes one successful lifecycle transition. Every state change
// emits exactly one.
type Event struct {
	ApplicationID int64
	SchoolCode    string
	From          storage.ApplicationStatus
	To            storage.ApplicationStatus
	Actor         string
	At            time.Time
	// Extra carries operation-specific payload, e.g. the device count on
	// assignment.
	Extra map[string]any
}

// Notifier delivers lifecycle events to interested users. Fire-and-forget:
// implementations must not block the lifecycle on delivery, and callers
// ignore returned errors beyond logging.
type Notifier interface {
	Notify(ctx context.Context, target string, kind string, event Event) error
}

// Auditor records who did what. Same fire-and-forget contract as Notifier.
type Auditor interface {
	Record(ctx context.Context, actor, action, entity, entityID, outcome string, took time.Duration) error
}

// NopNotifier discards events. Used by the CLI and tests.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, Event) error { return nil }

// NopAuditor discards audit records.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, string, string, string, string, string, time.Duration) error {
	return nil
}
