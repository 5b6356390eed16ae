// Package audit records who did what into the audit_events table. Writes are
// best-effort by contract: callers log failures and never propagate them.
package audit

import (
	"context"
	"log/slog"
	"time"

	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/storage"
)

type Sink struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewSink(store storage.Provider) *Sink {
	return &Sink{
		store:  store,
		logger: slog.With("component", "audit"),
	}
}

func (s *Sink) Record(ctx context.Context, actor, action, entity, entityID, outcome string, took time.Duration) error {
	event := &storage.AuditEvent{
		Actor:      actor,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Outcome:    outcome,
		DurationMS: took.Milliseconds(),
	}
	if err := s.store.InsertAuditEvent(ctx, event); err != nil {
		s.logger.Error("Failed to persist audit event", "action", action, "entity", entity, "error", err)
		return err
	}
	return nil
}

func (s *Sink) List(ctx context.Context, limit int) ([]storage.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAuditEvents(ctx, limit)
}

var _ lifecycle.Auditor = (*Sink)(nil)
