// Package session tracks login sessions for audit and reporting. Records
// live in the sessions table, keyed by session id with an explicit expiry, so
// they survive process restarts and work across service instances; a janitor
// goroutine evicts expired rows.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/storage"
)

type Store struct {
	storage storage.Provider
	ttl     time.Duration
	logger  *slog.Logger

	stop chan struct{}
}

func NewStore(storageProvider storage.Provider, ttl time.Duration) *Store {
	s := &Store{
		storage: storageProvider,
		ttl:     ttl,
		logger:  slog.With("component", "sessions"),
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Begin records a new session for the user and returns its id.
func (s *Store) Begin(ctx context.Context, userID int64, clientIP string) (string, error) {
	now := time.Now().UTC()
	session := &storage.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientIP:  clientIP,
		StartedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.storage.CreateSession(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// Get returns the session if it exists and has not expired.
func (s *Store) Get(ctx context.Context, id string) (*storage.Session, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return nil, fault.NotFoundf("session %s expired", id)
	}
	return session, nil
}

func (s *Store) janitor() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed, err := s.storage.ExpireSessions(context.Background(), time.Now().UTC())
			if err != nil {
				s.logger.Error("Failed to expire sessions", "error", err)
			} else if removed > 0 {
				s.logger.Debug("Expired sessions removed", "count", removed)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Store) Close() {
	close(s.stop)
}
