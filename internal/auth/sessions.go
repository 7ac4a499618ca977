package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/repository"
)

// SessionStore keeps login sessions in memory, keyed by an opaque random
// token. Expiry is validated on every read: a session past its deadline is
// deleted by the lookup that notices, so callers cannot tell "expired" from
// "never existed". When a repository is supplied, sessions are mirrored to it
// so logins survive a restart; the in-memory table stays authoritative for
// reads.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session

	ttl     time.Duration
	sliding bool
	repo    repository.SessionRepository

	now func() time.Time
}

func NewSessionStore(ttl time.Duration, sliding bool, repo repository.SessionRepository) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		ttl:      ttl,
		sliding:  sliding,
		repo:     repo,
		now:      time.Now,
	}
}

// Restore loads previously persisted, unexpired sessions into memory.
func (s *SessionStore) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	restored := 0
	s.mu.Lock()
	for _, sess := range sessions {
		if !now.Before(sess.ExpiresAt) {
			continue
		}
		s.sessions[sess.Token] = sess
		restored++
	}
	s.mu.Unlock()
	slog.Info("Sessions restored", "count", restored)
	return nil
}

// Create issues a new session for username. The token carries 256 bits from
// crypto/rand, hex encoded.
func (s *SessionStore) Create(ctx context.Context, username string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	now := s.now()
	session := &models.Session{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[token] = session
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, session); err != nil {
			slog.Error("Failed to persist session", "username", username, "error", err)
		}
	}

	slog.Info("Session created", "username", username, "token_prefix", token[:8])
	return token, nil
}

// Get resolves a token to its session. Expired sessions are deleted as a
// side effect and reported as absent. With sliding renewal enabled, a
// successful lookup pushes the deadline out by the full TTL.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, bool) {
	s.mu.Lock()
	session, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if !s.now().Before(session.ExpiresAt) {
		delete(s.sessions, token)
		s.mu.Unlock()
		if s.repo != nil {
			if err := s.repo.DeleteSession(ctx, token); err != nil {
				slog.Error("Failed to delete expired session", "error", err)
			}
		}
		slog.Info("Session expired and removed", "token_prefix", token[:min(8, len(token))])
		return nil, false
	}
	if s.sliding {
		session.ExpiresAt = s.now().Add(s.ttl)
	}
	copied := *session
	s.mu.Unlock()
	return &copied, true
}

// Delete removes a session, reporting whether it existed.
func (s *SessionStore) Delete(ctx context.Context, token string) bool {
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			slog.Error("Failed to delete persisted session", "error", err)
		}
	}
	return ok
}

// Count reports live sessions, cleaning expired ones first.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for token, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
	return len(s.sessions)
}
