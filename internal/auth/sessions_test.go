package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestStore(ttl time.Duration, sliding bool) (*SessionStore, *time.Time) {
	s := NewSessionStore(ttl, sliding, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(time.Hour, false)

	token, err := s.Create(context.Background(), "student1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, expected 64 hex chars", len(token))
	}

	session, ok := s.Get(context.Background(), token)
	if !ok {
		t.Fatal("session not found")
	}
	if session.Username != "student1" {
		t.Errorf("username = %q", session.Username)
	}
}

func TestTokensAreUnique(t *testing.T) {
	s, _ := newTestStore(time.Hour, false)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := s.Create(context.Background(), "student1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[token] {
			t.Fatal("duplicate token issued")
		}
		seen[token] = true
	}
}

func TestExpiredSessionDeletedOnRead(t *testing.T) {
	s, now := newTestStore(time.Hour, false)

	token, _ := s.Create(context.Background(), "student1")
	*now = now.Add(2 * time.Hour)

	if _, ok := s.Get(context.Background(), token); ok {
		t.Fatal("expired session should not resolve")
	}

	// The expired entry is physically gone, not just hidden.
	s.mu.Lock()
	_, present := s.sessions[token]
	s.mu.Unlock()
	if present {
		t.Fatal("expired session still stored")
	}
}

func TestSessionInvalidAtExactDeadline(t *testing.T) {
	s, now := newTestStore(time.Hour, false)

	token, _ := s.Create(context.Background(), "student1")
	*now = now.Add(time.Hour)

	if _, ok := s.Get(context.Background(), token); ok {
		t.Fatal("session should be invalid exactly at its deadline")
	}
	s.mu.Lock()
	_, present := s.sessions[token]
	s.mu.Unlock()
	if present {
		t.Fatal("session at deadline should be removed")
	}
}

func TestFixedExpiryIgnoresActivity(t *testing.T) {
	s, now := newTestStore(time.Hour, false)

	token, _ := s.Create(context.Background(), "student1")

	*now = now.Add(50 * time.Minute)
	if _, ok := s.Get(context.Background(), token); !ok {
		t.Fatal("session should still be valid")
	}

	// Reads must not have extended the deadline.
	*now = now.Add(20 * time.Minute)
	if _, ok := s.Get(context.Background(), token); ok {
		t.Fatal("session should have expired at the original deadline")
	}
}

func TestSlidingRenewalExtendsDeadline(t *testing.T) {
	s, now := newTestStore(time.Hour, true)

	token, _ := s.Create(context.Background(), "student1")

	*now = now.Add(50 * time.Minute)
	if _, ok := s.Get(context.Background(), token); !ok {
		t.Fatal("session should still be valid")
	}

	*now = now.Add(50 * time.Minute)
	if _, ok := s.Get(context.Background(), token); !ok {
		t.Fatal("renewed session should still be valid")
	}
}

func TestDeleteAndCount(t *testing.T) {
	s, now := newTestStore(time.Hour, false)

	t1, _ := s.Create(context.Background(), "student1")
	t2, _ := s.Create(context.Background(), "teacher1")

	if !s.Delete(context.Background(), t1) {
		t.Error("delete of live session should report true")
	}
	if s.Delete(context.Background(), t1) {
		t.Error("second delete should report false")
	}
	if c := s.Count(); c != 1 {
		t.Errorf("count = %d, expected 1", c)
	}

	*now = now.Add(2 * time.Hour)
	if c := s.Count(); c != 0 {
		t.Errorf("count after expiry = %d, expected 0", c)
	}
	_ = t2
}

func TestRequireMiddleware(t *testing.T) {
	s, _ := newTestStore(time.Hour, false)
	token, _ := s.Create(context.Background(), "student1")

	mw := NewMiddleware(s)
	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := UsernameFromContext(r.Context())
		if !ok || username != "student1" {
			t.Errorf("context username = %q, ok = %v", username, ok)
		}
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"unknown token", "Bearer deadbeef", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ask", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, expected %d", rec.Code, tc.status)
			}
		})
	}
}
