// Package session holds the process-scoped registry of opaque login tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-stock-ledger/internal/model"
)

// Session is the server-side state behind a token. Role is copied at issuance
// and never re-derived from the user record.
type Session struct {
	Token        string     `json:"-"`
	UserID       uuid.UUID  `json:"user_id"`
	Username     string     `json:"username"`
	Role         model.Role `json:"role"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	StayLoggedIn bool       `json:"stay_logged_in"`
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Options sets the expiry windows.
type Options struct {
	IdleTTL time.Duration // sessions without "stay logged in"
	StayTTL time.Duration // sessions with "stay logged in"
}

// Registry maps tokens to sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[uuid.UUID]map[string]struct{}
	opts     Options
	now      func() time.Time
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[uuid.UUID]map[string]struct{}),
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Issue creates a session for the user and returns a copy of it.
func (r *Registry) Issue(user *model.User, stayLoggedIn bool) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ttl := r.opts.IdleTTL
	if stayLoggedIn {
		ttl = r.opts.StayTTL
	}
	s := &Session{
		Token:        token,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		IssuedAt:     now,
		ExpiresAt:    now.Add(ttl),
		StayLoggedIn: stayLoggedIn,
	}
	r.sessions[token] = s
	if r.byUser[user.ID] == nil {
		r.byUser[user.ID] = make(map[string]struct{})
	}
	r.byUser[user.ID][token] = struct{}{}
	return *s, nil
}

// Validate returns the session for a live token. Expired sessions are removed
// and reported as absent.
func (r *Registry) Validate(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}

	r.mu.RLock()
	s, ok := r.sessions[token]
	now := r.now()
	if ok && !s.expired(now) {
		out := *s
		r.mu.RUnlock()
		return out, true
	}
	r.mu.RUnlock()

	if ok {
		r.mu.Lock()
		// Re-check under the write lock; Touch may have extended it meanwhile.
		if cur, still := r.sessions[token]; still && cur.expired(r.now()) {
			r.remove(token)
		}
		r.mu.Unlock()
	}
	return Session{}, false
}

// Touch slides the idle window of a live session and returns the updated copy.
func (r *Registry) Touch(token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return Session{}, false
	}
	now := r.now()
	if s.expired(now) {
		r.remove(token)
		return Session{}, false
	}
	ttl := r.opts.IdleTTL
	if s.StayLoggedIn {
		ttl = r.opts.StayTTL
	}
	if next := now.Add(ttl); next.After(s.ExpiresAt) {
		s.ExpiresAt = next
	}
	return *s, true
}

// Revoke removes a token. Revoking an unknown token is not an error.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(token)
}

// RevokeUser removes every session of a user and returns how many were removed.
func (r *Registry) RevokeUser(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := r.byUser[userID]
	n := len(tokens)
	for token := range tokens {
		delete(r.sessions, token)
	}
	delete(r.byUser, userID)
	return n
}

// RevokeUserExcept removes every session of a user other than keep.
func (r *Registry) RevokeUserExcept(userID uuid.UUID, keep string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for token := range r.byUser[userID] {
		if token != keep {
			r.remove(token)
			n++
		}
	}
	return n
}

// Purge drops all expired sessions and returns how many were removed.
func (r *Registry) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for token, s := range r.sessions {
		if s.expired(now) {
			r.remove(token)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run purges expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Purge(); n > 0 {
				slog.Debug("purged expired sessions", "count", n)
			}
		}
	}
}

// remove must be called with mu held for writing.
func (r *Registry) remove(token string) {
	s, ok := r.sessions[token]
	if !ok {
		return
	}
	delete(r.sessions, token)
	if tokens := r.byUser[s.UserID]; tokens != nil {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
}
