package service

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/session"
	"go-stock-ledger/pkg/password"
)

const (
	minPasswordLength = 8
	maxIssueAttempts  = 3
)

type AuthService interface {
	Login(username, password string, stayLoggedIn bool) (*LoginResponse, error)
	Logout(token string) error
	Validate(token string) (*session.Session, error)
	Touch(token string) (*session.Session, error)
	ChangePassword(token, oldPassword, newPassword string) error
}

type LoginResponse struct {
	Token        string             `json:"token"`
	ExpiresAt    time.Time          `json:"expires_at"`
	User         model.UserResponse `json:"user"`
	Role         model.Role         `json:"role"`
	Capabilities []model.Capability `json:"capabilities"` // Flat capability list for easy checking
}

type authService struct {
	userRepo repository.UserRepository
	sessions *session.Registry
	audit    auditor
}

func NewAuthService(userRepo repository.UserRepository, sessions *session.Registry, auditRepo repository.AuditRepository) AuthService {
	return &authService{
		userRepo: userRepo,
		sessions: sessions,
		audit:    auditor{repo: auditRepo},
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnVerify spends the same Argon2 work as a real check so a missing user
// cannot be told apart from a wrong password by timing.
func burnVerify(plain string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = password.Hash("not-a-real-password", password.DefaultParams())
	})
	_, _ = password.Verify(plain, dummyHash)
}

func (s *authService) Login(username, plain string, stayLoggedIn bool) (*LoginResponse, error) {
	username = strings.TrimSpace(username)

	// 1. Find user by username
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		burnVerify(plain)
		s.audit.record(username, model.ActionLogin, "users", nil, ErrInvalidCredentials, "")
		return nil, ErrInvalidCredentials
	}

	// 2. Verify password
	if !user.CheckPassword(plain) {
		s.audit.record(username, model.ActionLogin, "users", idPtr(user.ID), ErrInvalidCredentials, "")
		return nil, ErrInvalidCredentials
	}

	// 3. Issue an opaque session with the role copied from the user record
	sess, user, err := s.issueCurrent(user, stayLoggedIn)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.audit.record(username, model.ActionLogin, "users", nil, err, "")
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.userRepo.UpdateLastLogin(user.ID, now); err != nil {
		slog.Warn("failed to record last login", "user_id", user.ID, "err", err)
	}
	user.LastLoginAt = &now

	s.audit.record(user.Username, model.ActionLogin, "users", idPtr(user.ID), nil, "")
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role, "stay_logged_in", stayLoggedIn)

	return &LoginResponse{
		Token:        sess.Token,
		ExpiresAt:    sess.ExpiresAt,
		User:         user.ToResponse(),
		Role:         sess.Role,
		Capabilities: model.RoleCapabilities[sess.Role],
	}, nil
}

// issueCurrent issues a session and then re-reads the user. A role change,
// password reset or delete that committed in between has already run its
// revocation, so the new session is dropped and, for a role change, issued
// again with the stored role.
func (s *authService) issueCurrent(user *model.User, stayLoggedIn bool) (session.Session, *model.User, error) {
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		sess, err := s.sessions.Issue(user, stayLoggedIn)
		if err != nil {
			return session.Session{}, nil, err
		}

		current, err := s.userRepo.FindByID(user.ID)
		if err != nil {
			s.sessions.Revoke(sess.Token)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return session.Session{}, nil, ErrInvalidCredentials
			}
			return session.Session{}, nil, err
		}
		if current.PasswordHash != user.PasswordHash {
			s.sessions.Revoke(sess.Token)
			return session.Session{}, nil, ErrInvalidCredentials
		}
		if current.Role == sess.Role {
			return sess, current, nil
		}
		s.sessions.Revoke(sess.Token)
		user = current
	}
	return session.Session{}, nil, ErrConflict
}

// Logout removes the session immediately. Unknown tokens are accepted silently.
func (s *authService) Logout(token string) error {
	if sess, ok := s.sessions.Validate(token); ok {
		s.audit.record(sess.Username, model.ActionLogout, "sessions", idPtr(sess.UserID), nil, "")
	}
	s.sessions.Revoke(token)
	return nil
}

func (s *authService) Validate(token string) (*session.Session, error) {
	sess, ok := s.sessions.Validate(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return &sess, nil
}

// Touch is the heartbeat: it slides the idle window of the caller's session.
func (s *authService) Touch(token string) (*session.Session, error) {
	sess, ok := s.sessions.Touch(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return &sess, nil
}

// ChangePassword lets a user replace their own password. Every other session
// of the user is revoked; the calling session stays valid.
func (s *authService) ChangePassword(token, oldPassword, newPassword string) error {
	sess, ok := s.sessions.Validate(token)
	if !ok {
		return ErrUnauthenticated
	}

	err := s.changePassword(sess, oldPassword, newPassword)
	s.audit.record(sess.Username, model.ActionChangePassword, "users", idPtr(sess.UserID), err, "")
	return err
}

func (s *authService) changePassword(sess session.Session, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return invalidInput("new_password", "new password must be at least %d characters", minPasswordLength)
	}

	user, err := s.userRepo.FindByID(sess.UserID)
	if err != nil {
		return notFound("user", err)
	}
	if !user.CheckPassword(oldPassword) {
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(user.ID, user.PasswordHash); err != nil {
		return err
	}

	n := s.sessions.RevokeUserExcept(user.ID, sess.Token)
	slog.Info("password changed", "user_id", user.ID, "revoked_sessions", n)
	return nil
}

// actorID is what lands in created_by / updated_by columns.
func actorID(sess *session.Session) string {
	if sess == nil || sess.UserID == uuid.Nil {
		return "system"
	}
	return sess.UserID.String()
}
