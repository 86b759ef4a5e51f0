package service

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/session"
)

type UserService interface {
	CreateUser(token string, req CreateUserRequest) (*model.UserResponse, error)
	ListUsers(token string) ([]model.UserResponse, error)
	GetUser(token string, id uuid.UUID) (*model.UserResponse, error)
	ChangeRole(token string, id uuid.UUID, role model.Role) (*model.UserResponse, error)
	ResetPassword(token string, id uuid.UUID, newPassword string) error
	DeleteUser(token string, id uuid.UUID) error
}

type CreateUserRequest struct {
	Username string     `json:"username" validate:"required,min=3,max=100"`
	Password string     `json:"password" validate:"required,min=8"`
	Role     model.Role `json:"role" validate:"required"`
}

type userService struct {
	gate     Gate
	userRepo repository.UserRepository
	sessions *session.Registry
	audit    auditor
}

func NewUserService(gate Gate, userRepo repository.UserRepository, sessions *session.Registry, auditRepo repository.AuditRepository) UserService {
	return &userService{
		gate:     gate,
		userRepo: userRepo,
		sessions: sessions,
		audit:    auditor{repo: auditRepo},
	}
}

func (s *userService) CreateUser(token string, req CreateUserRequest) (*model.UserResponse, error) {
	sess, err := s.gate.Authorize(token, model.CapManageUsers)
	if err != nil {
		return nil, err
	}

	user, err := s.createUser(sess, req)
	var id *uuid.UUID
	if user != nil {
		id = idPtr(user.ID)
	}
	s.audit.record(sess.Username, model.ActionCreate, "users", id, err, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}

func (s *userService) createUser(sess *session.Session, req CreateUserRequest) (*model.User, error) {
	// 1. Validate request
	req.Username = strings.TrimSpace(req.Username)
	if err := validateInput(req); err != nil {
		return nil, err
	}
	role, ok := model.ParseRole(string(req.Role))
	if !ok {
		return nil, invalidInput("role", "unknown role %q", req.Role)
	}

	// 2. Check if username already exists
	taken, err := s.userRepo.UsernameTaken(req.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("username %q %w", req.Username, ErrDuplicate)
	}

	// 3. Create user with hashed password
	user := &model.User{Username: req.Username, Role: role}
	user.CreatedBy = actorID(sess)
	user.UpdatedBy = actorID(sess)
	if err := user.SetPassword(req.Password); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	slog.Info("user created", "user_id", user.ID, "role", user.Role, "by", sess.Username)
	return user, nil
}

func (s *userService) ListUsers(token string) ([]model.UserResponse, error) {
	if _, err := s.gate.Authorize(token, model.CapManageUsers); err != nil {
		return nil, err
	}
	users, err := s.userRepo.FindAll()
	if err != nil {
		return nil, err
	}

	responses := make([]model.UserResponse, len(users))
	for i, user := range users {
		responses[i] = user.ToResponse()
	}
	return responses, nil
}

func (s *userService) GetUser(token string, id uuid.UUID) (*model.UserResponse, error) {
	if _, err := s.gate.Authorize(token, model.CapManageUsers); err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		return nil, notFound("user", err)
	}
	response := user.ToResponse()
	return &response, nil
}

// ChangeRole updates the stored role and revokes the user's sessions, since a
// session keeps the role it was issued with.
func (s *userService) ChangeRole(token string, id uuid.UUID, role model.Role) (*model.UserResponse, error) {
	sess, err := s.gate.Authorize(token, model.CapManageUsers)
	if err != nil {
		return nil, err
	}

	user, err := s.changeRole(sess, id, role)
	s.audit.record(sess.Username, model.ActionChangeRole, "users", idPtr(id), err, string(role))
	if err != nil {
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}

func (s *userService) changeRole(sess *session.Session, id uuid.UUID, role model.Role) (*model.User, error) {
	parsed, ok := model.ParseRole(string(role))
	if !ok {
		return nil, invalidInput("role", "unknown role %q", role)
	}
	if id == sess.UserID {
		return nil, invalidInput("id", "you cannot change your own role")
	}

	user, err := s.userRepo.FindByID(id)
	if err != nil {
		return nil, notFound("user", err)
	}
	if user.Role == parsed {
		return user, nil
	}
	if err := s.userRepo.UpdateRole(id, parsed, actorID(sess)); err != nil {
		return nil, err
	}
	user.Role = parsed

	n := s.sessions.RevokeUser(id)
	slog.Info("user role changed", "user_id", id, "role", parsed, "revoked_sessions", n)
	return user, nil
}

// ResetPassword sets a new password for another user and logs them out everywhere.
func (s *userService) ResetPassword(token string, id uuid.UUID, newPassword string) error {
	sess, err := s.gate.Authorize(token, model.CapManageUsers)
	if err != nil {
		return err
	}

	err = s.resetPassword(id, newPassword)
	s.audit.record(sess.Username, model.ActionChangePassword, "users", idPtr(id), err, "reset")
	return err
}

func (s *userService) resetPassword(id uuid.UUID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return invalidInput("password", "password must be at least %d characters", minPasswordLength)
	}
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		return notFound("user", err)
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(id, user.PasswordHash); err != nil {
		return err
	}
	s.sessions.RevokeUser(id)
	return nil
}

func (s *userService) DeleteUser(token string, id uuid.UUID) error {
	sess, err := s.gate.Authorize(token, model.CapManageUsers)
	if err != nil {
		return err
	}

	err = s.deleteUser(sess, id)
	s.audit.record(sess.Username, model.ActionDelete, "users", idPtr(id), err, "")
	return err
}

func (s *userService) deleteUser(sess *session.Session, id uuid.UUID) error {
	if id == sess.UserID {
		return invalidInput("id", "you cannot delete your own account")
	}
	if err := s.userRepo.Delete(id, actorID(sess)); err != nil {
		return notFound("user", err)
	}
	s.sessions.RevokeUser(id)
	return nil
}
