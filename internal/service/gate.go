package service

import (
	"fmt"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/session"
)

// Gate is the authorization check every service entry point runs before
// touching persisted state.
type Gate interface {
	Authorize(token string, capability model.Capability) (*session.Session, error)
}

type gate struct {
	sessions *session.Registry
}

func NewGate(sessions *session.Registry) Gate {
	return &gate{sessions: sessions}
}

// Authorize resolves the token and checks the session's role against the
// capability table. It has no side effects besides lazy expiry.
func (g *gate) Authorize(token string, capability model.Capability) (*session.Session, error) {
	s, ok := g.sessions.Validate(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !s.Role.Can(capability) {
		return nil, fmt.Errorf("%w: role %s lacks %s", ErrForbidden, s.Role, capability)
	}
	return &s, nil
}
