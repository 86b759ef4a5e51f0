package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
)

// SeedAdmin creates the first Admin when no Admin exists yet. An empty
// password is replaced by a random one, which is returned so the caller can
// print it once.
func SeedAdmin(userRepo repository.UserRepository, username, password string) (created bool, generated string, err error) {
	n, err := userRepo.CountByRole(model.RoleAdmin)
	if err != nil {
		return false, "", err
	}
	if n > 0 {
		return false, "", nil
	}

	if password == "" {
		raw := make([]byte, 12)
		if _, err := rand.Read(raw); err != nil {
			return false, "", fmt.Errorf("generate admin password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(raw)
		generated = password
	}

	admin := &model.User{Username: username, Role: model.RoleAdmin}
	admin.CreatedBy = "system"
	admin.UpdatedBy = "system"
	if err := admin.SetPassword(password); err != nil {
		return false, "", err
	}
	if err := userRepo.Create(admin); err != nil {
		return false, "", err
	}
	return true, generated, nil
}
