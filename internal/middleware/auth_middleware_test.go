package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"go-stock-ledger/internal/middleware"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/session"
)

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		token, ok := middleware.BearerToken(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.SendString(token)
	})

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer a b", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if ok := resp.StatusCode == http.StatusOK; ok != tt.ok {
			t.Errorf("BearerToken(%q) ok = %v, want %v", tt.header, ok, tt.ok)
		}
		if tt.ok && string(body) != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, body, tt.want)
		}
	}
}

func TestRequireAuthAndCapability(t *testing.T) {
	sessions := session.NewRegistry(session.Options{IdleTTL: time.Minute, StayTTL: time.Hour})
	var noUsers repository.UserRepository
	auth := service.NewAuthService(noUsers, sessions, nil)

	viewer := &model.User{Username: "vera", Role: model.RoleViewer}
	s, err := sessions.Issue(viewer, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendString(c.Locals(middleware.LocalUsername).(string)) }
	app.Get("/read", middleware.RequireAuth(auth), middleware.RequireCapability(model.CapViewStock), ok)
	app.Get("/write", middleware.RequireAuth(auth), middleware.RequireCapability(model.CapPostTransaction), ok)

	tests := []struct {
		path   string
		token  string
		status int
	}{
		{"/read", "", http.StatusUnauthorized},
		{"/read", "unknown", http.StatusUnauthorized},
		{"/read", s.Token, http.StatusOK},
		{"/write", s.Token, http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s with token %q: status %d, want %d", tt.path, tt.token, resp.StatusCode, tt.status)
		}
	}
}
