package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func testManager(requireAuth bool) *Manager {
	return NewManager(Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
		RequireAuth:     requireAuth,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(true)

	user := User{ID: "u1", Email: "ops@example.com", Name: "Ops", Roles: []string{RoleApprover}}
	token, err := m.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Email != user.Email || !got.hasRole(RoleApprover) {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := testManager(true).GenerateToken(User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := NewManager(Config{JWTSecret: "different-secret"})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation failure with wrong secret")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	m := testManager(true)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/audit")

	handler := m.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareSkipsPublicPaths(t *testing.T) {
	m := testManager(true)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	handler := m.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on public path, got %d", rec.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	m := testManager(true)
	token, _ := m.GenerateToken(User{ID: "u1", Email: "ops@example.com", Roles: []string{RoleViewer}})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/audit")

	var seen *User
	handler := m.Middleware()(func(c echo.Context) error {
		seen = GetUserFromContext(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.Email != "ops@example.com" {
		t.Errorf("user not propagated: %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	m := testManager(true)
	e := echo.New()

	run := func(user *User) int {
		req := httptest.NewRequest(http.MethodPost, "/confirmations/x/approve", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if user != nil {
			c.Set(userContextKey, user)
		}

		handler := m.RequireRole(RoleApprover)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := handler(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return rec.Code
	}

	if code := run(nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", code)
	}
	if code := run(&User{Roles: []string{RoleViewer}}); code != http.StatusForbidden {
		t.Errorf("viewer: expected 403, got %d", code)
	}
	if code := run(&User{Roles: []string{RoleApprover}}); code != http.StatusOK {
		t.Errorf("approver: expected 200, got %d", code)
	}
}

func TestLoginWithConfiguredUsers(t *testing.T) {
	t.Setenv("AUTH_USERS", "ops@example.com:s3cret:Ops:approver,viewer")

	m := testManager(true)
	h := NewHandler(m)
	e := echo.New()

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.Login(c); err != nil {
			t.Fatalf("login: %v", err)
		}
		return rec
	}

	rec := login(`{"email":"ops@example.com","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = login(`{"email":"ops@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", rec.Code)
	}
}
