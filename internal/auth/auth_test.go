package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

func signHS256(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	signed, err := TestToken(secret, sub, 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestTestTokenRequiresSecret(t *testing.T) {
	if _, err := TestToken(nil, "user-1", time.Minute); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestUserIDFromAuthHeaderTestMode(t *testing.T) {
	a, err := New(config.AuthConfig{TestMode: true, TestSecret: "test-secret"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	userID, err := a.UserIDFromAuthHeader("Bearer " + signHS256(t, []byte("test-secret"), "user-123"))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}

	if _, err := a.UserIDFromAuthHeader("Bearer " + signHS256(t, []byte("other"), "user-123")); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestUserIDFromAuthHeaderMalformed(t *testing.T) {
	a := &Auth{TestMode: true, TestSecret: []byte("s")}
	for _, h := range []string{"", "Bearer", "Basic a.b.c", "Bearer nodots"} {
		if _, err := a.UserIDFromAuthHeader(h); err == nil {
			t.Fatalf("expected error for %q", h)
		}
	}
}

func TestNewRequiresAuth0Config(t *testing.T) {
	if _, err := New(config.AuthConfig{}); err == nil {
		t.Fatalf("expected missing Auth0 config error")
	}
	if _, err := New(config.AuthConfig{TestMode: true}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

type fakeAuth struct{ header string }

func (f *fakeAuth) UserIDFromAuthHeader(h string) (string, error) {
	f.header = h
	if h == "" {
		return "", http.ErrNoCookie
	}
	return "user1", nil
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	e := echo.New()
	fa := &fakeAuth{}
	var got string
	h := Middleware(fa)(func(c echo.Context) error {
		got = UserID(c)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/stream?token=a.b.c", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK || got != "user1" {
		t.Fatalf("unexpected result %d %q", rec.Code, got)
	}
	if fa.header != "Bearer a.b.c" {
		t.Fatalf("unexpected header passed to authenticator: %q", fa.header)
	}

	req = httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec = httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
