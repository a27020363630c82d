package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/butvinm-itmo/highload-sub001/divination-service/domain"
)

func newUserServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/internal/users/:id", func(c echo.Context) error {
		switch c.Param("id") {
		case "alice":
			return c.JSON(http.StatusOK, map[string]string{"id": "alice", "username": "Alice"})
		case "broken":
			return c.String(http.StatusOK, "{")
		case "flaky":
			return c.NoContent(http.StatusBadGateway)
		}
		return c.NoContent(http.StatusNotFound)
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestUserClientUsername(t *testing.T) {
	c := NewUserClient(newUserServer(t).URL + "/")
	name, err := c.Username(context.Background(), "alice")
	if err != nil {
		t.Fatalf("username: %v", err)
	}
	if name != "Alice" {
		t.Fatalf("unexpected username %q", name)
	}
}

func TestUserClientErrors(t *testing.T) {
	c := NewUserClient(newUserServer(t).URL)
	if _, err := c.Username(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, id := range []string{"broken", "flaky"} {
		_, err := c.Username(context.Background(), id)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s: expected a non not-found error, got %v", id, err)
		}
	}
}
