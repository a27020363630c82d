// Package api serves the user endpoints.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/butvinm-itmo/highload-sub001/internal/auth"
	"github.com/butvinm-itmo/highload-sub001/user-service/domain"
)

// Users manages accounts.
type Users interface {
	CreateUser(ctx context.Context, username string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type createUserRequest struct {
	Username string `json:"username"`
}

// Register wires up the user routes on the given Echo instance. Lookups under
// /internal are meant for other services and are not exposed by the gateway.
func Register(e *echo.Echo, users Users, a auth.Authenticator) {
	g := e.Group("/api/users", auth.Middleware(a))
	g.POST("", createUser(users))
	g.DELETE("/:id", deleteUser(users))
	e.GET("/internal/users/:id", getUser(users))
}

func createUser(users Users) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createUserRequest
		if err := c.Bind(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		u, err := users.CreateUser(c.Request().Context(), req.Username)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, u)
	}
}

func getUser(users Users) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := users.GetUser(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, u)
	}
}

func deleteUser(users Users) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := users.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return c.String(http.StatusConflict, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
