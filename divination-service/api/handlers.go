// Package api serves the spread write endpoints.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/butvinm-itmo/highload-sub001/divination-service/domain"
	"github.com/butvinm-itmo/highload-sub001/internal/auth"
)

const maxBodySize = 64 << 10

// Spreads creates spreads and interpretations.
type Spreads interface {
	CreateSpread(ctx context.Context, authorID string, req domain.NewSpread) (*domain.Spread, error)
	AddInterpretation(ctx context.Context, spreadID, authorID, text string) (*domain.Interpretation, error)
}

type interpretationRequest struct {
	Text string `json:"text"`
}

// Register wires up the spread routes on the given Echo instance.
func Register(e *echo.Echo, spreads Spreads, a auth.Authenticator) {
	g := e.Group("/api/spreads", auth.Middleware(a))
	g.POST("", createSpread(spreads))
	g.POST("/:id/interpretations", addInterpretation(spreads))
}

func createSpread(spreads Spreads) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.NewSpread
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		spread, err := spreads.CreateSpread(c.Request().Context(), auth.UserID(c), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, spread)
	}
}

func addInterpretation(spreads Spreads) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req interpretationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		interp, err := spreads.AddInterpretation(c.Request().Context(), c.Param("id"), auth.UserID(c), req.Text)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, interp)
	}
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
