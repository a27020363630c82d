// Package auth validates caller identity on user-facing endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

const userIDKey = "userID"

// Authenticator resolves the user id carried by an Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Auth validates incoming JWT tokens against Auth0 keys, or an HS256 shared
// secret in test mode.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// New builds an Auth from cfg, fetching the Auth0 key set unless test mode is
// enabled.
func New(cfg config.AuthConfig) (*Auth, error) {
	if cfg.TestMode {
		if cfg.TestSecret == "" {
			return nil, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return &Auth{TestMode: true, TestSecret: []byte(cfg.TestSecret)}, nil
	}
	if cfg.Domain == "" || cfg.Audience == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return &Auth{JWKS: jwks, Audience: cfg.Audience, Issuer: "https://" + cfg.Domain + "/"}, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("bad auth header")
	}
	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return "", errors.New("bad auth header")
	}

	if a.TestMode {
		parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
		token, err := parser.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
			return a.TestSecret, nil
		})
		if err != nil {
			return "", err
		}
		return subject(token)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(tokenStr, a.JWKS.Keyfunc)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}
	return subject(token)
}

func subject(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// Middleware rejects requests without a valid token and stores the caller's
// id on the echo context. Browsers cannot set headers on EventSource or
// WebSocket requests, so a token query parameter is accepted as well.
func Middleware(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}
			userID, err := a.UserIDFromAuthHeader(header)
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the caller id stored by Middleware.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// TestToken signs an HS256 token for userID that Auth accepts in test mode.
func TestToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("test secret must be set")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
