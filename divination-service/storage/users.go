package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/butvinm-itmo/highload-sub001/divination-service/domain"
)

// UserClient looks users up in the user service.
type UserClient struct {
	baseURL string
	client  *http.Client
}

// NewUserClient creates a client for the user service at baseURL.
func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Username returns the username of userID. Unknown users yield
// domain.ErrNotFound.
func (c *UserClient) Username(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("user service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", domain.ErrNotFound
	default:
		return "", fmt.Errorf("user service: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("user service: %w", err)
	}
	var u userResponse
	if err := sonic.Unmarshal(body, &u); err != nil {
		return "", fmt.Errorf("user service: decode: %w", err)
	}
	return u.Username, nil
}
