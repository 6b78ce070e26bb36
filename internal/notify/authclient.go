package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// AuthClient calls the auth service's role management API.
type AuthClient struct {
	http *resty.Client
}

// NewAuthClient creates an AuthClient for the auth service at baseURL.
func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &AuthClient{http: client}
}

type upgradeRoleRequest struct {
	UserID  string `json:"userId"`
	NewRole string `json:"newRole"`
}

// UpgradeRole grants role to the user.
func (c *AuthClient) UpgradeRole(ctx context.Context, userID, role string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(upgradeRoleRequest{UserID: userID, NewRole: role}).
		Put("/auth/upgrade-role")
	if err != nil {
		return fmt.Errorf("upgrade role: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upgrade role: auth service returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
