package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Admin performs privileged auth operations with the service-role key.
type Admin struct {
	c *Client
}

// NewAdmin creates an Admin. It fails fast when no service key is configured.
func (c *Client) NewAdmin() (*Admin, error) {
	if c.serviceKey == "" {
		return nil, errors.New("backend service key is not configured")
	}
	return &Admin{c: c}, nil
}

// DeleteUser removes the auth record for userID.
func (a *Admin) DeleteUser(ctx context.Context, userID string) error {
	return a.c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/auth/v1/admin/users/" + url.PathEscape(userID),
		apiKey: a.c.serviceKey,
	}, nil)
}
