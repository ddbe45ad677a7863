package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"rigshare/internal/auth"
)

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         auth.User `json:"user"`
}

func (t tokenResponse) session(now time.Time) *auth.Session {
	expiresAt := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		expiresAt = time.Unix(t.ExpiresAt, 0)
	}
	return &auth.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt,
		User:         t.User,
	}
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*auth.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.session(time.Now()), nil
}

// PasswordGrant signs in with email and password.
func (c *Client) PasswordGrant(ctx context.Context, creds auth.Credentials) (*auth.Session, error) {
	return c.token(ctx, "password", creds)
}

// IDTokenGrant signs in with a verified third-party ID token.
func (c *Client) IDTokenGrant(ctx context.Context, provider, idToken string) (*auth.Session, error) {
	return c.token(ctx, "id_token", map[string]string{"provider": provider, "id_token": idToken})
}

// RefreshGrant trades a refresh token for a new session. Refresh tokens rotate.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*auth.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp registers an account; the session is nil when confirmation is required.
func (c *Client) SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Session, error) {
	query := url.Values{}
	if params.EmailRedirectTo != "" {
		query.Set("redirect_to", params.EmailRedirectTo)
	}

	var resp signUpResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  query,
		body:   params,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, nil
	}
	return resp.session(time.Now()), nil
}

// Verify redeems an emailed token hash.
func (c *Client) Verify(ctx context.Context, tokenHash string, kind auth.OTPType) (*auth.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body:   map[string]string{"type": string(kind), "token_hash": tokenHash},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.session(time.Now()), nil
}

// Recover sends a password recovery email.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  query,
		body:   map[string]string{"email": email},
	}, nil)
}

// UpdateUser changes attributes of the user owning accessToken.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs auth.UserAttributes) (*auth.User, error) {
	var user auth.User
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   attrs,
		bearer: accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the session behind accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		query:  url.Values{"scope": {"local"}},
		bearer: accessToken,
	}, nil)
}

var _ AuthAPI = (*Client)(nil)
