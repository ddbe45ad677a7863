package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleAuthenticator runs the Google OIDC consent flow for "Continue with Google".
type GoogleAuthenticator struct {
	config         *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	allowedDomains map[string]struct{}
	allowedEmails  map[string]struct{}
}

// NewGoogleAuthenticator creates a new GoogleAuthenticator.
func NewGoogleAuthenticator(ctx context.Context, clientID, clientSecret, redirectURL string, allowedDomains, allowedEmails []string) (*GoogleAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	return &GoogleAuthenticator{
		config:         config,
		verifier:       verifier,
		allowedDomains: lowerSet(allowedDomains),
		allowedEmails:  lowerSet(allowedEmails),
	}, nil
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// AuthURL returns the consent URL; the account chooser is always shown.
func (g *GoogleAuthenticator) AuthURL(state string) string {
	return g.config.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// GoogleIdentity is the verified result of a Google consent round trip. RawIDToken
// is handed to the backend, which issues the actual session.
type GoogleIdentity struct {
	Claims     GoogleClaims
	RawIDToken string
}

// Exchange trades the authorization code for tokens and verifies the ID token.
func (g *GoogleAuthenticator) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("no id_token in response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	identity := &GoogleIdentity{RawIDToken: rawIDToken}
	if err := idToken.Claims(&identity.Claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if !identity.Claims.EmailVerified {
		return nil, fmt.Errorf("google account email is not verified")
	}

	return identity, nil
}

// IsEmailAllowed applies the early-access allowlist. With no allowlist configured
// every verified Google account may sign in.
func (g *GoogleAuthenticator) IsEmailAllowed(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, ok := g.allowedEmails[email]; ok {
		return true
	}

	if _, domain, found := strings.Cut(email, "@"); found {
		if _, ok := g.allowedDomains[domain]; ok {
			return true
		}
	}

	return len(g.allowedDomains) == 0 && len(g.allowedEmails) == 0
}

// HasAllowlist returns true if any allowlist restrictions are configured.
func (g *GoogleAuthenticator) HasAllowlist() bool {
	return len(g.allowedDomains) > 0 || len(g.allowedEmails) > 0
}

// GenerateState returns a random value for the OAuth state cookie.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
