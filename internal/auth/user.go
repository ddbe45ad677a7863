package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// User is the authenticated account as reported by the backend.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	Metadata     Metadata   `json:"user_metadata"`
}

// Metadata holds the signup attributes attached to the auth record.
type Metadata struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Session is the token bundle issued by the backend for one visitor.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Token converts the session into an oauth2 token so expiry checks and bearer
// transports can be shared with the oauth2 package.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       s.ExpiresAt,
	}
}

// Valid reports whether the access token can still be used.
func (s *Session) Valid() bool {
	return s != nil && s.Token().Valid()
}

// EventKind names the auth-state transitions pushed by the backend client.
type EventKind string

const (
	EventInitialSession   EventKind = "INITIAL_SESSION"
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// Event carries the session that replaces whatever the visitor held before.
// Session is nil for sign-out.
type Event struct {
	Kind    EventKind
	Session *Session
}

// GoogleClaims contains the relevant claims from a Google ID token.
type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
