package auth

import (
	"context"
	"errors"
)

// Client is the backend auth surface one visitor talks to. Implementations keep
// the visitor's current session and push every change through OnAuthStateChange
// in the order the changes happen.
type Client interface {
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn func(Event)) (unsubscribe func())

	SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error)
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, error)
	// SignUp returns a nil session when the backend requires email confirmation.
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
	VerifyOTP(ctx context.Context, tokenHash string, kind OTPType) (*Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error)
	SignOut(ctx context.Context) error
}

// Credentials identify an email/password login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpParams is the signup payload including the metadata stored on the auth record.
type SignUpParams struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	Data            Metadata `json:"data"`
	EmailRedirectTo string   `json:"-"`
}

// UserAttributes lists the fields UpdateUser may change.
type UserAttributes struct {
	Password string `json:"password,omitempty"`
}

// OTPType distinguishes email verification links.
type OTPType string

const (
	OTPSignup   OTPType = "signup"
	OTPRecovery OTPType = "recovery"
	OTPEmail    OTPType = "email"
)

// Error is a failure reported by the backend. Message is shown to the user verbatim.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid or expired token")

// Message extracts the user-facing text of an auth failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var backendErr *Error
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	return err.Error()
}
