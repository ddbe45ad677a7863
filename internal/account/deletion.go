// Package account implements irreversible account deletion: the typed
// confirmation gate, the client side of the deletion function call and the
// server-side purge the function performs.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// RedirectDelay is how long the success page waits before sending the visitor home.
const RedirectDelay = 3 * time.Second

// ErrConfirmationMismatch is returned when the typed text is not the username.
var ErrConfirmationMismatch = errors.New("confirmation text does not match your username")

// CanDelete reports whether typed unlocks deletion: it must equal the stored
// username exactly, with no trimming or case folding. An account without a
// username can never be confirmed.
func CanDelete(typed, username string) bool {
	return username != "" && typed == username
}

// Invoker calls the deletion function on behalf of the token owner.
type Invoker interface {
	DeleteUser(ctx context.Context, ts oauth2.TokenSource) (string, error)
}

// Request is one confirmed deletion attempt.
type Request struct {
	Typed    string
	Username string
	Tokens   oauth2.TokenSource
	// SignOut ends the visitor's session after the function succeeds.
	SignOut func(ctx context.Context) error
}

// Outcome is shown on the success page.
type Outcome struct {
	Message       string
	RedirectAfter time.Duration
}

// Deletion drives the client side of account deletion.
type Deletion struct {
	invoker Invoker
	logger  *slog.Logger
}

// NewDeletion creates a Deletion that calls invoker.
func NewDeletion(invoker Invoker, logger *slog.Logger) *Deletion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deletion{invoker: invoker, logger: logger}
}

// Delete checks the gate, makes exactly one function call and signs out on
// success. Nothing is retried.
func (d *Deletion) Delete(ctx context.Context, req Request) (Outcome, error) {
	if !CanDelete(req.Typed, req.Username) {
		return Outcome{}, ErrConfirmationMismatch
	}
	if req.Tokens == nil {
		return Outcome{}, errors.New("not signed in")
	}

	message, err := d.invoker.DeleteUser(ctx, req.Tokens)
	if err != nil {
		return Outcome{}, err
	}

	if req.SignOut != nil {
		if err := req.SignOut(ctx); err != nil {
			// The account is already gone; the stale session dies with the visitor cookie.
			d.logger.Warn("sign out after account deletion failed", "error", err)
		}
	}

	if message == "" {
		message = "Your account has been deleted"
	}
	return Outcome{Message: message, RedirectAfter: RedirectDelay}, nil
}

// FunctionError is a non-2xx reply from the deletion function.
type FunctionError struct {
	Status  int
	Message string
}

func (e *FunctionError) Error() string {
	return e.Message
}

func wrapCall(err error) error {
	return fmt.Errorf("call delete-user function: %w", err)
}
