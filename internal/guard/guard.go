// Package guard decides what a protected page shows for a given session state.
package guard

import "rigshare/internal/auth"

// Phase is the page's position in the checking → authenticated | anonymous machine.
type Phase string

const (
	PhaseChecking      Phase = "checking"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// LoginPath is where anonymous visitors are sent.
const LoginPath = "/login"

// Decision is the pure result of evaluating a session state.
type Decision struct {
	Phase Phase
	// Redirect is set only for anonymous visitors.
	Redirect string
}

// Evaluate maps a session state to a decision. While loading nothing
// navigates; once resolved, a missing session redirects to the login page
// exactly once and a present session shows the page.
func Evaluate(state auth.State) Decision {
	switch {
	case state.IsLoading:
		return Decision{Phase: PhaseChecking}
	case state.Session == nil:
		return Decision{Phase: PhaseAnonymous, Redirect: LoginPath}
	default:
		return Decision{Phase: PhaseAuthenticated}
	}
}

// ProfilePhase is the second checking state pages that need profile data use.
func ProfilePhase(loading bool) Phase {
	if loading {
		return PhaseChecking
	}
	return PhaseAuthenticated
}
