package guard

import (
	"testing"

	"rigshare/internal/auth"
)

func TestEvaluateTransitionTable(t *testing.T) {
	session := &auth.Session{AccessToken: "a", User: auth.User{ID: "user-1"}}

	tests := []struct {
		name  string
		state auth.State
		want  Decision
	}{
		{name: "loading without session", state: auth.State{IsLoading: true}, want: Decision{Phase: PhaseChecking}},
		{name: "loading with stale session", state: auth.State{IsLoading: true, Session: session}, want: Decision{Phase: PhaseChecking}},
		{name: "resolved anonymous", state: auth.State{}, want: Decision{Phase: PhaseAnonymous, Redirect: "/login"}},
		{name: "resolved authenticated", state: auth.State{Session: session, User: &session.User}, want: Decision{Phase: PhaseAuthenticated}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.state); got != tt.want {
				t.Fatalf("Evaluate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProfilePhase(t *testing.T) {
	if ProfilePhase(true) != PhaseChecking || ProfilePhase(false) != PhaseAuthenticated {
		t.Fatal("unexpected profile phases")
	}
}
