package http

import (
	"context"
	"net/http"

	"rigshare/internal/auth"
	"rigshare/internal/profile"
)

type sessionPayload struct {
	IsLoading     bool       `json:"isLoading"`
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user"`
	ExpiresAt     *int64     `json:"expiresAt,omitempty"`
}

// sessionStatus reports the visitor's auth state without waiting for it to resolve.
func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	v := VisitorFromContext(r.Context())
	state := v.Session.Snapshot()

	payload := sessionPayload{
		IsLoading:     state.IsLoading,
		Authenticated: state.Authenticated(),
		User:          state.User,
	}
	if state.Session != nil {
		expires := state.Session.ExpiresAt.Unix()
		payload.ExpiresAt = &expires
	}
	writeJSON(w, http.StatusOK, payload)
}

type profilePayload struct {
	Data       *profile.Profile `json:"data"`
	Error      string           `json:"error,omitempty"`
	IsLoading  bool             `json:"isLoading"`
	IsDisabled bool             `json:"isDisabled"`
	Refreshing bool             `json:"isRefreshing"`
}

// profileStatus exposes the visitor's profile cache entry. Anonymous visitors
// get a disabled result and no fetch is made for them.
func (s *Server) profileStatus(w http.ResponseWriter, r *http.Request) {
	v := VisitorFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), s.sessionWait)
	state := v.Session.Await(ctx)
	cancel()

	userID := ""
	if state.Authenticated() {
		userID = state.User.ID
	}

	ctx, cancel = context.WithTimeout(r.Context(), s.profileWait)
	defer cancel()
	res := v.Profiles.Get(ctx, userID)

	payload := profilePayload{
		Data:       res.Data,
		IsLoading:  res.Loading,
		IsDisabled: res.Disabled,
		Refreshing: res.Refreshing,
	}
	if res.Err != nil {
		payload.Error = auth.Message(res.Err)
	}
	writeJSON(w, http.StatusOK, payload)
}
