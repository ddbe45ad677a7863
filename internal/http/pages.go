package http

import (
	"context"
	"errors"
	"net/http"

	"rigshare/internal/auth"
	"rigshare/internal/guard"
	"rigshare/internal/profile"
	"rigshare/internal/wishlist"
)

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusOK, "home", s.base(r))
}

func (s *Server) comingSoon(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusOK, "coming_soon", s.base(r))
}

type wishlistForm struct {
	FullName          string
	Email             string
	Occupation        string
	FavouriteGames    string
	AdditionalMessage string
}

func (s *Server) wishlistPage(w http.ResponseWriter, r *http.Request) {
	data := s.base(r)
	data.Form = wishlistForm{}
	data.Page = map[string]bool{"Submitted": false}
	s.views.render(w, http.StatusOK, "wishlist", data)
}

func (s *Server) wishlistSubmit(w http.ResponseWriter, r *http.Request) {
	form := wishlistForm{
		FullName:          formValue(r, "full_name"),
		Email:             formValue(r, "email"),
		Occupation:        formValue(r, "occupation"),
		FavouriteGames:    formValue(r, "favourite_games"),
		AdditionalMessage: formValue(r, "additional_message"),
	}
	data := s.base(r)
	data.Form = form

	_, err := s.wishlist.Create(r.Context(), wishlist.Input(form))
	if err != nil {
		if !errors.Is(err, wishlist.ErrValidation) {
			s.logger.Warn("wishlist signup failed", "error", err)
		}
		data.Error = auth.Message(err)
		data.Page = map[string]bool{"Submitted": false}
		s.views.render(w, http.StatusUnprocessableEntity, "wishlist", data)
		return
	}

	data.Page = map[string]bool{"Submitted": true}
	s.views.render(w, http.StatusOK, "wishlist", data)
}

// staticPage renders a guarded page that needs nothing beyond the session.
func (s *Server) staticPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.views.render(w, http.StatusOK, name, s.base(r))
	}
}

// loadProfile resolves the second, profile-scoped checking state. When the
// row is still loading it renders the loading page and reports false.
func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request) (profile.Result, *auth.User, bool) {
	state, _ := stateFromContext(r.Context())
	v := VisitorFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), s.profileWait)
	defer cancel()
	res := v.Profiles.Get(ctx, state.User.ID)

	if guard.ProfilePhase(res.Loading) == guard.PhaseChecking {
		s.renderLoading(w, r, "Loading your profile…")
		return res, nil, false
	}
	return res, state.User, true
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	data := s.base(r)
	if res.Err != nil && res.Data == nil {
		data.Error = "We could not load your profile right now."
	}
	data.Page = map[string]bool{"ProfileMissing": res.NotFound()}
	s.views.render(w, http.StatusOK, "dashboard", data)
}

type profileView struct {
	FullName       string
	Email          string
	Country        string
	Bio            string
	AvatarURL      string
	MemberSince    string
	ProfileMissing bool
}

func (s *Server) profilePage(w http.ResponseWriter, r *http.Request) {
	res, user, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	data := s.base(r)
	view := profileView{Email: user.Email, ProfileMissing: res.NotFound()}
	if p := res.Data; p != nil {
		view.FullName = p.FullName()
		view.Country = profile.Value(p.Country)
		view.Bio = profile.Value(p.Bio)
		view.AvatarURL = profile.Value(p.AvatarURL)
		if p.CreatedAt != nil {
			view.MemberSince = p.CreatedAt.Format("January 2006")
		}
		if email := profile.Value(p.Email); email != "" {
			view.Email = email
		}
	}
	if view.FullName == "" {
		view.FullName = user.Metadata.FullName
	}
	if res.Err != nil && res.Data == nil {
		data.Error = "We could not load your profile right now."
	}
	data.Page = view
	s.views.render(w, http.StatusOK, "profile", data)
}

type wishlistRequest struct {
	FullName          string `json:"full_name"`
	Email             string `json:"email"`
	Occupation        string `json:"occupation"`
	FavouriteGames    string `json:"favourite_games"`
	AdditionalMessage string `json:"additional_message"`
}

// createWishlistEntry is the JSON form of the waitlist signup, for the
// marketing pages' inline form.
func (s *Server) createWishlistEntry(w http.ResponseWriter, r *http.Request) {
	var req wishlistRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	entry, err := s.wishlist.Create(r.Context(), wishlist.Input(req))
	if err != nil {
		if !errors.Is(err, wishlist.ErrValidation) {
			s.logger.Warn("wishlist signup failed", "error", err)
		}
		writeError(w, http.StatusUnprocessableEntity, auth.Message(err))
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
