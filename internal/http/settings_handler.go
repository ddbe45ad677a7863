package http

import (
	"errors"
	"net/http"

	"rigshare/internal/account"
	"rigshare/internal/auth"
	"rigshare/internal/countries"
	"rigshare/internal/profile"
	"rigshare/internal/storage"
)

// maxAvatarFormBytes leaves room for multipart framing around the image itself.
const maxAvatarFormBytes = storage.MaxAvatarBytes + 512<<10

type settingsView struct {
	Countries []countries.Country
	AvatarURL string
	Username  string
}

func (s *Server) settingsPage(w http.ResponseWriter, r *http.Request) {
	res, user, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	form := profile.FormFrom(res.Data)
	if form.Username == "" {
		form.Username = user.Metadata.Username
	}
	data := s.settingsData(r, res.Data, user, form)
	if res.Err != nil && res.Data == nil {
		data.Error = "We could not load your profile right now."
	}
	s.views.render(w, http.StatusOK, "settings", data)
}

func (s *Server) settingsData(r *http.Request, p *profile.Profile, user *auth.User, form profile.Form) page {
	data := s.base(r)
	data.Form = form
	view := settingsView{
		AvatarURL: profile.Value(nilSafe(p).AvatarURL),
		Username:  profile.Username(p, user),
	}
	if s.countries != nil {
		list, err := s.countries.List(r.Context())
		if err != nil {
			// The country field falls back to free text.
			s.logger.Warn("country list unavailable", "error", err)
		}
		view.Countries = list
	}
	data.Page = view
	return data
}

func nilSafe(p *profile.Profile) *profile.Profile {
	if p == nil {
		return &profile.Profile{}
	}
	return p
}

// cachedProfile returns whatever the visitor's cache holds without waiting.
func cachedProfile(r *http.Request, userID string) *profile.Profile {
	v := VisitorFromContext(r.Context())
	if res, ok := v.Profiles.Peek(userID); ok {
		return res.Data
	}
	return nil
}

// saveSettings sends every form field, changed or not, and writes the stored
// row back into the cache so other pages see it without a refetch.
func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	state, _ := stateFromContext(r.Context())
	v := VisitorFromContext(r.Context())
	user := state.User

	form := profile.Form{
		Username:     r.PostFormValue("username"),
		FirstName:    r.PostFormValue("first_name"),
		LastName:     r.PostFormValue("last_name"),
		DateOfBirth:  r.PostFormValue("date_of_birth"),
		Country:      r.PostFormValue("country"),
		MobileNumber: r.PostFormValue("mobile_number"),
		Bio:          r.PostFormValue("bio"),
	}

	stored, err := v.Settings.Save(r.Context(), user.ID, form)
	if err != nil {
		if !errors.Is(err, profile.ErrValidation) {
			s.logger.Warn("profile save failed", "user_id", user.ID, "error", err)
		}
		data := s.settingsData(r, cachedProfile(r, user.ID), user, form.Normalize())
		data.Error = auth.Message(err)
		s.views.render(w, http.StatusUnprocessableEntity, "settings", data)
		return
	}

	v.Profiles.SetCached(user.ID, stored)
	data := s.settingsData(r, cachedProfile(r, user.ID), user, profile.FormFrom(&stored))
	data.Notice = "Profile updated."
	s.views.render(w, http.StatusOK, "settings", data)
}

func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	state, _ := stateFromContext(r.Context())
	v := VisitorFromContext(r.Context())
	user := state.User

	fail := func(status int, message string) {
		p := cachedProfile(r, user.ID)
		data := s.settingsData(r, p, user, profile.FormFrom(p))
		data.Error = message
		s.views.render(w, status, "settings", data)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarFormBytes)
	if err := r.ParseMultipartForm(maxAvatarFormBytes); err != nil {
		fail(http.StatusRequestEntityTooLarge, "Avatar must be 2 MB or smaller")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		fail(http.StatusBadRequest, "Choose an image to upload")
		return
	}
	defer func() { _ = file.Close() }()

	stored, err := v.Settings.UploadAvatar(r.Context(), user.ID, storage.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrInvalidUpload) {
			s.logger.Error("avatar upload failed", "user_id", user.ID, "error", err)
			// The file may be stored while the row write failed.
			v.Profiles.Invalidate(user.ID)
		}
		fail(http.StatusUnprocessableEntity, auth.Message(err))
		return
	}

	v.Profiles.SetCached(user.ID, stored)
	seeOther(w, r, "/settings")
}

// deleteAccount runs the typed-confirmation deletion. On success the visitor
// is signed out and sent home after account.RedirectDelay.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	state, _ := stateFromContext(r.Context())
	v := VisitorFromContext(r.Context())
	user := state.User
	p := cachedProfile(r, user.ID)

	outcome, err := s.deletion.Delete(r.Context(), account.Request{
		Typed:    r.PostFormValue("confirmation"),
		Username: profile.Username(p, user),
		Tokens:   v.Auth.TokenSource(r.Context()),
		SignOut:  v.Session.SignOut,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		if !errors.Is(err, account.ErrConfirmationMismatch) {
			s.logger.Error("account deletion failed", "user_id", user.ID, "error", err)
			status = http.StatusBadGateway
		}
		data := s.settingsData(r, p, user, profile.FormFrom(p))
		data.Error = auth.Message(err)
		s.views.render(w, status, "settings", data)
		return
	}

	s.logger.Info("account deleted", "user_id", user.ID, "visitor_id", v.ID)
	data := page{
		ProductionMode: s.cfg.ProductionMode,
		RefreshAfter:   int(outcome.RedirectAfter.Seconds()),
		RefreshTo:      "/",
		Page:           map[string]string{"Message": outcome.Message},
	}
	s.views.render(w, http.StatusOK, "account_deleted", data)
}
