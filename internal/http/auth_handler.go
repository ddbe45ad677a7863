package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"rigshare/internal/auth"
)

const afterLoginPath = "/dashboard"

var errInvalidLink = errors.New("This link is invalid or has expired")

type authPageOptions struct {
	GoogleEnabled bool
}

func (s *Server) authPage(r *http.Request, form any) page {
	data := s.base(r)
	data.Form = form
	data.Page = authPageOptions{GoogleEnabled: s.google != nil}
	return data
}

// signedIn waits briefly for the visitor's session so pages that only make
// sense when signed out can send signed-in visitors onwards.
func (s *Server) signedIn(r *http.Request) bool {
	v := VisitorFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), s.sessionWait)
	defer cancel()
	return v.Session.Await(ctx).Authenticated()
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if s.signedIn(r) {
		http.Redirect(w, r, afterLoginPath, http.StatusFound)
		return
	}
	data := s.authPage(r, auth.LoginForm{})
	data.Error = loginErrorMessage(r.URL.Query().Get("error"))
	s.views.render(w, http.StatusOK, "login", data)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	form := auth.LoginForm{
		Email:    formValue(r, "email"),
		Password: r.PostFormValue("password"),
	}
	if err := form.Validate(); err != nil {
		s.renderAuthError(w, r, "login", auth.LoginForm{Email: form.Email}, err)
		return
	}

	v := VisitorFromContext(r.Context())
	if _, err := v.Auth.SignInWithPassword(r.Context(), form.Credentials()); err != nil {
		s.logger.Info("password sign-in failed", "visitor_id", v.ID, "error", err)
		s.renderAuthError(w, r, "login", auth.LoginForm{Email: form.Email}, err)
		return
	}
	seeOther(w, r, afterLoginPath)
}

func (s *Server) signupPage(w http.ResponseWriter, r *http.Request) {
	if s.signedIn(r) {
		http.Redirect(w, r, afterLoginPath, http.StatusFound)
		return
	}
	s.views.render(w, http.StatusOK, "signup", s.authPage(r, auth.SignupForm{}))
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	form := auth.SignupForm{
		Username:        formValue(r, "username"),
		FullName:        formValue(r, "full_name"),
		Email:           formValue(r, "email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	echo := auth.SignupForm{Username: form.Username, FullName: form.FullName, Email: form.Email}
	if err := form.Validate(); err != nil {
		s.renderAuthError(w, r, "signup", echo, err)
		return
	}

	v := VisitorFromContext(r.Context())
	session, err := v.Auth.SignUp(r.Context(), form.Params(s.cfg.SiteURL+"/auth/confirm"))
	if err != nil {
		s.logger.Info("sign-up failed", "visitor_id", v.ID, "error", err)
		s.renderAuthError(w, r, "signup", echo, err)
		return
	}
	if session == nil {
		seeOther(w, r, "/verify-email?email="+url.QueryEscape(form.Email))
		return
	}
	seeOther(w, r, afterLoginPath)
}

func (s *Server) verifyEmailPage(w http.ResponseWriter, r *http.Request) {
	data := s.base(r)
	data.Page = map[string]string{"Email": r.URL.Query().Get("email")}
	s.views.render(w, http.StatusOK, "verify_email", data)
}

func (s *Server) forgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusOK, "forgot_password", s.authPage(r, auth.ForgotPasswordForm{}))
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	form := auth.ForgotPasswordForm{Email: formValue(r, "email")}
	if err := form.Validate(); err != nil {
		s.renderAuthError(w, r, "forgot_password", form, err)
		return
	}

	v := VisitorFromContext(r.Context())
	redirectTo := s.cfg.SiteURL + "/auth/confirm?next=" + url.QueryEscape("/reset-password")
	if err := v.Auth.ResetPasswordForEmail(r.Context(), form.Email, redirectTo); err != nil {
		s.renderAuthError(w, r, "forgot_password", form, err)
		return
	}

	data := s.authPage(r, auth.ForgotPasswordForm{})
	data.Notice = "Check your email for a password reset link."
	s.views.render(w, http.StatusOK, "forgot_password", data)
}

// confirm redeems the token hash from a signup or recovery email.
func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tokenHash := strings.TrimSpace(query.Get("token_hash"))
	kind := auth.OTPType(query.Get("type"))
	if kind == "" {
		kind = auth.OTPEmail
	}
	if tokenHash == "" {
		s.renderAuthError(w, r, "login", auth.LoginForm{}, errInvalidLink)
		return
	}

	v := VisitorFromContext(r.Context())
	if _, err := v.Auth.VerifyOTP(r.Context(), tokenHash, kind); err != nil {
		s.logger.Info("email link verification failed", "visitor_id", v.ID, "type", kind, "error", err)
		s.renderAuthError(w, r, "login", auth.LoginForm{}, err)
		return
	}

	next := afterLoginPath
	if kind == auth.OTPRecovery {
		next = "/reset-password"
	} else if candidate := query.Get("next"); isValidRedirectPath(candidate) {
		next = candidate
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (s *Server) resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, http.StatusOK, "reset_password", s.authPage(r, auth.ResetPasswordForm{}))
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	form := auth.ResetPasswordForm{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	if err := form.Validate(); err != nil {
		s.renderAuthError(w, r, "reset_password", auth.ResetPasswordForm{}, err)
		return
	}

	v := VisitorFromContext(r.Context())
	if _, err := v.Auth.UpdateUser(r.Context(), auth.UserAttributes{Password: form.Password}); err != nil {
		s.renderAuthError(w, r, "reset_password", auth.ResetPasswordForm{}, err)
		return
	}

	data := s.authPage(r, auth.ResetPasswordForm{})
	data.Notice = "Your password has been updated."
	s.views.render(w, http.StatusOK, "reset_password", data)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	v := VisitorFromContext(r.Context())
	if err := v.Session.SignOut(r.Context()); err != nil {
		s.logger.Warn("sign out failed", "visitor_id", v.ID, "error", err)
		data := s.base(r)
		data.Error = auth.Message(err)
		s.views.render(w, http.StatusBadGateway, "home", data)
		return
	}
	seeOther(w, r, "/")
}

// renderAuthError re-renders a form with the failure message shown verbatim.
func (s *Server) renderAuthError(w http.ResponseWriter, r *http.Request, name string, form any, err error) {
	data := s.authPage(r, form)
	data.Error = auth.Message(err)
	s.views.render(w, http.StatusUnprocessableEntity, name, data)
}
