package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"rigshare/internal/auth"
)

// oauthStatePayload holds the CSRF state and optional redirect path.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

type googleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleIdentity, error)
	IsEmailAllowed(email string) bool
}

// OAuthHandler runs the Google consent round trip and hands the verified ID
// token to the visitor's auth client, which obtains the backend session.
type OAuthHandler struct {
	google       googleAuthenticator
	logger       *slog.Logger
	secureCookie bool
	siteURL      string
}

func newOAuthHandler(google googleAuthenticator, siteURL string, secureCookie bool, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		google:       google,
		logger:       logger,
		secureCookie: secureCookie,
		siteURL:      strings.TrimSuffix(siteURL, "/"),
	}
}

// InitiateGoogle handles GET /auth/google
// Redirects the user to Google's OAuth consent screen.
func (h *OAuthHandler) InitiateGoogle(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		h.redirectWithError(w, r, "internal_error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	redirectTo := r.URL.Query().Get("redirectTo")
	payload := oauthStatePayload{State: state}
	if redirectTo != "" && isValidRedirectPath(redirectTo) {
		payload.RedirectTo = redirectTo
	}

	// Encode state as base64 JSON to avoid delimiter issues
	stateJSON, _ := json.Marshal(payload)
	fullState := base64.RawURLEncoding.EncodeToString(stateJSON)

	http.Redirect(w, r, h.google.AuthURL(fullState), http.StatusTemporaryRedirect)
}

// CallbackGoogle handles GET /auth/google/callback
func (h *OAuthHandler) CallbackGoogle(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "session_expired")
		return
	}

	stateBytes, err := base64.RawURLEncoding.DecodeString(r.URL.Query().Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback: invalid state encoding")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	var statePayload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &statePayload); err != nil {
		h.logger.Warn("oauth callback: invalid state JSON")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	redirectTo := afterLoginPath
	if statePayload.RedirectTo != "" && isValidRedirectPath(statePayload.RedirectTo) {
		redirectTo = statePayload.RedirectTo
	}

	if subtle.ConstantTimeCompare([]byte(statePayload.State), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam, "description", r.URL.Query().Get("error_description"))
		code := "provider_error"
		if errParam == "access_denied" {
			code = errParam
		}
		h.redirectWithError(w, r, code)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "missing_code")
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", "error", err)
		h.redirectWithError(w, r, "exchange_error")
		return
	}

	if !h.google.IsEmailAllowed(identity.Claims.Email) {
		h.logger.Warn("oauth callback: email not allowed", "email", identity.Claims.Email)
		h.redirectWithError(w, r, "not_allowed")
		return
	}

	v := VisitorFromContext(r.Context())
	if v == nil {
		h.redirectWithError(w, r, "internal_error")
		return
	}
	session, err := v.Auth.SignInWithIDToken(r.Context(), "google", identity.RawIDToken)
	if err != nil || session == nil {
		h.logger.Error("oauth callback: backend sign-in failed", "error", err)
		h.redirectWithError(w, r, "internal_error")
		return
	}

	h.logger.Info("oauth login successful", "user_id", session.User.ID, "visitor_id", v.ID)
	http.Redirect(w, r, h.siteURL+redirectTo, http.StatusTemporaryRedirect)
}

// loginErrors are the only texts the login page shows for an ?error= code.
var loginErrors = map[string]string{
	"session_expired": "Session expired. Please try again.",
	"invalid_request": "Invalid state. Please try again.",
	"missing_code":    "Missing authorization code.",
	"access_denied":   "Google sign-in was cancelled.",
	"provider_error":  "Google could not sign you in. Please try again.",
	"exchange_error":  "Failed to complete authentication.",
	"not_allowed":     "Your account is not on the early-access list yet.",
	"internal_error":  "Google sign-in failed. Please try again.",
}

// loginErrorMessage maps an error code to its banner text. Unknown codes show nothing.
func loginErrorMessage(code string) string {
	return loginErrors[code]
}

// redirectWithError sends the visitor to the login page with an error code.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.siteURL+"/login?error="+url.QueryEscape(code), http.StatusTemporaryRedirect)
}
