package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"rigshare/internal/auth"
)

// encodeOAuthState creates a base64-encoded JSON state payload for testing
func encodeOAuthState(state, redirectTo string) string {
	payload := oauthStatePayload{State: state, RedirectTo: redirectTo}
	data, _ := json.Marshal(payload)
	return base64.RawURLEncoding.EncodeToString(data)
}

type fakeGoogleAuthenticator struct {
	authURLBase      string
	lastState        string
	exchangeIdentity *auth.GoogleIdentity
	exchangeErr      error
	allowEmail       bool
}

func (f *fakeGoogleAuthenticator) AuthURL(state string) string {
	f.lastState = state
	if f.authURLBase == "" {
		f.authURLBase = "https://accounts.google.com/auth?state="
	}
	return f.authURLBase + state
}

func (f *fakeGoogleAuthenticator) Exchange(ctx context.Context, code string) (*auth.GoogleIdentity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeIdentity, nil
}

func (f *fakeGoogleAuthenticator) IsEmailAllowed(email string) bool {
	return f.allowEmail
}

// googleIdentity builds an identity whose raw token carries the given email.
// The in-memory backend reads the claims without checking the signature.
func googleIdentity(t *testing.T, email, name string) *auth.GoogleIdentity {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            "google-sub",
		"email":          email,
		"email_verified": true,
		"name":           name,
	}).SignedString([]byte("google-test-key"))
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return &auth.GoogleIdentity{
		Claims:     auth.GoogleClaims{Sub: "google-sub", Email: email, EmailVerified: true, Name: name},
		RawIDToken: raw,
	}
}

func callbackRequest(state, query string) *http.Request {
	target := "/auth/google/callback?state=" + url.QueryEscape(encodeOAuthState(state, "")) + query
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookieName, Value: state})
	return req
}

func TestOAuthInitiateGoogleSetsStateCookieAndRedirects(t *testing.T) {
	google := &fakeGoogleAuthenticator{allowEmail: true}
	handler := newOAuthHandler(google, "http://frontend.test", false, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google?redirectTo=/settings", nil)
	rec := httptest.NewRecorder()

	handler.InitiateGoogle(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookieName {
			stateCookie = c
			break
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("expected state cookie to be set")
	}
	if stateCookie.Path != "/auth" || !stateCookie.HttpOnly {
		t.Fatalf("expected HttpOnly cookie scoped to /auth, got path %q", stateCookie.Path)
	}

	stateBytes, err := base64.RawURLEncoding.DecodeString(google.lastState)
	if err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	var statePayload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &statePayload); err != nil {
		t.Fatalf("failed to parse state JSON: %v", err)
	}
	if statePayload.State != stateCookie.Value {
		t.Fatalf("expected state to match cookie value %q, got %q", stateCookie.Value, statePayload.State)
	}
	if statePayload.RedirectTo != "/settings" {
		t.Fatalf("expected redirectTo to be /settings, got %q", statePayload.RedirectTo)
	}

	if location := rec.Header().Get("Location"); location != google.authURLBase+google.lastState {
		t.Fatalf("expected redirect to %q, got %q", google.authURLBase+google.lastState, location)
	}
}

func TestOAuthInitiateGoogleDropsUnsafeRedirect(t *testing.T) {
	google := &fakeGoogleAuthenticator{}
	handler := newOAuthHandler(google, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.InitiateGoogle(rec, httptest.NewRequest(http.MethodGet, "/auth/google?redirectTo=//evil.test", nil))

	stateBytes, _ := base64.RawURLEncoding.DecodeString(google.lastState)
	var statePayload oauthStatePayload
	_ = json.Unmarshal(stateBytes, &statePayload)
	if statePayload.RedirectTo != "" {
		t.Fatalf("expected unsafe redirect to be dropped, got %q", statePayload.RedirectTo)
	}
}

func TestOAuthCallbackRejectsMissingStateCookie(t *testing.T) {
	handler := newOAuthHandler(&fakeGoogleAuthenticator{}, "http://frontend.test", false, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=abc", nil)
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "/login?error=session_expired") {
		t.Fatalf("expected session_expired redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackRejectsStateMismatch(t *testing.T) {
	handler := newOAuthHandler(&fakeGoogleAuthenticator{}, "http://frontend.test", false, discardLogger())

	encodedState := encodeOAuthState("other", "")
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+url.QueryEscape(encodedState), nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookieName, Value: "expected"})
	rec := httptest.NewRecorder()

	handler.CallbackGoogle(rec, req)

	if !strings.Contains(rec.Header().Get("Location"), "/login?error=invalid_request") {
		t.Fatalf("expected invalid_request redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackPropagatesProviderError(t *testing.T) {
	handler := newOAuthHandler(&fakeGoogleAuthenticator{}, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, callbackRequest("abc", "&error=access_denied&error_description=Denied"))

	location := rec.Header().Get("Location")
	if !strings.HasSuffix(location, "/login?error=access_denied") {
		t.Fatalf("expected provider error redirect, got %q", location)
	}
}

func TestOAuthCallbackRequiresCode(t *testing.T) {
	handler := newOAuthHandler(&fakeGoogleAuthenticator{}, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, callbackRequest("abc", ""))

	if !strings.Contains(rec.Header().Get("Location"), "/login?error=missing_code") {
		t.Fatalf("expected missing_code redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackHandlesExchangeError(t *testing.T) {
	google := &fakeGoogleAuthenticator{exchangeErr: errors.New("boom")}
	handler := newOAuthHandler(google, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, callbackRequest("abc", "&code=123"))

	if !strings.Contains(rec.Header().Get("Location"), "/login?error=exchange_error") {
		t.Fatalf("expected exchange_error redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackRejectsUnlistedEmail(t *testing.T) {
	google := &fakeGoogleAuthenticator{
		exchangeIdentity: googleIdentity(t, "user@example.com", "User"),
		allowEmail:       false,
	}
	handler := newOAuthHandler(google, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, callbackRequest("abc", "&code=123"))

	if !strings.Contains(rec.Header().Get("Location"), "/login?error=not_allowed") {
		t.Fatalf("expected not_allowed redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestLoginPageShowsOnlyKnownErrorMessages(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		query string
		want  string
		deny  string
	}{
		{"?error=not_allowed", "Your account is not on the early-access list yet.", ""},
		{"?error=session_expired", "Session expired. Please try again.", ""},
		{"?error=made_up&message=Call+support+at+555-0100", "", "Call support"},
		{"?message=Your+account+is+locked", "", "Your account is locked"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := h.browser(t).get("/login" + tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			body := rec.Body.String()
			if tt.want != "" && !strings.Contains(body, tt.want) {
				t.Fatalf("expected %q on login page, got %q", tt.want, body)
			}
			if tt.deny != "" && strings.Contains(body, tt.deny) {
				t.Fatalf("login page echoed query text %q", tt.deny)
			}
		})
	}
}

func TestOAuthCallbackWithoutVisitorFails(t *testing.T) {
	google := &fakeGoogleAuthenticator{
		exchangeIdentity: googleIdentity(t, "user@example.com", "User"),
		allowEmail:       true,
	}
	handler := newOAuthHandler(google, "http://frontend.test", false, discardLogger())

	rec := httptest.NewRecorder()
	handler.CallbackGoogle(rec, callbackRequest("abc", "&code=123"))

	if !strings.Contains(rec.Header().Get("Location"), "/login?error=internal_error") {
		t.Fatalf("expected internal_error redirect, got %q", rec.Header().Get("Location"))
	}
}

func TestOAuthCallbackSuccessSignsVisitorIn(t *testing.T) {
	google := &fakeGoogleAuthenticator{
		exchangeIdentity: googleIdentity(t, "player@example.com", "Rig Runner"),
		allowEmail:       true,
	}
	h := newHarness(t, nil, func(d *Dependencies) { d.Google = google })
	b := h.browser(t)

	state := "state123"
	encodedState := encodeOAuthState(state, "/settings")
	b.cookies[oauthStateCookieName] = &http.Cookie{Name: oauthStateCookieName, Value: state}

	rec := b.get("/auth/google/callback?state=" + url.QueryEscape(encodedState) + "&code=123")

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "http://localhost:8080/settings" {
		t.Fatalf("expected redirect to settings, got %q", location)
	}
	if _, ok := b.cookies[oauthStateCookieName]; ok {
		t.Fatal("expected state cookie to be cleared")
	}

	dash := b.get("/dashboard")
	if dash.Code != http.StatusOK || !strings.Contains(dash.Body.String(), "rigrunner") {
		t.Fatalf("expected the linked account's dashboard, got %d", dash.Code)
	}
}

func TestOAuthCallbackSanitizesRedirectTo(t *testing.T) {
	google := &fakeGoogleAuthenticator{
		exchangeIdentity: googleIdentity(t, "new@example.com", "New Player"),
		allowEmail:       true,
	}
	h := newHarness(t, nil, func(d *Dependencies) { d.Google = google })
	b := h.browser(t)

	state := "state123"
	encodedState := encodeOAuthState(state, "https://evil.test")
	b.cookies[oauthStateCookieName] = &http.Cookie{Name: oauthStateCookieName, Value: state}

	rec := b.get("/auth/google/callback?state=" + url.QueryEscape(encodedState) + "&code=123")

	if location := rec.Header().Get("Location"); location != "http://localhost:8080/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %q", location)
	}
}

func TestGoogleRoutesAbsentWithoutAuthenticator(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.browser(t).get("/auth/google")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when Google sign-in is off, got %d", rec.Code)
	}
}

func TestIsValidRedirectPath(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		valid bool
	}{
		// Valid paths
		{"root", "/", true},
		{"simple path", "/dashboard", true},
		{"nested path", "/settings/avatar", true},
		{"path with query", "/my-sessions?page=1", true},
		{"path with fragment", "/profile#bio", true},

		// Invalid - empty
		{"empty string", "", false},

		// Invalid - absolute URLs / open redirect attempts
		{"http URL", "http://evil.com", false},
		{"https URL", "https://evil.com", false},
		{"protocol-relative", "//evil.com", false},
		{"protocol-relative with path", "//evil.com/path", false},

		// Invalid - encoded bypass attempts
		{"encoded double slash", "/%2f%2fevil.com", false},
		{"encoded slash", "/%2fevil.com", false},
		// Double-encoded stays a literal path after one decode.
		{"double encoded is safe", "/%252f%252fevil.com", true},

		// Invalid - no leading slash
		{"no leading slash", "dashboard", false},
		{"relative path", "settings/avatar", false},

		// Invalid - other schemes
		{"javascript protocol", "javascript:alert(1)", false},
		{"data protocol", "data:text/html,<script>", false},

		// Edge cases
		{"backslash", "\\\\evil.com", false},
		{"mixed slashes", "/\\evil.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isValidRedirectPath(tt.path)
			if got != tt.valid {
				t.Errorf("isValidRedirectPath(%q) = %v, want %v", tt.path, got, tt.valid)
			}
		})
	}
}
