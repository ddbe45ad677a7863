package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"rigshare/internal/account"
	"rigshare/internal/auth"
	"rigshare/internal/backend"
	"rigshare/internal/backend/memory"
	"rigshare/internal/config"
	"rigshare/internal/profile"
	"rigshare/internal/visitor"
	"rigshare/internal/wishlist"
	"rigshare/web"
)

const testJWTSecret = "http-test-jwt-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		Environment:    "development",
		SiteURL:        "http://localhost:8080",
		AllowedOrigins: []string{"http://localhost:8080"},
	}
}

type invokerStub struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	reply  string
	err    error
}

func (s *invokerStub) DeleteUser(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	token, err := ts.Token()
	if err != nil {
		return "", err
	}
	s.tokens = append(s.tokens, token.AccessToken)
	return s.reply, s.err
}

type purgerStub struct {
	purge func(ctx context.Context, userID string) error
}

func (p *purgerStub) Purge(ctx context.Context, userID string) error {
	if p.purge != nil {
		return p.purge(ctx, userID)
	}
	return nil
}

type harness struct {
	server   *Server
	handler  http.Handler
	backend  *memory.Backend
	user     auth.User
	profiles *profile.InMemoryRepository
	waitlist *wishlist.InMemoryRepository
	invoker  *invokerStub
	purger   *purgerStub
}

type harnessOption func(*Dependencies)

// newHarness wires the router over the in-memory backend with one seeded
// account: player@example.com / secret1, username rigrunner.
func newHarness(t *testing.T, factory visitor.AuthFactory, opts ...harnessOption) *harness {
	t.Helper()
	logger := discardLogger()

	b := memory.New(testJWTSecret, logger)
	user, err := b.Seed("player@example.com", "secret1", auth.Metadata{Username: "rigrunner", FullName: "Rig Runner"})
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if factory == nil {
		factory = b
	}

	profiles := profile.NewInMemoryRepository(nil)
	waitlist := wishlist.NewInMemoryRepository()
	registry := visitor.NewRegistry(factory, visitor.SharedProfiles(profiles), logger)
	t.Cleanup(func() { registry.Stop(context.Background()) })

	h := &harness{
		backend:  b,
		user:     user,
		profiles: profiles,
		waitlist: waitlist,
		invoker:  &invokerStub{reply: "User account deleted successfully"},
		purger:   &purgerStub{},
	}

	deps := Dependencies{
		Config:   testConfig(),
		Visitors: registry,
		Cookies:  NewCookieStore("http-test-session-secret", false),
		Wishlist: wishlist.NewService(waitlist),
		Purger:   h.purger,
		Verifier: auth.NewTokenVerifier(testJWTSecret),
		Assets:   web.Files,
		Logger:   logger,
	}
	deps.Deletion = account.NewDeletion(h.invoker, logger)
	for _, opt := range opts {
		opt(&deps)
	}

	server, err := NewServer(deps)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	server.sessionWait = 500 * time.Millisecond
	server.profileWait = 500 * time.Millisecond
	h.server = server
	h.handler = server.Routes(deps.Metrics)
	return h
}

// browser carries cookies between requests the way a real browser would.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (h *harness) browser(t *testing.T) *browser {
	return &browser{t: t, handler: h.handler, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return b.send(req)
}

// send attaches the stored cookies and keeps whatever the response sets.
func (b *browser) send(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil)
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, target, form)
}

// upload posts a multipart form carrying one file field.
func (b *browser) upload(target, field, filename string, data []byte) *httptest.ResponseRecorder {
	b.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		b.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.send(req)
}

func (b *browser) login(email, password string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.post("/login", url.Values{"email": {email}, "password": {password}})
}

// authAPIStub lets tests control backend timing and count calls.
type authAPIStub struct {
	mu          sync.Mutex
	signUpCalls int
	refresh     func(ctx context.Context, token string) (*auth.Session, error)
}

func (s *authAPIStub) PasswordGrant(context.Context, auth.Credentials) (*auth.Session, error) {
	return nil, &auth.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
}

func (s *authAPIStub) IDTokenGrant(context.Context, string, string) (*auth.Session, error) {
	return nil, &auth.Error{Status: http.StatusBadRequest, Message: "unsupported"}
}

func (s *authAPIStub) RefreshGrant(ctx context.Context, token string) (*auth.Session, error) {
	if s.refresh != nil {
		return s.refresh(ctx, token)
	}
	return nil, &auth.Error{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

func (s *authAPIStub) SignUp(context.Context, auth.SignUpParams) (*auth.Session, error) {
	s.mu.Lock()
	s.signUpCalls++
	s.mu.Unlock()
	return nil, nil
}

func (s *authAPIStub) Verify(context.Context, string, auth.OTPType) (*auth.Session, error) {
	return nil, &auth.Error{Status: http.StatusForbidden, Message: "Email link is invalid or has expired"}
}

func (s *authAPIStub) Recover(context.Context, string, string) error { return nil }

func (s *authAPIStub) UpdateUser(context.Context, string, auth.UserAttributes) (*auth.User, error) {
	return nil, &auth.Error{Status: http.StatusUnauthorized, Message: "Auth session missing!"}
}

func (s *authAPIStub) Logout(context.Context, string) error { return nil }

func (s *authAPIStub) NewAuth(refreshToken string) *backend.AuthClient {
	return backend.NewAuthClient(s, refreshToken, discardLogger())
}
