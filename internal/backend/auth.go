package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"rigshare/internal/auth"
)

// refreshLeeway is how close to expiry an access token may get before it is refreshed.
const refreshLeeway = 10 * time.Second

// ErrNoSession is returned by token sources when the visitor is signed out.
var ErrNoSession = errors.New("no active session")

// AuthAPI is the stateless auth surface an AuthClient drives. The hosted
// Client implements it over HTTP; the in-memory development backend
// implements it in process.
type AuthAPI interface {
	PasswordGrant(ctx context.Context, creds auth.Credentials) (*auth.Session, error)
	IDTokenGrant(ctx context.Context, provider, idToken string) (*auth.Session, error)
	RefreshGrant(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Session, error)
	Verify(ctx context.Context, tokenHash string, kind auth.OTPType) (*auth.Session, error)
	Recover(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, accessToken string, attrs auth.UserAttributes) (*auth.User, error)
	Logout(ctx context.Context, accessToken string) error
}

// AuthClient is one visitor's connection to the auth API. It holds the
// visitor's session and delivers every change to subscribers in the order
// the changes were made.
type AuthClient struct {
	api    AuthAPI
	logger *slog.Logger
	now    func() time.Time

	// emitMu serializes state changes together with their delivery.
	emitMu sync.Mutex

	mu        sync.Mutex
	session   *auth.Session
	pending   string
	gen       uint64
	listeners map[uint64]func(auth.Event)
	nextID    uint64

	refreshMu sync.Mutex
}

// NewAuthClient creates an AuthClient over api. refreshToken, when set, is
// exchanged for a session by the first GetSession call.
func NewAuthClient(api AuthAPI, refreshToken string, logger *slog.Logger) *AuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthClient{
		api:       api,
		logger:    logger,
		now:       time.Now,
		pending:   refreshToken,
		gen:       1,
		listeners: make(map[uint64]func(auth.Event)),
	}
}

// NewAuth creates an AuthClient backed by the hosted auth API.
func (c *Client) NewAuth(refreshToken string) *AuthClient {
	return NewAuthClient(c, refreshToken, c.logger)
}

// OnAuthStateChange registers fn for every auth event.
func (a *AuthClient) OnAuthStateChange(fn func(auth.Event)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *AuthClient) transition(kind auth.EventKind, session *auth.Session) {
	a.transitionFrom(0, kind, session)
}

// transitionFrom applies the change only if no other transition happened
// since gen was read. Zero applies unconditionally; live generations start at 1.
func (a *AuthClient) transitionFrom(gen uint64, kind auth.EventKind, session *auth.Session) bool {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if gen != 0 && a.gen != gen {
		a.mu.Unlock()
		return false
	}
	a.gen++
	a.session = session
	a.pending = ""
	listeners := make([]func(auth.Event), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(auth.Event{Kind: kind, Session: copySession(session)})
	}
	return true
}

func copySession(s *auth.Session) *auth.Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// RefreshToken returns the refresh token that restores this visitor's session.
func (a *AuthClient) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return a.session.RefreshToken
	}
	return a.pending
}

// GetSession returns the current session, refreshing it when the access token
// is about to expire. A refresh token the backend rejects yields no session.
func (a *AuthClient) GetSession(ctx context.Context) (*auth.Session, error) {
	a.mu.Lock()
	session := a.session
	pending := a.pending
	a.mu.Unlock()

	if session != nil && a.fresh(session) {
		return copySession(session), nil
	}
	if session == nil && pending == "" {
		return nil, nil
	}
	return a.refresh(ctx)
}

func (a *AuthClient) fresh(s *auth.Session) bool {
	return s.AccessToken != "" && a.now().Add(refreshLeeway).Before(s.ExpiresAt)
}

func (a *AuthClient) refresh(ctx context.Context) (*auth.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.Lock()
	session := a.session
	token := a.pending
	if session != nil {
		token = session.RefreshToken
	}
	gen := a.gen
	a.mu.Unlock()

	if session != nil && a.fresh(session) {
		return copySession(session), nil
	}
	if token == "" {
		return nil, nil
	}

	next, err := a.api.RefreshGrant(ctx, token)
	if err != nil {
		var backendErr *auth.Error
		if !errors.As(err, &backendErr) || backendErr.Status < 400 || backendErr.Status >= 500 {
			return nil, err
		}
		a.logger.Info("refresh token rejected, signing out", "status", backendErr.Status)
		if session != nil {
			if !a.transitionFrom(gen, auth.EventSignedOut, nil) {
				return a.current(), nil
			}
			return nil, nil
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.session == nil && a.pending == token {
			a.pending = ""
			return nil, nil
		}
		return copySession(a.session), nil
	}

	if session == nil {
		// Restoring a stored session is not a state change subscribers need to
		// see. A sign-in or sign-out that landed during the grant wins.
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.session != nil || a.pending != token {
			return copySession(a.session), nil
		}
		a.session = next
		a.pending = ""
		return copySession(next), nil
	}
	if !a.transitionFrom(gen, auth.EventTokenRefreshed, next) {
		return a.current(), nil
	}
	return copySession(next), nil
}

func (a *AuthClient) current() *auth.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copySession(a.session)
}

// SignInWithPassword exchanges email and password for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, creds auth.Credentials) (*auth.Session, error) {
	return a.signedIn(a.api.PasswordGrant(ctx, creds))
}

// SignInWithIDToken exchanges a verified third-party ID token for a session.
func (a *AuthClient) SignInWithIDToken(ctx context.Context, provider, idToken string) (*auth.Session, error) {
	return a.signedIn(a.api.IDTokenGrant(ctx, provider, idToken))
}

func (a *AuthClient) signedIn(session *auth.Session, err error) (*auth.Session, error) {
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	a.transition(auth.EventSignedIn, session)
	return copySession(session), nil
}

// SignUp registers a new account. The session is nil when the backend wants
// the email address confirmed first.
func (a *AuthClient) SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Session, error) {
	return a.signedIn(a.api.SignUp(ctx, params))
}

// VerifyOTP redeems an emailed token hash. Recovery links put the session in
// password-recovery mode.
func (a *AuthClient) VerifyOTP(ctx context.Context, tokenHash string, kind auth.OTPType) (*auth.Session, error) {
	session, err := a.api.Verify(ctx, tokenHash, kind)
	if err != nil {
		return nil, err
	}
	evt := auth.EventSignedIn
	if kind == auth.OTPRecovery {
		evt = auth.EventPasswordRecovery
	}
	a.transition(evt, session)
	return copySession(session), nil
}

// ResetPasswordForEmail sends a recovery link that returns to redirectTo.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return a.api.Recover(ctx, email, redirectTo)
}

// UpdateUser changes attributes of the signed-in user.
func (a *AuthClient) UpdateUser(ctx context.Context, attrs auth.UserAttributes) (*auth.User, error) {
	session, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &auth.Error{Status: http.StatusUnauthorized, Message: "Auth session missing!"}
	}

	user, err := a.api.UpdateUser(ctx, session.AccessToken, attrs)
	if err != nil {
		return nil, err
	}

	updated := copySession(session)
	updated.User = *user
	a.transition(auth.EventUserUpdated, updated)
	return user, nil
}

// SignOut revokes the session. A session the backend no longer knows is
// treated as already signed out.
func (a *AuthClient) SignOut(ctx context.Context) error {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	if session != nil && session.AccessToken != "" {
		if err := a.api.Logout(ctx, session.AccessToken); err != nil {
			var backendErr *auth.Error
			if !errors.As(err, &backendErr) || !ignorableLogoutStatus(backendErr.Status) {
				return err
			}
		}
	}
	a.transition(auth.EventSignedOut, nil)
	return nil
}

func ignorableLogoutStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

// TokenSource returns an oauth2.TokenSource yielding the visitor's current
// access token, refreshed as needed.
func (a *AuthClient) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: a}
}

// AccessToken returns the current access token for row API calls.
func (a *AuthClient) AccessToken(ctx context.Context) (string, error) {
	session, err := a.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrNoSession
	}
	return session.AccessToken, nil
}

type sessionTokenSource struct {
	ctx    context.Context
	client *AuthClient
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	session, err := s.client.GetSession(s.ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session.Token(), nil
}

var _ auth.Client = (*AuthClient)(nil)
