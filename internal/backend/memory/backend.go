// Package memory is an in-process stand-in for the hosted backend, used for
// local development and tests. Emails are not sent; confirmation and recovery
// links are logged instead.
package memory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rigshare/internal/auth"
	"rigshare/internal/backend"
)

const (
	accessTTL = time.Hour
	otpTTL    = 24 * time.Hour
)

type userRecord struct {
	user         auth.User
	passwordHash []byte
	confirmed    bool
}

type refreshRecord struct {
	userID    string
	sessionID string
}

type otpRecord struct {
	userID    string
	kind      auth.OTPType
	expiresAt time.Time
}

// Backend holds every account in memory.
type Backend struct {
	jwtSecret   string
	autoConfirm bool
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	users   map[string]*userRecord
	byEmail map[string]string
	refresh map[string]refreshRecord
	revoked map[string]struct{}
	otps    map[string]otpRecord
}

// Option configures the Backend during construction.
type Option func(*Backend)

// WithAutoConfirm skips email confirmation so signups return a session directly.
func WithAutoConfirm(enabled bool) Option {
	return func(b *Backend) {
		b.autoConfirm = enabled
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates an empty Backend signing access tokens with jwtSecret.
func New(jwtSecret string, logger *slog.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		jwtSecret: jwtSecret,
		logger:    logger,
		now:       time.Now,
		users:     make(map[string]*userRecord),
		byEmail:   make(map[string]string),
		refresh:   make(map[string]refreshRecord),
		revoked:   make(map[string]struct{}),
		otps:      make(map[string]otpRecord),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewAuth creates a per-visitor auth client over this backend.
func (b *Backend) NewAuth(refreshToken string) *backend.AuthClient {
	return backend.NewAuthClient(b, refreshToken, b.logger)
}

func authError(status int, code, message string) error {
	return &auth.Error{Status: status, Code: code, Message: message}
}

var errInvalidCredentials = authError(http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// issueLocked creates a session for rec. Callers hold b.mu.
func (b *Backend) issueLocked(rec *userRecord) (*auth.Session, error) {
	now := b.now()
	signedIn := now.UTC()
	rec.user.LastSignInAt = &signedIn

	sessionID := uuid.NewString()
	access, expiresAt, err := auth.IssueAccessToken(b.jwtSecret, rec.user, sessionID, accessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh := randomToken()
	b.refresh[refresh] = refreshRecord{userID: rec.user.ID, sessionID: sessionID}

	return &auth.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         rec.user,
	}, nil
}

// PasswordGrant signs in with email and password.
func (b *Backend) PasswordGrant(_ context.Context, creds auth.Credentials) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byEmail[normalizeEmail(creds.Email)]
	if !ok {
		return nil, errInvalidCredentials
	}
	rec := b.users[id]
	if rec.passwordHash == nil || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(creds.Password)) != nil {
		return nil, errInvalidCredentials
	}
	if !rec.confirmed {
		return nil, authError(http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
	}
	return b.issueLocked(rec)
}

// IDTokenGrant signs in with an ID token the caller has already verified
// against its issuer. The token's email claim identifies the account.
func (b *Backend) IDTokenGrant(_ context.Context, provider, idToken string) (*auth.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, authError(http.StatusBadRequest, "bad_id_token", "Invalid ID token")
	}
	email, _ := claims["email"].(string)
	email = normalizeEmail(email)
	if email == "" {
		return nil, authError(http.StatusBadRequest, "bad_id_token", "ID token has no email")
	}
	name, _ := claims["name"].(string)

	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byEmail[email]
	if !ok {
		rec := &userRecord{
			user: auth.User{
				ID:       uuid.NewString(),
				Email:    email,
				Metadata: auth.Metadata{FullName: name},
			},
			confirmed: true,
		}
		b.users[rec.user.ID] = rec
		b.byEmail[email] = rec.user.ID
		id = rec.user.ID
		b.logger.Info("created account from identity provider", "provider", provider, "user_id", id)
	}
	rec := b.users[id]
	rec.confirmed = true
	return b.issueLocked(rec)
}

// RefreshGrant rotates refreshToken into a new session.
func (b *Backend) RefreshGrant(_ context.Context, refreshToken string) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.refresh[refreshToken]
	if !ok {
		return nil, authError(http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
	}
	delete(b.refresh, refreshToken)
	rec, ok := b.users[record.userID]
	if !ok {
		return nil, authError(http.StatusBadRequest, "user_not_found", "User not found")
	}
	return b.issueLocked(rec)
}

// SignUp registers an account. Without auto-confirm the session is nil and a
// confirmation link is logged.
func (b *Backend) SignUp(_ context.Context, params auth.SignUpParams) (*auth.Session, error) {
	email := normalizeEmail(params.Email)
	if email == "" || params.Password == "" {
		return nil, authError(http.StatusBadRequest, "validation_failed", "Signup requires a valid password")
	}
	if len(params.Password) < auth.MinPasswordLength {
		return nil, authError(http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byEmail[email]; exists {
		return nil, authError(http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
	}
	rec := &userRecord{
		user: auth.User{
			ID:       uuid.NewString(),
			Email:    email,
			Metadata: params.Data,
		},
		passwordHash: hash,
		confirmed:    b.autoConfirm,
	}
	b.users[rec.user.ID] = rec
	b.byEmail[email] = rec.user.ID

	if b.autoConfirm {
		return b.issueLocked(rec)
	}
	b.sendLinkLocked(rec.user.ID, auth.OTPSignup, params.EmailRedirectTo)
	return nil, nil
}

func (b *Backend) sendLinkLocked(userID string, kind auth.OTPType, redirectTo string) {
	token := randomToken()
	hash := hashToken(token)
	b.otps[hash] = otpRecord{userID: userID, kind: kind, expiresAt: b.now().Add(otpTTL)}

	link := redirectTo
	if link != "" {
		if u, err := url.Parse(redirectTo); err == nil {
			q := u.Query()
			q.Set("token_hash", hash)
			q.Set("type", string(kind))
			u.RawQuery = q.Encode()
			link = u.String()
		}
	}
	b.logger.Info("email link issued", "type", kind, "user_id", userID, "token_hash", hash, "link", link)
}

// Verify redeems a token hash from an emailed link.
func (b *Backend) Verify(_ context.Context, tokenHash string, kind auth.OTPType) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.otps[tokenHash]
	if !ok || b.now().After(record.expiresAt) || !otpKindMatches(record.kind, kind) {
		return nil, authError(http.StatusForbidden, "otp_expired", "Email link is invalid or has expired")
	}
	delete(b.otps, tokenHash)

	rec, ok := b.users[record.userID]
	if !ok {
		return nil, authError(http.StatusNotFound, "user_not_found", "User not found")
	}
	rec.confirmed = true
	return b.issueLocked(rec)
}

func otpKindMatches(issued, requested auth.OTPType) bool {
	if issued == requested {
		return true
	}
	return requested == auth.OTPEmail && issued == auth.OTPSignup
}

// Recover logs a recovery link. Unknown addresses succeed silently.
func (b *Backend) Recover(_ context.Context, email, redirectTo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.byEmail[normalizeEmail(email)]; ok {
		b.sendLinkLocked(id, auth.OTPRecovery, redirectTo)
	}
	return nil
}

func (b *Backend) verifyAccess(accessToken string) (*auth.AccessClaims, error) {
	claims, err := auth.NewTokenVerifier(b.jwtSecret).Verify(accessToken)
	if err != nil {
		return nil, authError(http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature")
	}
	if _, revoked := b.revoked[claims.SessionID]; revoked {
		return nil, authError(http.StatusForbidden, "session_not_found", "Session from session_id claim in JWT does not exist")
	}
	return claims, nil
}

// UpdateUser changes the password of the user owning accessToken.
func (b *Backend) UpdateUser(_ context.Context, accessToken string, attrs auth.UserAttributes) (*auth.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	claims, err := b.verifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	rec, ok := b.users[claims.Subject]
	if !ok {
		return nil, authError(http.StatusNotFound, "user_not_found", "User not found")
	}
	if attrs.Password != "" {
		if len(attrs.Password) < auth.MinPasswordLength {
			return nil, authError(http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		}
		if rec.passwordHash != nil && bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(attrs.Password)) == nil {
			return nil, authError(http.StatusUnprocessableEntity, "same_password", "New password should be different from the old password.")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		rec.passwordHash = hash
	}
	user := rec.user
	return &user, nil
}

// Logout revokes the session behind accessToken and its refresh tokens.
func (b *Backend) Logout(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	claims, err := b.verifyAccess(accessToken)
	if err != nil {
		return err
	}
	b.revoked[claims.SessionID] = struct{}{}
	for token, record := range b.refresh {
		if record.sessionID == claims.SessionID {
			delete(b.refresh, token)
		}
	}
	return nil
}

// DeleteUser removes an account and every session it holds.
func (b *Backend) DeleteUser(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.users[userID]
	if !ok {
		return authError(http.StatusNotFound, "user_not_found", "User not found")
	}
	delete(b.users, userID)
	delete(b.byEmail, normalizeEmail(rec.user.Email))
	for token, record := range b.refresh {
		if record.userID == userID {
			b.revoked[record.sessionID] = struct{}{}
			delete(b.refresh, token)
		}
	}
	for hash, record := range b.otps {
		if record.userID == userID {
			delete(b.otps, hash)
		}
	}
	return nil
}

// Seed creates a confirmed account, for local development.
func (b *Backend) Seed(email, password string, meta auth.Metadata) (auth.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return auth.User{}, fmt.Errorf("hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email = normalizeEmail(email)
	if _, exists := b.byEmail[email]; exists {
		return auth.User{}, errors.New("user already registered")
	}
	rec := &userRecord{
		user:         auth.User{ID: uuid.NewString(), Email: email, Metadata: meta},
		passwordHash: hash,
		confirmed:    true,
	}
	b.users[rec.user.ID] = rec
	b.byEmail[email] = rec.user.ID
	return rec.user, nil
}

var _ backend.AuthAPI = (*Backend)(nil)
