package http

import (
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"

	"rigshare/internal/visitor"
)

const (
	visitorCookieName = "rigshare_visitor"
	visitorCookieTTL  = 30 * 24 * time.Hour

	oauthStateCookieName = "rigshare_oauth_state"
	oauthStateCookieTTL  = 10 * time.Minute

	keyVisitorID    = "visitor_id"
	keyRefreshToken = "refresh_token"
)

// NewCookieStore returns the signed and encrypted store that holds the
// visitor id and refresh token.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	key := []byte(secret)
	// A second key enables AES encryption of the cookie body.
	store := sessions.NewCookieStore(key, deriveEncryptionKey(key))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(visitorCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func deriveEncryptionKey(secret []byte) []byte {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("rigshare visitor cookie"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		panic(err)
	}
	return key
}

// cookieWriter persists the visitor cookie just before the response headers
// go out, so handlers that change the session never have to remember to.
type cookieWriter struct {
	http.ResponseWriter
	r       *http.Request
	session *sessions.Session
	visitor *visitor.Visitor
	logger  *slog.Logger
	saved   bool
}

func (w *cookieWriter) persist() {
	if w.saved {
		return
	}
	w.saved = true

	id, _ := w.session.Values[keyVisitorID].(string)
	token, _ := w.session.Values[keyRefreshToken].(string)
	current := w.visitor.RefreshToken()
	if id == w.visitor.ID && token == current {
		return
	}

	w.session.Values[keyVisitorID] = w.visitor.ID
	if current == "" {
		delete(w.session.Values, keyRefreshToken)
	} else {
		w.session.Values[keyRefreshToken] = current
	}
	if err := w.session.Save(w.r, w.ResponseWriter); err != nil {
		w.logger.Warn("failed to save visitor cookie", "error", err)
	}
}

func (w *cookieWriter) WriteHeader(status int) {
	w.persist()
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.persist()
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
