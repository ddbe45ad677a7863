package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rigshare/internal/auth"
	"rigshare/internal/guard"
	"rigshare/internal/visitor"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// comingSoonAllowed lists the paths reachable while the site is in production mode.
func comingSoonAllowed(path string) bool {
	switch path {
	case "/", "/coming-soon", "/wishlist", "/api/wishlist", "/health", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, "/functions/")
}

// newComingSoonMiddleware sends every route outside the waitlist surface to
// the coming-soon page.
func newComingSoonMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !comingSoonAllowed(r.URL.Path) {
				http.Redirect(w, r, "/coming-soon", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const (
	visitorContextKey contextKey = "visitor"
	stateContextKey   contextKey = "auth_state"
)

// VisitorFromContext returns the visitor loaded for this request.
func VisitorFromContext(ctx context.Context) *visitor.Visitor {
	v, _ := ctx.Value(visitorContextKey).(*visitor.Visitor)
	return v
}

// stateFromContext returns the resolved auth state stored by requireSession.
func stateFromContext(ctx context.Context) (auth.State, bool) {
	state, ok := ctx.Value(stateContextKey).(auth.State)
	return state, ok
}

// loadVisitor resolves the browser's visitor from its cookie and keeps the
// cookie in step with the visitor's refresh token.
func (s *Server) loadVisitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.cookies.Get(r, visitorCookieName)
		if err != nil {
			// Tampered or rotated-key cookies start over with a fresh visitor.
			s.logger.Debug("discarding unreadable visitor cookie", "error", err)
		}
		id, _ := session.Values[keyVisitorID].(string)
		token, _ := session.Values[keyRefreshToken].(string)

		v, _ := s.visitors.Lookup(r.Context(), id, token)

		cw := &cookieWriter{ResponseWriter: w, r: r, session: session, visitor: v, logger: s.logger}
		ctx := context.WithValue(r.Context(), visitorContextKey, v)
		next.ServeHTTP(cw, r.WithContext(ctx))
		cw.persist()
	})
}

// requireSession applies the guard decision to a protected page: a neutral
// loading page while the session resolves, a single redirect to the login page
// for anonymous visitors and the page itself otherwise.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := VisitorFromContext(r.Context())
		if v == nil {
			http.Error(w, "visitor not loaded", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.sessionWait)
		state := v.Session.Await(ctx)
		cancel()

		decision := guard.Evaluate(state)
		switch decision.Phase {
		case guard.PhaseChecking:
			s.renderLoading(w, r, "")
		case guard.PhaseAnonymous:
			data := s.base(r)
			data.Page = map[string]string{"Location": decision.Redirect}
			w.Header().Set("Location", decision.Redirect)
			s.views.render(w, http.StatusFound, "redirecting", data)
		default:
			ctx := context.WithValue(r.Context(), stateContextKey, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request, message string) {
	data := s.base(r)
	data.RefreshAfter = 1
	data.Page = map[string]string{"Message": message}
	s.views.render(w, http.StatusOK, "loading", data)
}
