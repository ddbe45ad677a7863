package http

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"

	"rigshare/internal/account"
	"rigshare/internal/auth"
	"rigshare/internal/config"
	"rigshare/internal/countries"
	"rigshare/internal/platform/metrics"
	"rigshare/internal/profile"
	"rigshare/internal/storage"
	"rigshare/internal/visitor"
	"rigshare/internal/wishlist"
)

const (
	defaultSessionWait = 2 * time.Second
	defaultProfileWait = 2 * time.Second
)

// CountryLister supplies the settings form's country options.
type CountryLister interface {
	List(ctx context.Context) ([]countries.Country, error)
}

// AccountPurger removes every trace of a user; it backs the delete-user function.
type AccountPurger interface {
	Purge(ctx context.Context, userID string) error
}

// TokenVerifier checks bearer tokens presented to the delete-user function.
type TokenVerifier interface {
	Verify(raw string) (*auth.AccessClaims, error)
}

// Dependencies are the collaborators the router hands to its handlers.
// Google, Countries, Purger, Verifier, Avatars and Metrics are optional.
type Dependencies struct {
	Config    config.Config
	Visitors  *visitor.Registry
	Cookies   sessions.Store
	Wishlist  *wishlist.Service
	Deletion  *account.Deletion
	Countries CountryLister
	Purger    AccountPurger
	Verifier  TokenVerifier
	Google    googleAuthenticator
	Avatars   *storage.MemoryAvatars
	Metrics   *metrics.Metrics
	Assets    fs.FS
	Logger    *slog.Logger
}

// Server holds the handlers' shared state.
type Server struct {
	cfg       config.Config
	visitors  *visitor.Registry
	cookies   sessions.Store
	wishlist  *wishlist.Service
	deletion  *account.Deletion
	countries CountryLister
	purger    AccountPurger
	verifier  TokenVerifier
	google    googleAuthenticator
	avatars   *storage.MemoryAvatars
	assets    fs.FS
	views     *renderer
	logger    *slog.Logger

	sessionWait  time.Duration
	profileWait  time.Duration
	secureCookie bool
}

// NewServer parses the embedded templates and wires the handlers.
func NewServer(deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	views, err := newRenderer(deps.Assets, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:          deps.Config,
		visitors:     deps.Visitors,
		cookies:      deps.Cookies,
		wishlist:     deps.Wishlist,
		deletion:     deps.Deletion,
		countries:    deps.Countries,
		purger:       deps.Purger,
		verifier:     deps.Verifier,
		google:       deps.Google,
		avatars:      deps.Avatars,
		assets:       deps.Assets,
		views:        views,
		logger:       logger,
		sessionWait:  defaultSessionWait,
		profileWait:  defaultProfileWait,
		secureCookie: !deps.Config.IsDevelopment(),
	}, nil
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(deps Dependencies) (http.Handler, error) {
	s, err := NewServer(deps)
	if err != nil {
		return nil, err
	}
	return s.Routes(deps.Metrics), nil
}

// Routes returns the chi router. m may be nil, which disables /metrics.
func (s *Server) Routes(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(newSlogMiddleware(s.logger))
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(newSecurityHeadersMiddleware(s.cfg.Environment))
	r.Use(newComingSoonMiddleware(s.cfg.ProductionMode))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": s.cfg.Environment,
		})
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	if static, err := fs.Sub(s.assets, "static"); err == nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
	if s.avatars != nil {
		r.Get("/avatars/*", s.serveAvatar)
	}

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:     []string{"*"},
			AllowedMethods:     []string{"POST", "OPTIONS"},
			AllowedHeaders:     []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
			OptionsPassthrough: true,
		}))
		r.Options("/delete-user", s.deleteUserPreflight)
		r.Post("/delete-user", s.deleteUserFunction)
	})

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(s.loadVisitor)

		r.Get("/", s.home)
		r.Get("/coming-soon", s.comingSoon)
		r.Get("/wishlist", s.wishlistPage)
		r.Post("/wishlist", s.wishlistSubmit)

		r.Get("/login", s.loginPage)
		r.Post("/login", s.login)
		r.Get("/signup", s.signupPage)
		r.Post("/signup", s.signup)
		r.Get("/forgot-password", s.forgotPasswordPage)
		r.Post("/forgot-password", s.forgotPassword)
		r.Get("/verify-email", s.verifyEmailPage)
		r.Get("/auth/confirm", s.confirm)
		r.Post("/logout", s.logout)

		if s.google != nil {
			oauth := newOAuthHandler(s.google, s.cfg.SiteURL, s.secureCookie, s.logger)
			r.Get("/auth/google", oauth.InitiateGoogle)
			r.Get("/auth/google/callback", oauth.CallbackGoogle)
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", s.sessionStatus)
			r.Get("/profile", s.profileStatus)
			r.Post("/wishlist", s.createWishlistEntry)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/dashboard", s.dashboard)
			r.Get("/wallet", s.staticPage("wallet"))
			r.Get("/my-sessions", s.staticPage("my_sessions"))
			r.Get("/profile", s.profilePage)
			r.Get("/settings", s.settingsPage)
			r.Post("/settings", s.saveSettings)
			r.Post("/settings/avatar", s.uploadAvatar)
			r.Post("/settings/delete", s.deleteAccount)
			r.Get("/reset-password", s.resetPasswordPage)
			r.Post("/reset-password", s.resetPassword)
		})

		r.NotFound(s.notFound)
	})

	return r
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.views.render(w, http.StatusNotFound, "not_found", s.base(r))
}

func (s *Server) serveAvatar(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.avatars.Get(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(obj.Data)
}

// base fills the fields every page shares from the visitor's current state.
func (s *Server) base(r *http.Request) page {
	data := page{ProductionMode: s.cfg.ProductionMode}
	v := VisitorFromContext(r.Context())
	if v == nil {
		return data
	}
	state, ok := stateFromContext(r.Context())
	if !ok {
		state = v.Session.Snapshot()
	}
	data.Loading = state.IsLoading
	data.Authenticated = state.Authenticated()
	if data.Authenticated {
		var cached *profile.Profile
		if res, ok := v.Profiles.Peek(state.User.ID); ok {
			cached = res.Data
		}
		data.UserName = profile.DisplayName(cached, state.User)
	}
	return data
}
