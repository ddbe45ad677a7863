package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rigshare/internal/account"
	"rigshare/internal/auth"
	"rigshare/internal/backend"
	"rigshare/internal/backend/memory"
	"rigshare/internal/config"
	"rigshare/internal/countries"
	transporthttp "rigshare/internal/http"
	"rigshare/internal/platform/database"
	"rigshare/internal/platform/logging"
	"rigshare/internal/platform/metrics"
	"rigshare/internal/platform/migrate"
	"rigshare/internal/profile"
	"rigshare/internal/storage"
	"rigshare/internal/visitor"
	"rigshare/internal/wishlist"
	"rigshare/web"
)

// Local development falls back to these when no secrets are configured.
const (
	devSessionSecret = "rigshare-dev-session-secret"
	devJWTSecret     = "rigshare-dev-jwt-secret"
)

// avatarStore is what both the profile service and the purger need from storage.
type avatarStore interface {
	profile.AvatarStore
	account.FileRemover
}

// stores are the persistence choices made from the configuration.
type stores struct {
	auths     visitor.AuthFactory
	profiles  visitor.ProfileRepositoryFunc
	adminRows account.ProfileDeleter
	wishlist  wishlist.Repository
	admin     account.AuthAdmin
	local     *memory.Backend
	localRows profile.Repository
	cleanup   func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	jwtSecret := cfg.BackendJWTSecret
	if jwtSecret == "" {
		jwtSecret = devJWTSecret
	}
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = devSessionSecret
	}

	st, err := buildStores(ctx, cfg, jwtSecret, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if st.cleanup != nil {
		defer st.cleanup()
	}

	avatars, served, err := buildAvatarStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize avatar storage", "error", err)
		os.Exit(1)
	}

	if st.local != nil && cfg.IsDevelopment() {
		if err := seedLocalAccount(ctx, st.local, st.localRows); err != nil {
			logger.Warn("failed to seed demo account", "error", err)
		} else {
			logger.Info("demo account ready", "email", demoEmail)
		}
	}

	m := metrics.New()

	registry := visitor.NewRegistry(st.auths, st.profiles, logger,
		visitor.WithIdleTimeout(cfg.VisitorIdleTimeout),
		visitor.WithProviderOptions(auth.WithEventHook(m.AuthEvent)),
		visitor.WithCacheOptions(profile.WithObserver(m)),
		visitor.WithAvatarStore(avatars),
		visitor.WithCountHook(m.SetVisitors),
	)
	if err := registry.Start(); err != nil {
		logger.Error("failed to start visitor sweep", "error", err)
		os.Exit(1)
	}

	functionClient := &http.Client{Timeout: 15 * time.Second}
	deps := transporthttp.Dependencies{
		Config:    cfg,
		Visitors:  registry,
		Cookies:   transporthttp.NewCookieStore(sessionSecret, !cfg.IsDevelopment()),
		Wishlist:  wishlist.NewService(st.wishlist),
		Deletion:  account.NewDeletion(account.NewFunctionClient(cfg.FunctionsURL, cfg.BackendAnonKey, functionClient), logger),
		Countries: countries.NewService(&http.Client{Timeout: 10 * time.Second}, countries.WithBaseURL(cfg.CountriesAPIURL)),
		Verifier:  auth.NewTokenVerifier(jwtSecret),
		Avatars:   served,
		Metrics:   m,
		Assets:    web.Files,
		Logger:    logger,
	}
	if st.admin != nil {
		deps.Purger = account.NewPurger(st.admin, st.adminRows, avatars, logger)
	}

	if cfg.OAuthEnabled() {
		google, err := auth.NewGoogleAuthenticator(ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.SiteURL+"/auth/google/callback",
			cfg.GoogleAllowedDomains,
			cfg.GoogleAllowedEmails,
		)
		if err != nil {
			logger.Error("failed to initialize google sign-in", "error", err)
			os.Exit(1)
		}
		deps.Google = google
	}

	router, err := transporthttp.NewRouter(deps)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      65 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("RigShare web listening",
			"addr", srv.Addr,
			"store", cfg.DataStore,
			"hosted_backend", cfg.HostedBackend(),
			"production_mode", cfg.ProductionMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	registry.Stop(shutdownCtx)
}

// buildStores picks the auth backend and the row stores. Without BACKEND_URL
// the in-memory backend stands in for the hosted one.
func buildStores(ctx context.Context, cfg config.Config, jwtSecret string, logger *slog.Logger) (stores, error) {
	var st stores

	var client *backend.Client
	if cfg.HostedBackend() {
		client = backend.New(cfg.BackendURL, cfg.BackendAnonKey,
			backend.WithServiceKey(cfg.BackendServiceKey),
			backend.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
			backend.WithLogger(logger),
		)
		st.auths = client
		if admin, err := client.NewAdmin(); err != nil {
			logger.Warn("delete-user function disabled", "error", err)
		} else {
			st.admin = admin
		}
	} else {
		b := memory.New(jwtSecret, logger, memory.WithAutoConfirm(cfg.IsDevelopment()))
		logger.Info("using in-memory auth backend")
		st.auths = b
		st.admin = b
		st.local = b
	}

	switch cfg.DataStore {
	case "hosted":
		st.profiles = func(a *backend.AuthClient) profile.Repository { return client.NewProfileStore(a) }
		st.adminRows = client.NewProfileStore(nil)
		st.wishlist = client.NewWishlistStore()
		logger.Info("using hosted row API")
		return st, nil

	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		st.cleanup = func() { _ = db.Close() }
		if err := migrate.Apply(ctx, db, logger); err != nil {
			st.cleanup()
			return stores{}, err
		}
		rows := profile.NewPostgresRepository(db)
		st.profiles = visitor.SharedProfiles(rows)
		st.adminRows = rows
		st.localRows = rows
		st.wishlist = wishlist.NewPostgresRepository(db)
		logger.Info("connected to postgres")
		return st, nil

	default:
		rows := profile.NewInMemoryRepository(nil)
		st.profiles = visitor.SharedProfiles(rows)
		st.adminRows = rows
		st.localRows = rows
		st.wishlist = wishlist.NewInMemoryRepository()
		logger.Info("using in-memory repositories")
		return st, nil
	}
}

// buildAvatarStore returns the avatar store and, when avatars live in
// process, the same store for the /avatars route to serve from.
func buildAvatarStore(ctx context.Context, cfg config.Config) (avatarStore, *storage.MemoryAvatars, error) {
	if cfg.UseS3Storage() {
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewS3Avatars(client, cfg.S3Bucket, cfg.StoragePublicURL), nil, nil
	}
	mem := storage.NewMemoryAvatars(cfg.SiteURL + "/avatars")
	return mem, mem, nil
}
