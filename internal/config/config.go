package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the rigshare web service.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	SiteURL        string
	AllowedOrigins []string
	ProductionMode bool
	SessionSecret  string

	BackendURL        string
	BackendAnonKey    string
	BackendServiceKey string
	BackendJWTSecret  string
	FunctionsURL      string

	DataStore   string
	DatabaseURL string

	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	StoragePublicURL string

	CountriesAPIURL string

	GoogleClientID       string
	GoogleClientSecret   string
	GoogleAllowedDomains []string
	GoogleAllowedEmails  []string

	VisitorIdleTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/rigshare_database_url")
	if err != nil {
		return Config{}, err
	}
	sessionSecret, err := getEnvOrFile("SESSION_SECRET", "/run/secrets/rigshare_session_secret")
	if err != nil {
		return Config{}, err
	}
	serviceKey, err := getEnvOrFile("BACKEND_SERVICE_KEY", "/run/secrets/rigshare_backend_service_key")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := getEnvOrFile("BACKEND_JWT_SECRET", "/run/secrets/rigshare_backend_jwt_secret")
	if err != nil {
		return Config{}, err
	}
	s3Secret, err := getEnvOrFile("S3_SECRET_KEY", "")
	if err != nil {
		return Config{}, err
	}
	googleSecret, err := getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = "development"
	}

	cfg := Config{
		Environment:    env,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		SiteURL:        strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		SessionSecret:  strings.TrimSpace(sessionSecret),

		BackendURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_URL")), "/"),
		BackendAnonKey:    strings.TrimSpace(os.Getenv("BACKEND_ANON_KEY")),
		BackendServiceKey: strings.TrimSpace(serviceKey),
		BackendJWTSecret:  strings.TrimSpace(jwtSecret),

		DataStore:   strings.ToLower(getEnv("DATA_STORE", "memory")),
		DatabaseURL: databaseURL,

		S3Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		S3SecretKey: strings.TrimSpace(s3Secret),

		CountriesAPIURL: getEnv("COUNTRIES_API_URL", "https://restcountries.com"),

		GoogleClientID:       strings.TrimSpace(os.Getenv("AUTH_GOOGLE_CLIENT_ID")),
		GoogleClientSecret:   strings.TrimSpace(googleSecret),
		GoogleAllowedDomains: parseCSV(os.Getenv("AUTH_GOOGLE_ALLOWED_DOMAINS")),
		GoogleAllowedEmails:  parseCSV(os.Getenv("AUTH_GOOGLE_ALLOWED_EMAILS")),
	}

	cfg.FunctionsURL = strings.TrimRight(getEnv("FUNCTIONS_URL", cfg.SiteURL+"/functions/v1"), "/")
	cfg.StoragePublicURL = strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", cfg.S3Endpoint), "/")

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	productionMode, err := parseBool("PRODUCTION_MODE", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ProductionMode = productionMode

	idleValue := getEnv("VISITOR_IDLE_TIMEOUT", "30m")
	idle, err := time.ParseDuration(idleValue)
	if err != nil || idle <= 0 {
		return Config{}, fmt.Errorf("invalid VISITOR_IDLE_TIMEOUT %q", idleValue)
	}
	cfg.VisitorIdleTimeout = idle

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.DataStore {
	case "memory", "hosted":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unsupported DATA_STORE %q", c.DataStore)
	}

	if c.DataStore == "hosted" && !c.HostedBackend() {
		return fmt.Errorf("DATA_STORE is hosted but BACKEND_URL is not set")
	}
	if c.HostedBackend() && c.BackendAnonKey == "" {
		return fmt.Errorf("BACKEND_ANON_KEY is required when BACKEND_URL is set")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("AUTH_GOOGLE_CLIENT_ID and AUTH_GOOGLE_CLIENT_SECRET must be set together")
	}

	if c.IsDevelopment() {
		return nil
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required outside development")
	}
	if c.BackendJWTSecret == "" {
		return fmt.Errorf("BACKEND_JWT_SECRET is required outside development")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must define at least one origin outside development")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS cannot contain wildcard outside development")
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// HostedBackend returns true when auth calls go to the hosted backend instead of the in-memory stand-in.
func (c Config) HostedBackend() bool {
	return c.BackendURL != ""
}

// UseS3Storage returns true when avatars should be written to S3-compatible storage.
func (c Config) UseS3Storage() bool {
	return c.S3Bucket != ""
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
