package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rigshare/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		environment string
		wantHSTS    bool
	}{
		{"development", false},
		{"production", true},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newSecurityHeadersMiddleware(tt.environment)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Fatalf("expected X-Frame-Options DENY, got %q", rec.Header().Get("X-Frame-Options"))
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Fatal("expected nosniff header")
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Fatalf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestSlogMiddlewareLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := newSlogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wallet", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["path"] != "/wallet" || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestComingSoonAllowed(t *testing.T) {
	tests := []struct {
		path    string
		allowed bool
	}{
		{"/", true},
		{"/coming-soon", true},
		{"/wishlist", true},
		{"/api/wishlist", true},
		{"/health", true},
		{"/metrics", true},
		{"/static/site.css", true},
		{"/functions/v1/delete-user", true},
		{"/login", false},
		{"/signup", false},
		{"/dashboard", false},
		{"/settings", false},
		{"/api/session", false},
		{"/wishlist/extra", false},
	}

	for _, tt := range tests {
		if got := comingSoonAllowed(tt.path); got != tt.allowed {
			t.Errorf("comingSoonAllowed(%q) = %v, want %v", tt.path, got, tt.allowed)
		}
	}
}

func TestComingSoonMiddlewareDisabledPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	newComingSoonMiddleware(false)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestProductionModeRoutesToComingSoon(t *testing.T) {
	h := newHarness(t, nil, func(d *Dependencies) { d.Config.ProductionMode = true })
	b := h.browser(t)

	for _, path := range []string{"/login", "/signup", "/dashboard", "/settings"} {
		rec := b.get(path)
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/coming-soon" {
			t.Fatalf("%s: expected 302 to /coming-soon, got %d %q", path, rec.Code, rec.Header().Get("Location"))
		}
	}

	soon := b.get("/coming-soon")
	if soon.Code != http.StatusOK {
		t.Fatalf("expected coming-soon page, got %d", soon.Code)
	}
	body := soon.Body.String()
	if !strings.Contains(body, "Join the waitlist") || strings.Contains(body, `href="/login"`) {
		t.Fatalf("expected waitlist-only navigation, got %q", body)
	}

	if wish := b.get("/wishlist"); wish.Code != http.StatusOK {
		t.Fatalf("expected wishlist to stay reachable, got %d", wish.Code)
	}
}

func TestDeleteUserFunction(t *testing.T) {
	h := newHarness(t, nil)

	var purged []string
	h.purger.purge = func(_ context.Context, userID string) error {
		purged = append(purged, userID)
		return nil
	}

	token, _, err := auth.IssueAccessToken(testJWTSecret, h.user, "session-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/functions/v1/delete-user", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Fatalf("expected 200 ok, got %d %q", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("expected wildcard CORS origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("missing bearer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/v1/delete-user", nil))

		if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Unauthorized") {
			t.Fatalf("expected 401 Unauthorized, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("foreign token", func(t *testing.T) {
		forged, _, _ := auth.IssueAccessToken("some-other-secret", h.user, "session-1", time.Hour, time.Now())
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/delete-user", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("purges token owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/delete-user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %q", rec.Code, rec.Body.String())
		}
		var body map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["message"] != "User account deleted successfully" {
			t.Fatalf("unexpected body %v", body)
		}
		if len(purged) != 1 || purged[0] != h.user.ID {
			t.Fatalf("expected purge of %s, got %v", h.user.ID, purged)
		}
	})

	t.Run("purge failure", func(t *testing.T) {
		h.purger.purge = func(context.Context, string) error { return errors.New("storage unavailable") }
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/delete-user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "storage unavailable") {
			t.Fatalf("expected 500 with error, got %d %q", rec.Code, rec.Body.String())
		}
	})
}
