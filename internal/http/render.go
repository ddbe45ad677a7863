package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

// pageNames lists every template under templates/ that renders a full page.
var pageNames = []string{
	"home", "coming_soon", "wishlist",
	"login", "signup", "forgot_password", "reset_password", "verify_email",
	"loading", "redirecting", "not_found",
	"dashboard", "wallet", "my_sessions", "profile", "settings", "account_deleted",
}

// page is the data every template receives. Form echoes submitted values;
// Page carries whatever the individual template needs.
type page struct {
	ProductionMode bool
	Authenticated  bool
	Loading        bool
	UserName       string
	Error          string
	Notice         string
	RefreshAfter   int
	RefreshTo      string
	Form           any
	Page           any
}

type renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func newRenderer(files fs.FS, logger *slog.Logger) (*renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &renderer{pages: pages, logger: logger}, nil
}

// render executes into a buffer first so a template error never leaves a
// half-written page behind.
func (rd *renderer) render(w http.ResponseWriter, status int, name string, data page) {
	tmpl, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown template", "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// formValue trims a submitted field. Passwords and confirmation text go through r.PostFormValue directly.
func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}
