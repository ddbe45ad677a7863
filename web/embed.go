package web

import "embed"

// Files holds the page templates and static assets served by the site.
//
//go:embed templates/*.html static/*
var Files embed.FS
