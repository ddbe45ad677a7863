// Command waitlist-export writes the waitlist as CSV, for sending launch invites.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"rigshare/internal/config"
	"rigshare/internal/platform/database"
	"rigshare/internal/platform/logging"
	"rigshare/internal/wishlist"
)

func main() {
	output := flag.String("o", "-", "file to write, - for stdout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.Environment)

	if cfg.DataStore != "postgres" {
		logger.Error("waitlist export reads the postgres store", "data_store", cfg.DataStore)
		os.Exit(2)
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	entries, err := wishlist.NewPostgresRepository(db).List(ctx)
	if err != nil {
		logger.Error("failed to list waitlist", "error", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Error("failed to create output file", "error", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := wishlist.ExportCSV(w, entries); err != nil {
		logger.Error("failed to write CSV", "error", err)
		os.Exit(1)
	}
	logger.Info("waitlist exported", "entries", len(entries), "output", *output)
}
