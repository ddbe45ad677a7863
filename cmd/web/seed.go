package main

import (
	"context"
	"fmt"
	"time"

	"rigshare/internal/auth"
	"rigshare/internal/backend/memory"
	"rigshare/internal/profile"
)

const (
	demoEmail    = "demo@rigshare.test"
	demoPassword = "rigshare"
)

// seedLocalAccount creates a signed-up demo player with a filled-in profile
// so the dashboard has something to show on a fresh checkout.
func seedLocalAccount(ctx context.Context, b *memory.Backend, rows profile.Repository) error {
	user, err := b.Seed(demoEmail, demoPassword, auth.Metadata{Username: "demo", FullName: "Demo Player"})
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}
	if rows == nil {
		return nil
	}

	str := func(s string) *string { return &s }
	now := time.Now().UTC()
	_, err = rows.Upsert(ctx, profile.Profile{
		ID:          user.ID,
		Username:    str("demo"),
		FirstName:   str("Demo"),
		LastName:    str("Player"),
		DateOfBirth: str("1995-04-12"),
		Country:     str("Netherlands"),
		Bio:         str("Plays late-night co-op on borrowed rigs."),
		Email:       str(demoEmail),
		Status:      str("active"),
		CreatedAt:   &now,
		UpdatedAt:   &now,
	})
	if err != nil {
		return fmt.Errorf("seed demo profile: %w", err)
	}
	return nil
}
