package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// AuthAdmin removes auth records with elevated privileges.
type AuthAdmin interface {
	DeleteUser(ctx context.Context, userID string) error
}

// ProfileDeleter removes the profile row.
type ProfileDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// FileRemover removes every stored file belonging to a user.
type FileRemover interface {
	RemoveAll(ctx context.Context, userID string) error
}

// Purger is the server side of account deletion. Steps run in order: auth
// record, profile row, stored files. A failed auth delete aborts before the
// profile is touched; a failed file removal is logged and ignored.
type Purger struct {
	admin    AuthAdmin
	profiles ProfileDeleter
	files    FileRemover
	logger   *slog.Logger
}

// NewPurger wires a Purger. files may be nil when no storage is configured.
func NewPurger(admin AuthAdmin, profiles ProfileDeleter, files FileRemover, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{admin: admin, profiles: profiles, files: files, logger: logger}
}

// Purge deletes everything owned by userID.
func (p *Purger) Purge(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	if err := p.admin.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	if err := p.profiles.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if p.files != nil {
		if err := p.files.RemoveAll(ctx, userID); err != nil {
			p.logger.Warn("failed to remove user files", "user_id", userID, "error", err)
		}
	}

	p.logger.Info("account purged", "user_id", userID)
	return nil
}
