package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rigshare/internal/storage"
)

// AvatarStore uploads avatar images and returns their public URL.
type AvatarStore interface {
	Upload(ctx context.Context, userID string, file storage.Upload) (string, error)
}

// Service orchestrates validation and persistence for profile rows.
type Service struct {
	repo    Repository
	avatars AvatarStore
	now     func() time.Time
}

// NewService wires a Service with the provided repository and avatar store.
func NewService(repo Repository, avatars AvatarStore) *Service {
	return &Service{repo: repo, avatars: avatars, now: time.Now}
}

// Save validates the settings form and writes the full snapshot, bumping updated_at.
func (s *Service) Save(ctx context.Context, userID string, form Form) (Profile, error) {
	if userID == "" {
		return Profile{}, errors.New("user id is required")
	}
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return Profile{}, err
	}

	update := form.Snapshot(userID)
	now := s.now().UTC()
	update.UpdatedAt = &now

	stored, err := s.repo.Upsert(ctx, update)
	if err != nil {
		return Profile{}, err
	}
	return stored, nil
}

// UploadAvatar stores the image and points the row's avatar_url at it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, file storage.Upload) (Profile, error) {
	if s.avatars == nil {
		return Profile{}, errors.New("avatar storage is not configured")
	}
	url, err := s.avatars.Upload(ctx, userID, file)
	if err != nil {
		return Profile{}, fmt.Errorf("upload avatar: %w", err)
	}

	now := s.now().UTC()
	stored, err := s.repo.Upsert(ctx, Profile{ID: userID, AvatarURL: &url, UpdatedAt: &now})
	if err != nil {
		return Profile{}, err
	}
	return stored, nil
}
