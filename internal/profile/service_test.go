package profile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rigshare/internal/storage"
)

type avatarStoreStub struct {
	upload func(ctx context.Context, userID string, file storage.Upload) (string, error)
}

func (s avatarStoreStub) Upload(ctx context.Context, userID string, file storage.Upload) (string, error) {
	return s.upload(ctx, userID, file)
}

func TestServiceSaveSendsFullSnapshotAndBumpsUpdatedAt(t *testing.T) {
	var sent Profile
	repo := &repoStub{upsert: func(ctx context.Context, p Profile) (Profile, error) {
		sent = p
		return p, nil
	}}
	svc := NewService(repo, nil)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	stored, err := svc.Save(context.Background(), "user-1", Form{
		Username:  " rigrunner ",
		FirstName: "Rig",
		Bio:       "new bio",
	})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if sent.ID != "user-1" || Value(sent.Username) != "rigrunner" || Value(sent.Bio) != "new bio" {
		t.Fatalf("unexpected snapshot %+v", sent)
	}
	if sent.LastName == nil || sent.Country == nil {
		t.Fatal("expected unchanged fields included in snapshot")
	}
	if sent.UpdatedAt == nil || !sent.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected updated_at bumped, got %v", sent.UpdatedAt)
	}
	if stored.ID != "user-1" {
		t.Fatalf("expected stored row returned, got %+v", stored)
	}
}

func TestServiceSaveBlocksInvalidFormBeforeWrite(t *testing.T) {
	repo := &repoStub{upsert: func(ctx context.Context, p Profile) (Profile, error) {
		t.Fatal("expected no write for invalid form")
		return Profile{}, nil
	}}
	svc := NewService(repo, nil)

	_, err := svc.Save(context.Background(), "user-1", Form{Bio: strings.Repeat("x", 501)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceSaveMergesInMemory(t *testing.T) {
	repo := NewInMemoryRepository([]Profile{{ID: "user-1", AvatarURL: ptr("https://cdn/a.png")}})
	svc := NewService(repo, nil)

	stored, err := svc.Save(context.Background(), "user-1", Form{Username: "rigrunner"})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if Value(stored.AvatarURL) != "https://cdn/a.png" {
		t.Fatalf("expected avatar kept, got %+v", stored)
	}
}

func TestServiceUploadAvatarUpdatesRow(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := NewService(repo, avatarStoreStub{upload: func(ctx context.Context, userID string, file storage.Upload) (string, error) {
		return "https://cdn/" + userID + "/avatar-1.png", nil
	}})

	stored, err := svc.UploadAvatar(context.Background(), "user-1", storage.Upload{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("UploadAvatar returned error: %v", err)
	}
	if Value(stored.AvatarURL) != "https://cdn/user-1/avatar-1.png" {
		t.Fatalf("unexpected avatar url %q", Value(stored.AvatarURL))
	}

	got, _ := repo.Get(context.Background(), "user-1")
	if got == nil || Value(got.AvatarURL) == "" {
		t.Fatal("expected row created with avatar url")
	}
}

func TestServiceUploadAvatarSurfacesStorageError(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil), avatarStoreStub{upload: func(ctx context.Context, userID string, file storage.Upload) (string, error) {
		return "", storage.ErrInvalidUpload
	}})

	_, err := svc.UploadAvatar(context.Background(), "user-1", storage.Upload{})
	if !errors.Is(err, storage.ErrInvalidUpload) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
