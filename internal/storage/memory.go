package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// MemoryAvatars keeps avatars in process for local development. Objects are
// served by the HTTP layer under <publicBase>/<key>.
type MemoryAvatars struct {
	mu         sync.RWMutex
	objects    map[string]Object
	publicBase string
	now        func() time.Time
}

// Object is one stored file.
type Object struct {
	ContentType string
	Data        []byte
}

// NewMemoryAvatars creates an empty store.
func NewMemoryAvatars(publicBase string) *MemoryAvatars {
	return &MemoryAvatars{
		objects:    make(map[string]Object),
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}
}

// Upload stores the image and returns its URL.
func (m *MemoryAvatars) Upload(_ context.Context, userID string, file Upload) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	data, contentType, err := file.read()
	if err != nil {
		return "", err
	}

	key := avatarKey(userID, contentType, m.now().Unix())
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: data}
	m.mu.Unlock()
	return m.publicBase + "/" + key, nil
}

// Get returns a stored object by key.
func (m *MemoryAvatars) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// RemoveAll deletes every object under the user's prefix.
func (m *MemoryAvatars) RemoveAll(_ context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	prefix := userPrefix(userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}
