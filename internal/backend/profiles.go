package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"rigshare/internal/auth"
	"rigshare/internal/profile"
)

// BearerSource supplies the access token row API calls run as.
type BearerSource interface {
	AccessToken(ctx context.Context) (string, error)
}

const singleObject = "application/vnd.pgrst.object+json"

// ProfileStore implements profile.Repository over the row API's
// user_profiles table.
type ProfileStore struct {
	c      *Client
	bearer BearerSource
}

// NewProfileStore creates a store that runs as the user behind bearer. A nil
// bearer runs with the service key, for server-side deletion.
func (c *Client) NewProfileStore(bearer BearerSource) *ProfileStore {
	return &ProfileStore{c: c, bearer: bearer}
}

func (s *ProfileStore) auth(ctx context.Context) (request, error) {
	if s.bearer == nil {
		return request{apiKey: s.c.serviceKey}, nil
	}
	token, err := s.bearer.AccessToken(ctx)
	if err != nil {
		return request{}, err
	}
	return request{bearer: token}, nil
}

// Get fetches the row for userID. Zero rows is not an error.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	req, err := s.auth(ctx)
	if err != nil {
		return nil, err
	}
	req.method = http.MethodGet
	req.path = "/rest/v1/user_profiles"
	req.query = url.Values{"id": {"eq." + userID}, "select": {"*"}}
	req.headers = map[string]string{"Accept": singleObject}

	var raw json.RawMessage
	if err := s.c.do(ctx, req, &raw); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return profile.Decode(raw)
}

// Upsert writes every non-nil field of p, creating the row if needed.
func (s *ProfileStore) Upsert(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	req, err := s.auth(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	req.method = http.MethodPost
	req.path = "/rest/v1/user_profiles"
	req.query = url.Values{"on_conflict": {"id"}}
	req.body = p
	req.headers = map[string]string{
		"Accept": singleObject,
		"Prefer": "resolution=merge-duplicates,return=representation",
	}

	var raw json.RawMessage
	if err := s.c.do(ctx, req, &raw); err != nil {
		return profile.Profile{}, err
	}
	stored, err := profile.Decode(raw)
	if err != nil {
		return profile.Profile{}, err
	}
	if stored == nil {
		return p, nil
	}
	return *stored, nil
}

// Delete removes the row for userID.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	req, err := s.auth(ctx)
	if err != nil {
		return err
	}
	req.method = http.MethodDelete
	req.path = "/rest/v1/user_profiles"
	req.query = url.Values{"id": {"eq." + userID}}
	return s.c.do(ctx, req, nil)
}

func isNoRows(err error) bool {
	var backendErr *auth.Error
	if !errors.As(err, &backendErr) {
		return false
	}
	return backendErr.Code == "PGRST116" || backendErr.Status == http.StatusNotAcceptable
}

var _ profile.Repository = (*ProfileStore)(nil)
