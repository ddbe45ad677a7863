package backend

import (
	"context"
	"net/http"

	"rigshare/internal/wishlist"
)

// WishlistStore implements wishlist.Repository over the row API. Inserts run
// with the public key so anonymous visitors can join the waitlist.
type WishlistStore struct {
	c *Client
}

// NewWishlistStore creates a WishlistStore.
func (c *Client) NewWishlistStore() *WishlistStore {
	return &WishlistStore{c: c}
}

// Create inserts entry. The backend's error message is returned unchanged.
func (s *WishlistStore) Create(ctx context.Context, entry wishlist.Entry) (wishlist.Entry, error) {
	err := s.c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/wishlist",
		body:    entry,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
	if err != nil {
		return wishlist.Entry{}, err
	}
	return entry, nil
}

var _ wishlist.Repository = (*WishlistStore)(nil)
