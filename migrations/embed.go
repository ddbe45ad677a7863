// Package migrations bundles the goose SQL files for the user_profiles and
// wishlist tables.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
