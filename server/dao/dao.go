// Package dao provides data access objects for user variable rows. The
// concrete implementations live in the sqlite and inmem sub-packages; the
// sqlite one is the normal choice and inmem backs tests and diskless runs.
package dao

import (
	"context"

	"github.com/dekarrin/tunatalk/internal/script"
)

// Row is one user's complete variable row: the reserved credential columns
// plus every scripted variable.
type Row struct {
	Username string
	Passwd   string
	Vars     map[string]script.Value
}

// VariableStore persists one row of scripted variables per user. The row
// columns are fixed at store creation time from the script's variable
// schema. Implementations serialize all row access, so callers never see a
// partially applied update.
type VariableStore interface {
	// Lookup retrieves the named user's row. Returns ErrNotFound if the user
	// has never been registered.
	Lookup(ctx context.Context, username string) (Row, error)

	// InsertDefault creates a row for the user with the given password and
	// every scripted variable at its declared default. Returns
	// ErrAlreadyExists if a row for the user is already present.
	InsertDefault(ctx context.Context, username, passwd string) error

	// Verify checks the given credentials against the stored row. Returns
	// ErrNotFound if the user does not exist and ErrBadCredentials if the
	// password does not match.
	Verify(ctx context.Context, username, passwd string) error

	// Read returns the current value of one scripted variable of the user's
	// row, falling back to the variable's default when the user has no row.
	Read(ctx context.Context, username, varName string) (script.Value, error)

	// Write stores a new value for one scripted variable of the user's row.
	// Returns ErrNotFound if the user has no row.
	Write(ctx context.Context, username, varName string, v script.Value) error

	// Apply atomically transforms one scripted variable of the user's row,
	// holding the store's lock across the read, the transform, and the
	// write.
	Apply(ctx context.Context, username, varName string, fn func(script.Value) (script.Value, error)) error

	// Close releases the store's underlying resources.
	Close() error
}
