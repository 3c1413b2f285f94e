package cookiestore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when nothing has been stored yet.
	ErrNotFound = errors.New("no stored session")

	// ErrReadOnly is returned by Write and Delete on backends that cannot be modified.
	ErrReadOnly = errors.New("session storage is read-only")
)

// Store reads and writes the persisted cookie snapshot.
type Store interface {
	// Read returns the stored snapshot, or ErrNotFound if there is none.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the stored snapshot.
	Write(ctx context.Context, data []byte) error

	// Delete removes the stored snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context) error
}
