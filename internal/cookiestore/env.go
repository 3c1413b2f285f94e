package cookiestore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore reads a snapshot provisioned in an environment variable.
// Sessions obtained this way cannot be saved back.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{envKey: envKey}, nil
}

// Read returns the variable's value, or ErrNotFound if it is unset or empty.
func (e *EnvStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := os.Getenv(e.envKey)
	if v == "" {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (e *EnvStore) Write(ctx context.Context, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("writing %s: %w", e.envKey, ErrReadOnly)
}

func (e *EnvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("deleting %s: %w", e.envKey, ErrReadOnly)
}
