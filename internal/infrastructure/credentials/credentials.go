// Package credentials resolves backend API keys from the environment or an
// age-encrypted key file.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/doeshing/shai-bridge/internal/ports"
)

// ErrNotFound is returned when no store knows the requested key.
var ErrNotFound = errors.New("credential not found")

// EnvStore reads keys from environment variables named after the key.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore reads from the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

func (s *EnvStore) APIKey(_ context.Context, name string) (string, error) {
	value, ok := s.lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: $%s is not set", ErrNotFound, name)
	}
	return strings.TrimSpace(value), nil
}

// ChainStore asks each store in turn and returns the first key found.
type ChainStore []ports.CredentialStore

func (c ChainStore) APIKey(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, store := range c {
		if store == nil {
			continue
		}
		key, err := store.APIKey(ctx, name)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, errors.Join(errs...))
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

var (
	_ ports.CredentialStore = (*EnvStore)(nil)
	_ ports.CredentialStore = ChainStore(nil)
)
