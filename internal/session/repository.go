// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"fmt"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Repository is the single source of truth for sessions. Implementations
// store deep copies, so callers never share memory with the store.
type Repository interface {
	// Get returns the session or types.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*types.Session, error)

	// Create stores a new session and sets its Version to 1.
	Create(ctx context.Context, s *types.Session) error

	// Update replaces the stored session only if its Version still equals
	// expectedVersion, then sets s.Version to expectedVersion+1. A stale
	// version reports types.ErrConcurrentModification and writes nothing.
	Update(ctx context.Context, s *types.Session, expectedVersion int64) error

	// List returns every stored session for which keep returns true.
	// A nil keep matches all sessions.
	List(ctx context.Context, keep func(*types.Session) bool) ([]*types.Session, error)

	Close() error
}

// Open constructs the repository selected by cfg.Backend.
func Open(ctx context.Context, cfg types.StoreConfig) (Repository, error) {
	switch cfg.Backend {
	case types.StoreSQLite, "":
		return NewSQLiteRepository(cfg.SessionDB)
	case types.StoreMemory:
		return NewMemoryRepository(), nil
	case types.StoreRedis:
		return NewRedisRepository(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
}

func errExists(id string) error {
	return fmt.Errorf("%w: session %s already exists", types.ErrValidation, id)
}

func errNotFound(id string) error {
	return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
}

func errConflict(id string, expected int64) error {
	return fmt.Errorf("%w: session %s is no longer at version %d", types.ErrConcurrentModification, id, expected)
}
