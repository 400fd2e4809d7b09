// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// MemoryRepository keeps sessions in process memory. It suits tests and
// single-process runs; nothing survives a restart.
type MemoryRepository struct {
	// mu makes compare-and-swap atomic; the cache's own lock only
	// covers single operations.
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryRepository creates an empty repository. Sessions never expire.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cache: cache.New(cache.NoExpiration, 0)}
}

// Get returns a copy of the stored session.
func (r *MemoryRepository) Get(_ context.Context, id string) (*types.Session, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*types.Session).Clone(), nil
	}
	return nil, errNotFound(id)
}

// Create stores a copy of s with Version 1.
func (r *MemoryRepository) Create(_ context.Context, s *types.Session) error {
	next := s.Clone()
	next.Version = 1
	if err := r.cache.Add(s.ID, next, cache.NoExpiration); err != nil {
		return errExists(s.ID)
	}
	s.Version = 1
	return nil
}

// Update replaces the stored copy if its version equals expectedVersion.
func (r *MemoryRepository) Update(_ context.Context, s *types.Session, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(s.ID)
	if !found {
		return errNotFound(s.ID)
	}
	if x.(*types.Session).Version != expectedVersion {
		return errConflict(s.ID, expectedVersion)
	}
	next := s.Clone()
	next.Version = expectedVersion + 1
	r.cache.Set(s.ID, next, cache.NoExpiration)
	s.Version = next.Version
	return nil
}

// List returns copies of the sessions keep accepts, oldest start first.
func (r *MemoryRepository) List(_ context.Context, keep func(*types.Session) bool) ([]*types.Session, error) {
	var out []*types.Session
	for _, item := range r.cache.Items() {
		s := item.Object.(*types.Session).Clone()
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }
