// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// repositories returns every backend available to the test run. Redis is
// included only when VIVA_TEST_REDIS_ADDR names a reachable server.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	repos := map[string]Repository{}

	sqlite, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	repos["sqlite"] = sqlite

	repos["memory"] = NewMemoryRepository()

	if addr := os.Getenv("VIVA_TEST_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
		require.NoError(t, client.FlushDB(context.Background()).Err())
		r := NewRedisRepositoryFromClient(client)
		t.Cleanup(func() { r.Close() })
		repos["redis"] = r
	}
	return repos
}

func fullSession(id, userID string, started time.Time) *types.Session {
	completed := started.Add(10 * time.Minute)
	return &types.Session{
		ID:      id,
		UserID:  userID,
		PaperID: "paper-1",
		Questions: []types.Question{
			{ID: "q1", Text: "Why?", Type: types.QuestionWhy, ExpectedConcepts: []string{"a", "b"}, Difficulty: 3},
			{ID: "q2", Text: "How?", Type: types.QuestionHow, ExpectedConcepts: []string{}, Difficulty: 5},
		},
		Answers: []types.AnswerRecord{
			{QuestionID: "q1", Answer: "because", Score: 7, Feedback: "ok", Correctness: types.Correct, Timestamp: started.Add(time.Minute)},
			{QuestionID: "q2", Answer: "like so", Score: 4, Feedback: "meh", Correctness: types.Incorrect, Timestamp: started.Add(2 * time.Minute)},
		},
		CurrentQuestionIndex: 2,
		Status:               types.StatusCompleted,
		StartedAt:            started,
		CompletedAt:          &completed,
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	started := time.Date(2026, 5, 4, 9, 30, 15, 123456789, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := fullSession("rt-"+name, "u1", started)
			require.NoError(t, repo.Create(ctx, s))
			assert.Equal(t, int64(1), s.Version)

			got, err := repo.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, s, got)

			// Mutating the returned copy must not touch the store.
			got.Answers[0].Score = 0
			again, err := repo.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, 7, again.Answers[0].Score)
		})
	}
}

func TestRepositoryCompareAndSwap(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := fullSession("cas-"+name, "u1", time.Now().UTC())
			s.Status = types.StatusInProgress
			require.NoError(t, repo.Create(ctx, s))

			a, err := repo.Get(ctx, s.ID)
			require.NoError(t, err)
			b, err := repo.Get(ctx, s.ID)
			require.NoError(t, err)

			a.Status = types.StatusPaused
			require.NoError(t, repo.Update(ctx, a, a.Version))
			assert.Equal(t, int64(2), a.Version)

			b.Status = types.StatusCompleted
			err = repo.Update(ctx, b, b.Version)
			assert.ErrorIs(t, err, types.ErrConcurrentModification)
			assert.True(t, types.IsRetriable(err))
			assert.Equal(t, int64(1), b.Version, "a failed update leaves the version alone")

			stored, err := repo.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusPaused, stored.Status)
			assert.Equal(t, int64(2), stored.Version)
		})
	}
}

func TestRepositoryErrors(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrSessionNotFound)

			err = repo.Update(ctx, &types.Session{ID: "missing"}, 1)
			assert.ErrorIs(t, err, types.ErrSessionNotFound)

			s := fullSession("dup-"+name, "u1", time.Now().UTC())
			require.NoError(t, repo.Create(ctx, s))
			assert.ErrorIs(t, repo.Create(ctx, s), types.ErrValidation)
		})
	}
}

func TestRepositoryConcurrentCreate(t *testing.T) {
	const writers = 8
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			errs := make([]error, writers)
			var wg sync.WaitGroup
			for i := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs[i] = repo.Create(ctx, fullSession("race-"+name, "u1", time.Now().UTC()))
				}()
			}
			wg.Wait()

			created := 0
			for _, err := range errs {
				if err == nil {
					created++
					continue
				}
				assert.ErrorIs(t, err, types.ErrValidation)
			}
			assert.Equal(t, 1, created)

			all, err := repo.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 1, "the index holds exactly the created session")
			assert.Equal(t, "race-"+name, all[0].ID)
			assert.Equal(t, int64(1), all[0].Version)
		})
	}
}

func TestRepositoryList(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, fullSession(name+"-c", "alice", base.Add(2*time.Hour))))
			require.NoError(t, repo.Create(ctx, fullSession(name+"-a", "alice", base)))
			require.NoError(t, repo.Create(ctx, fullSession(name+"-b", "bob", base.Add(time.Hour))))

			all, err := repo.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, name+"-a", all[0].ID)
			assert.Equal(t, name+"-b", all[1].ID)

			alice, err := repo.List(ctx, func(s *types.Session) bool { return s.UserID == "alice" })
			require.NoError(t, err)
			require.Len(t, alice, 2)
			assert.Equal(t, name+"-a", alice[0].ID)
			assert.Equal(t, name+"-c", alice[1].ID)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	r, err := Open(ctx, types.StoreConfig{Backend: types.StoreSQLite, SessionDB: filepath.Join(t.TempDir(), "nested", "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, r)
	r.Close()

	r, err = Open(ctx, types.StoreConfig{Backend: types.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, r)

	_, err = Open(ctx, types.StoreConfig{Backend: types.StoreRedis})
	assert.Error(t, err)
	_, err = Open(ctx, types.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}
