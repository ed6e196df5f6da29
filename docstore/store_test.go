package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/Fixen7/lifequest-app/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c, ps := testutil.SetupTestCache(t)
	db := testutil.SetupTestDB(t)
	return map[string]Store{
		BackendCache: NewCacheStore(c, ps, logger),
		BackendSQL:   NewSQLStore(db, ps, logger),
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestAncestors(t *testing.T) {
	assert.Equal(t,
		[]string{"users/u1/objectives/o1", "users/u1/objectives", "users/u1", "users"},
		ancestors("users/u1/objectives/o1"))
}

func TestSplitPath(t *testing.T) {
	coll, id, err := splitPath("users/u1/objectives/o1")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/objectives", coll)
	assert.Equal(t, "o1", id)

	for _, bad := range []string{"", "users", "users/u1/objectives", "users//x/y"} {
		_, _, err := splitPath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestStore_CreateGet(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Get(ctx, "users/u1/playerStats/main")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Create(ctx, "users/u1/playerStats/main", Fields{"level": 1, "gold": 0}))
		got, err := s.Get(ctx, "users/u1/playerStats/main")
		require.NoError(t, err)
		assert.Equal(t, float64(1), got["level"])

		err = s.Create(ctx, "users/u1/playerStats/main", Fields{"level": 9})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestStore_MergeWriteOnlyTouchesGivenFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := "users/u1/objectives/o1"
		require.NoError(t, s.MergeWrite(ctx, p, Fields{"name": "Run", "currentProgress": 0}))
		require.NoError(t, s.MergeWrite(ctx, p, Fields{"currentProgress": 60}))

		got, err := s.Get(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "Run", got["name"])
		assert.Equal(t, float64(60), got["currentProgress"])
	})
}

func TestStore_DeleteAndList(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.MergeWrite(ctx, "users/u1/objectives/b", Fields{"name": "b"}))
		require.NoError(t, s.MergeWrite(ctx, "users/u1/objectives/a", Fields{"name": "a"}))
		require.NoError(t, s.MergeWrite(ctx, "users/u1/objectives/a/subtasks/s1", Fields{"text": "x"}))
		require.NoError(t, s.MergeWrite(ctx, "users/u2/objectives/c", Fields{"name": "c"}))

		list, err := s.List(ctx, "users/u1/objectives")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "users/u1/objectives/a", list[0].Path)
		assert.Equal(t, "b", list[1].Data["name"])

		require.NoError(t, s.Delete(ctx, "users/u1/objectives/b"))
		require.NoError(t, s.Delete(ctx, "users/u1/objectives/missing"))
		_, err = s.Get(ctx, "users/u1/objectives/b")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err = s.List(ctx, "users/u1/objectives")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestStore_SubscribeReceivesSnapshots(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, stop, err := s.Subscribe(ctx, "users/u1")
		require.NoError(t, err)
		defer stop()

		p := "users/u1/objectives/o1"
		require.NoError(t, s.MergeWrite(ctx, p, Fields{"name": "Run", "totalProgress": 100}))
		require.NoError(t, s.MergeWrite(ctx, p, Fields{"currentProgress": 10}))
		require.NoError(t, s.MergeWrite(ctx, "users/u2/objectives/o9", Fields{"name": "other user"}))
		require.NoError(t, s.Delete(ctx, p))

		first := next(t, changes)
		assert.Equal(t, p, first.Path)
		second := next(t, changes)
		assert.Equal(t, "Run", second.Data["name"], "change carries the full document")
		assert.Equal(t, float64(10), second.Data["currentProgress"])
		third := next(t, changes)
		assert.True(t, third.Deleted)
		assert.Equal(t, p, third.Path)
	})
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	c, ps := testutil.SetupTestCache(t)

	s, err := New(BackendCache, nil, c, ps, logger)
	require.NoError(t, err)
	assert.IsType(t, &CacheStore{}, s)

	_, err = New(BackendSQL, nil, c, ps, logger)
	assert.Error(t, err)

	_, err = New("etcd", nil, c, ps, logger)
	assert.Error(t, err)
}

func next(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}
