// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emenda-labs/agentver/core/store"
)

// Run exercises s against the behaviour every backend must share.
// newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "agents/none/history.json")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "agents/a/history.json", []byte("v1")))
		require.NoError(t, s.Put(ctx, "agents/a/history.json", []byte("v2")))

		got, err := s.Get(ctx, "agents/a/history.json")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, key := range []string{"agents/b/history.json", "agents/a/history.json", "backups/abc.zip"} {
			require.NoError(t, s.Put(ctx, key, []byte("x")))
		}

		keys, err := s.List(ctx, "agents/")
		require.NoError(t, err)
		assert.Equal(t, []string{"agents/a/history.json", "agents/b/history.json"}, keys)

		keys, err = s.List(ctx, "guides/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("RejectsInvalidKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, key := range []string{"", "/abs", "a/../b", "a//b"} {
			assert.Error(t, s.Put(ctx, key, []byte("x")), "key %q", key)
		}
	})

	t.Run("LockExcludes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		unlock, err := s.Lock(ctx, "graph/dependencies.json")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = s.Lock(waitCtx, "graph/dependencies.json")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		other, err := s.Lock(ctx, "agents/a/history.json")
		require.NoError(t, err)
		other()

		unlock()
		unlock()
		again, err := s.Lock(ctx, "graph/dependencies.json")
		require.NoError(t, err)
		again()
	})

	t.Run("LockSerializesReadModifyWrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const key = "counter"
		require.NoError(t, s.Put(ctx, key, []byte("0")))

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := s.Lock(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()
				data, err := s.Get(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				var n int
				fmt.Sscanf(string(data), "%d", &n)
				assert.NoError(t, s.Put(ctx, key, []byte(fmt.Sprint(n+1))))
			}()
		}
		wg.Wait()

		data, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "10", string(data))
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		type doc struct {
			Name string `json:"name"`
		}
		require.NoError(t, store.PutJSON(ctx, s, "docs/one.json", doc{Name: "one"}))

		var got doc
		require.NoError(t, store.GetJSON(ctx, s, "docs/one.json", &got))
		assert.Equal(t, "one", got.Name)
	})
}
