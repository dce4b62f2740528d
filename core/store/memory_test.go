package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emenda-labs/agentver/core/store"
	"github.com/emenda-labs/agentver/core/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestMemory_FailPut(t *testing.T) {
	m := store.NewMemory()
	boom := errors.New("disk full")
	m.FailPut = func(key string) error {
		if key == "backups/x.zip" {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	assert.ErrorIs(t, m.Put(ctx, "backups/x.zip", nil), boom)
	require.NoError(t, m.Put(ctx, "agents/a/history.json", []byte("{}")))
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("abc")))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestValidateKey(t *testing.T) {
	valid := []string{"agents/a/history.json", "backups/abc.zip", "k"}
	for _, key := range valid {
		assert.NoError(t, store.ValidateKey(key), key)
	}
	invalid := []string{"", "/x", "a/../b", "./a", "a/", `a\b`}
	for _, key := range invalid {
		assert.Error(t, store.ValidateKey(key), key)
	}
}
