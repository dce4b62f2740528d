package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emenda-labs/agentver/core/store"
	"github.com/emenda-labs/agentver/core/store/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "agents/a/history.json", []byte("{}")))
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "agents/a/history.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(DefaultConfig())
	assert.Error(t, err)
}
