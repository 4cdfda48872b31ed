package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("summary:u1:p1:2026-08-27", []byte(`{"day":"2026-08-27"}`)))

	raw, err := store.Get("summary:u1:p1:2026-08-27")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"day":"2026-08-27"}`), raw)
}

func TestStore_GetMissingKey(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetOverwrites(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("k", []byte("one")))
	require.NoError(t, store.Set("k", []byte("two")))

	raw, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), raw)
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("k", []byte("v")))
	require.NoError(t, store.Delete("k"))

	_, err := store.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete("k"))
}

func TestStore_KeysByPrefix(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("summary:u1:p1:2026-08-26", []byte("a")))
	require.NoError(t, store.Set("summary:u1:p1:2026-08-27", []byte("b")))
	require.NoError(t, store.Set("offline_queue", []byte("c")))

	keys, err := store.Keys("summary:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"summary:u1:p1:2026-08-26",
		"summary:u1:p1:2026-08-27",
	}, keys)
}
