package archiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satori-nvr/satori/internal/satoriconfig"
)

func TestLocalStore_PutGetRoundtrip(t *testing.T) {
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "front/seg_00000001.ts", []byte("data")))

	got, err := store.Get(ctx, "front/seg_00000001.ts")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestLocalStore_PutIsIdempotent(t *testing.T) {
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "front/seg.ts", []byte("data")))
	require.NoError(t, store.Put(ctx, "front/seg.ts", []byte("data")))

	got, err := store.Get(ctx, "front/seg.ts")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestLocalStore_GetMissingKeyIsNotFound(t *testing.T) {
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing.ts")
	assert.Error(t, err)
}

func TestLocalStore_ListAndDelete(t *testing.T) {
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "front/a.ts", []byte("1")))
	require.NoError(t, store.Put(ctx, "front/b.ts", []byte("2")))
	require.NoError(t, store.Put(ctx, "back/c.ts", []byte("3")))

	keys, err := store.List(ctx, "front")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, store.Delete(ctx, "front/a.ts"))
	keys, err = store.List(ctx, "front")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
