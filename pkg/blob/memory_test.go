package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
)

func TestMemory_PutGetHead(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	info, err := store.Put(ctx, "backups/a.json", strings.NewReader(`{"nonConformities":[]}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"records": "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(22), info.Size)

	got, body, err := store.Get(ctx, "backups/a.json")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"nonConformities":[]}`, string(data))
	assert.Equal(t, "application/json", got.ContentType)

	head, err := store.Head(ctx, "backups/a.json")
	require.NoError(t, err)
	head.Metadata["records"] = "changed"
	again, _ := store.Head(ctx, "backups/a.json")
	assert.Equal(t, "0", again.Metadata["records"], "metadata must be copied out")
}

func TestMemory_PutOverwrites(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "k", strings.NewReader("three"), PutOptions{})
	require.NoError(t, err)

	info, err := store.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}

func TestMemory_NotFound(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, _, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Head(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemory_ListByPrefixSorted(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	for _, key := range []string{"backups/b.json", "other/x.json", "backups/a.json"} {
		_, err := store.Put(ctx, key, strings.NewReader("{}"), PutOptions{})
		require.NoError(t, err)
	}

	infos, err := store.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "backups/a.json", infos[0].Key)
	assert.Equal(t, "backups/b.json", infos[1].Key)

	require.NoError(t, store.Delete(ctx, "backups/a.json"))
	infos, err = store.List(ctx, "backups/")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
