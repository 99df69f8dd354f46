package replicate

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"cellenics/internal/blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitelyEqualOnlyOnProvenMatch(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	src, err := store.Put(ctx, "src", "e1/a", bytes.NewReader([]byte("same")), blob.PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "dst", "ns-e1/a", bytes.NewReader([]byte("same")), blob.PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "dst", "ns-e1/b", bytes.NewReader([]byte("different")), blob.PutOptions{})
	require.NoError(t, err)

	cmp := NewComparator(store, nil)
	assert.True(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/a"}, src))
	assert.False(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/b"}, src), "different content")
	assert.False(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/missing"}, src), "missing target")

	noTag := src
	noTag.ETag = ""
	assert.False(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/a"}, noTag), "no fingerprint")

	store.SetHooks(blob.MemoryHooks{Matches: func(string, string) error { return errors.New("timeout") }})
	assert.False(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/a"}, src), "inconclusive check")
}

func TestDefinitelyEqualAgainstS3(t *testing.T) {
	ctx := context.Background()
	store, mock := blob.NewMockS3ForTests()
	mock.Put("src", "e1/a", []byte("payload"))
	mock.Put("dst", "ns-e1/a", []byte("payload"))
	src, err := store.Head(ctx, "src", "e1/a")
	require.NoError(t, err)

	cmp := NewComparator(store, nil)
	assert.True(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/a"}, src))
	mock.Put("dst", "ns-e1/a", []byte("changed"))
	assert.False(t, cmp.DefinitelyEqual(ctx, Location{"dst", "ns-e1/a"}, src))
}
