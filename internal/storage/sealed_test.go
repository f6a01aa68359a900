package storage_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/ligustah/ferry/internal/crypt"
	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/storage/blobstore"
)

func TestSealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	raw := blobstore.New(bucket)
	backend := storage.Sealed(raw)
	cred := storage.Credentials{Key: bytes.Repeat([]byte{9}, crypt.KeySize)}
	plain := []byte("the quick brown fox jumps over the lazy dog")

	ref, err := backend.Create(ctx, cred, "b", "fox.txt", int64(len(plain)))
	require.NoError(t, err)
	require.Len(t, ref.Nonce, crypt.NonceSize)

	require.NoError(t, backend.WriteRange(ctx, cred, ref, 0, 9, plain[:10]))
	require.NoError(t, backend.WriteRange(ctx, cred, ref, 10, int64(len(plain)-1), plain[10:]))
	_, err = backend.Commit(ctx, cred, ref)
	require.NoError(t, err)

	stored, err := raw.ReadRange(ctx, cred, ref, 0, int64(len(plain)-1))
	require.NoError(t, err)
	assert.NotEqual(t, plain, stored)

	info, err := backend.Stat(ctx, cred, storage.ObjectRef{BucketID: "b", FileID: ref.FileID})
	require.NoError(t, err)
	assert.Equal(t, ref.Nonce, info.Nonce)

	got, err := backend.ReadRange(ctx, cred, ref, 4, 18)
	require.NoError(t, err)
	assert.Equal(t, plain[4:19], got)
}

func TestSealedWithoutKeyIsPassthrough(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	raw := blobstore.New(bucket)
	backend := storage.Sealed(raw)

	ref, err := backend.Create(ctx, storage.Credentials{}, "b", "", 3)
	require.NoError(t, err)
	assert.Empty(t, ref.Nonce)
	require.NoError(t, backend.WriteRange(ctx, storage.Credentials{}, ref, 0, 2, []byte("abc")))
	_, err = backend.Commit(ctx, storage.Credentials{}, ref)
	require.NoError(t, err)

	stored, err := raw.ReadRange(ctx, storage.Credentials{}, ref, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), stored)
}
