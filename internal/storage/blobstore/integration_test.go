//go:build integration

package blobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/testutils"
)

func TestMinioRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minio := testutils.StartMinioContainer(t, ctx, "blobstore-test")
	defer minio.Close(ctx)

	bucket, err := minio.OpenBucket(ctx)
	require.NoError(t, err)
	defer bucket.Close()

	s := New(bucket)
	data := testData(3*1024*1024 + 17)
	ref := writeObject(t, s, data, 0, 128*1024, 1024*1024, int64(len(data)))

	fileID, err := s.Commit(ctx, storage.Credentials{}, ref)
	require.NoError(t, err)
	assert.Equal(t, ref.FileID, fileID)

	got, err := s.ReadRange(ctx, storage.Credentials{}, ref, 100*1024, 2*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, data[100*1024:2*1024*1024+1], got)

	result, err := s.Validate(ctx, ref)
	require.NoError(t, err)
	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.PartCount)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Stat(ctx, storage.Credentials{}, ref)
	assert.Error(t, err)
}
