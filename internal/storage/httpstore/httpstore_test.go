package httpstore

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryhttp "github.com/ligustah/ferry/internal/http"
	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/testutils"
)

var cred = storage.Credentials{User: "alice", Token: "s3cret"}

func TestUploadDownload(t *testing.T) {
	gw := testutils.NewGateway(t, cred.User, cred.Token)
	s := New(gw.URL, ferryhttp.DefaultOptions())
	ctx := context.Background()
	data := testutils.GenerateTestData(1000)

	ref, err := s.Create(ctx, cred, "bucket-1", "data.bin", int64(len(data)))
	require.NoError(t, err)
	ref.Nonce = []byte("nonce-bytes")

	require.NoError(t, s.WriteRange(ctx, cred, ref, 600, 999, data[600:]))
	require.NoError(t, s.WriteRange(ctx, cred, ref, 0, 599, data[:600]))
	fileID, err := s.Commit(ctx, cred, ref)
	require.NoError(t, err)
	assert.Equal(t, ref.FileID, fileID)

	info, err := s.Stat(ctx, cred, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.Size)
	assert.Equal(t, []byte("nonce-bytes"), info.Nonce)

	got, err := s.ReadRange(ctx, cred, ref, 550, 650)
	require.NoError(t, err)
	assert.Equal(t, data[550:651], got)
}

func TestUnauthorized(t *testing.T) {
	gw := testutils.NewGateway(t, cred.User, cred.Token)
	gw.Put("b", "f", []byte("hello"), nil)
	s := New(gw.URL, ferryhttp.DefaultOptions())

	_, err := s.ReadRange(context.Background(), storage.Credentials{User: "mallory"}, storage.ObjectRef{BucketID: "b", FileID: "f"}, 0, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferryhttp.ErrUnauthorized))
}

func TestServerErrorSurfaces(t *testing.T) {
	gw := testutils.NewGateway(t, "", "")
	gw.Put("b", "f", []byte("hello"), nil)
	gw.FailNext(http.StatusBadGateway)
	s := New(gw.URL, ferryhttp.DefaultOptions())

	_, err := s.ReadRange(context.Background(), storage.Credentials{}, storage.ObjectRef{BucketID: "b", FileID: "f"}, 0, 4)
	var se *ferryhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)

	got, err := s.ReadRange(context.Background(), storage.Credentials{}, storage.ObjectRef{BucketID: "b", FileID: "f"}, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestWriteRangeLengthMismatch(t *testing.T) {
	s := New("http://127.0.0.1:1", ferryhttp.DefaultOptions())
	err := s.WriteRange(context.Background(), storage.Credentials{}, storage.ObjectRef{BucketID: "b", FileID: "f"}, 0, 9, []byte("x"))
	assert.Error(t, err)
}
