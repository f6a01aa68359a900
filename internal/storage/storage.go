// Package storage defines the object-storage capability the transfer core
// consumes: byte-range reads and writes against an object identified by a
// bucket/file pair, authenticated with caller-supplied credentials.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Credentials authenticate requests against the backend.
// Key is the already-derived file encryption key; when empty, bytes are
// stored as given.
type Credentials struct {
	User  string `json:"user,omitempty"`
	Token string `json:"token,omitempty"`
	Key   []byte `json:"key,omitempty"`
}

// ObjectRef identifies one stored object.
type ObjectRef struct {
	BucketID string `json:"bucketId"`
	FileID   string `json:"fileId"`
	Nonce    []byte `json:"nonce,omitempty"`
}

func (r ObjectRef) String() string {
	return r.BucketID + "/" + r.FileID
}

// ObjectInfo describes a committed object.
type ObjectInfo struct {
	Size  int64
	Nonce []byte
}

// ErrIncomplete is returned by Commit when the written ranges do not cover
// the declared object size.
var ErrIncomplete = errors.New("storage: object is incomplete")

// Backend is a ranged object store. start and end are inclusive.
type Backend interface {
	// Stat describes a committed object.
	Stat(ctx context.Context, cred Credentials, ref ObjectRef) (*ObjectInfo, error)

	// ReadRange returns bytes [start, end] of a committed object.
	ReadRange(ctx context.Context, cred Credentials, ref ObjectRef, start, end int64) ([]byte, error)

	// Create reserves a new object of size bytes in bucketID.
	Create(ctx context.Context, cred Credentials, bucketID, name string, size int64) (ObjectRef, error)

	// WriteRange stores data as bytes [start, end] of an object being written.
	WriteRange(ctx context.Context, cred Credentials, ref ObjectRef, start, end int64, data []byte) error

	// Commit finalizes an object and returns its file id.
	Commit(ctx context.Context, cred Credentials, ref ObjectRef) (string, error)
}

// CheckRange validates an inclusive range against a data length.
func CheckRange(start, end int64, n int) error {
	if start < 0 || end < start {
		return fmt.Errorf("storage: invalid range [%d-%d]", start, end)
	}
	if end-start+1 != int64(n) {
		return fmt.Errorf("storage: range [%d-%d] does not match %d bytes", start, end, n)
	}
	return nil
}
