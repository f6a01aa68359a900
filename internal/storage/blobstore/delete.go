package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"

	"github.com/ligustah/ferry/internal/storage"
)

// Delete removes an object and all its parts, committed or not.
// Partially written objects are found through their parts prefix, so
// failed uploads can be cleaned up with the same call.
func (s *Store) Delete(ctx context.Context, ref storage.ObjectRef) error {
	prefix := partsPrefix(ref)

	var found bool
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("blobstore: list parts: %w", err)
		}
		found = true
		if err := s.bucket.Delete(ctx, obj.Key); err != nil && !isNotExist(err) {
			return fmt.Errorf("blobstore: delete %s: %w", obj.Key, err)
		}
	}

	err := s.bucket.Delete(ctx, manifestPath(ref))
	switch {
	case err == nil:
		found = true
	case !isNotExist(err):
		return fmt.Errorf("blobstore: delete manifest: %w", err)
	}

	s.mu.Lock()
	delete(s.manifests, manifestPath(ref))
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("blobstore: no parts or manifest found for %s", ref)
	}
	return nil
}
