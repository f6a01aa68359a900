package storage

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ligustah/ferry/internal/crypt"
)

// Sealed wraps a backend so that stored bytes are encrypted with the range
// cipher whenever Credentials.Key is set.
func Sealed(b Backend) Backend {
	return &sealed{Backend: b}
}

type sealed struct {
	Backend
}

func (s *sealed) ReadRange(ctx context.Context, cred Credentials, ref ObjectRef, start, end int64) ([]byte, error) {
	data, err := s.Backend.ReadRange(ctx, cred, ref, start, end)
	if err != nil || len(cred.Key) == 0 {
		return data, err
	}
	c, err := crypt.New(cred.Key, ref.Nonce)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := c.XORAt(data, data, start); err != nil {
		return nil, err
	}
	return data, nil
}

// Create assigns a fresh nonce to encrypted objects.
func (s *sealed) Create(ctx context.Context, cred Credentials, bucketID, name string, size int64) (ObjectRef, error) {
	ref, err := s.Backend.Create(ctx, cred, bucketID, name, size)
	if err != nil || len(cred.Key) == 0 {
		return ref, err
	}
	if len(ref.Nonce) == 0 {
		ref.Nonce = make([]byte, crypt.NonceSize)
		if _, err := rand.Read(ref.Nonce); err != nil {
			return ObjectRef{}, fmt.Errorf("storage: generate nonce: %w", err)
		}
	}
	return ref, nil
}

func (s *sealed) WriteRange(ctx context.Context, cred Credentials, ref ObjectRef, start, end int64, data []byte) error {
	if len(cred.Key) == 0 {
		return s.Backend.WriteRange(ctx, cred, ref, start, end, data)
	}
	c, err := crypt.New(cred.Key, ref.Nonce)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	out := make([]byte, len(data))
	if err := c.XORAt(out, data, start); err != nil {
		return err
	}
	return s.Backend.WriteRange(ctx, cred, ref, start, end, out)
}
