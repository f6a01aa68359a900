// Package crypt implements the seekable stream cipher applied to stored
// file bytes. Any byte range can be encrypted or decrypted independently,
// which is what ranged chunk transfers need.
package crypt

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20"
)

const blockSize = 64

// Sizes of key and nonce material.
const (
	KeySize   = chacha20.KeySize
	NonceSize = chacha20.NonceSize
)

// MaxOffset is the largest byte offset addressable by a single key/nonce pair.
const MaxOffset = int64(math.MaxUint32) * blockSize

var (
	ErrKeySize   = fmt.Errorf("crypt: key must be %d bytes", KeySize)
	ErrNonceSize = fmt.Errorf("crypt: nonce must be %d bytes", NonceSize)
	ErrOffset    = errors.New("crypt: offset out of range")
)

// RangeCipher XORs the keystream of one object into byte ranges.
type RangeCipher struct {
	key   []byte
	nonce []byte
}

// New returns a RangeCipher for the given key and nonce.
func New(key, nonce []byte) (*RangeCipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}
	return &RangeCipher{
		key:   append([]byte(nil), key...),
		nonce: append([]byte(nil), nonce...),
	}, nil
}

// XORAt XORs src into dst as if src started at byte offset of the object.
// dst and src may overlap exactly. Encryption and decryption are the same
// operation.
func (c *RangeCipher) XORAt(dst, src []byte, offset int64) error {
	if offset < 0 || offset+int64(len(src)) > MaxOffset {
		return ErrOffset
	}

	s, err := chacha20.NewUnauthenticatedCipher(c.key, c.nonce)
	if err != nil {
		return fmt.Errorf("crypt: %w", err)
	}
	s.SetCounter(uint32(offset / blockSize))

	if skip := offset % blockSize; skip > 0 {
		var pad [blockSize]byte
		s.XORKeyStream(pad[:skip], pad[:skip])
	}
	s.XORKeyStream(dst[:len(src)], src)
	return nil
}
