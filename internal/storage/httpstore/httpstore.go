// Package httpstore implements storage.Backend against an HTTP object
// gateway speaking plain ranged requests:
//
//	HEAD /buckets/{bucket}/files/{file}                 size and nonce
//	GET  /buckets/{bucket}/files/{file}   Range         read bytes
//	POST /buckets/{bucket}/files?name=&size=            create, returns {"fileId": ...}
//	PUT  /buckets/{bucket}/files/{file}   Content-Range write bytes
//	POST /buckets/{bucket}/files/{file}/commit          finalize
//
// Requests carry the credentials as basic auth.
package httpstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	ferryhttp "github.com/ligustah/ferry/internal/http"
	"github.com/ligustah/ferry/internal/storage"
)

// NonceHeader carries the object nonce, base64 encoded.
const NonceHeader = "X-Ferry-Nonce"

// Store is a storage.Backend talking to an HTTP gateway.
type Store struct {
	base   string
	client *ferryhttp.Client
}

var _ storage.Backend = (*Store)(nil)

// New returns a Store for the gateway at baseURL.
func New(baseURL string, opts ferryhttp.Options) *Store {
	return &Store{
		base:   strings.TrimRight(baseURL, "/"),
		client: ferryhttp.NewClient(opts),
	}
}

func (s *Store) fileURL(ref storage.ObjectRef) string {
	return fmt.Sprintf("%s/buckets/%s/files/%s", s.base, url.PathEscape(ref.BucketID), url.PathEscape(ref.FileID))
}

func authHeader(cred storage.Credentials) http.Header {
	h := http.Header{}
	if cred.User != "" || cred.Token != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(cred.User + ":" + cred.Token))
		h.Set("Authorization", "Basic "+auth)
	}
	return h
}

// Stat issues a HEAD for the object.
func (s *Store) Stat(ctx context.Context, cred storage.Credentials, ref storage.ObjectRef) (*storage.ObjectInfo, error) {
	info, err := s.client.Head(ctx, s.fileURL(ref), authHeader(cred))
	if err != nil {
		return nil, fmt.Errorf("httpstore: stat %s: %w", ref, err)
	}
	oi := &storage.ObjectInfo{Size: info.Size}
	if n := info.Header.Get(NonceHeader); n != "" {
		nonce, err := base64.StdEncoding.DecodeString(n)
		if err != nil {
			return nil, fmt.Errorf("httpstore: decode nonce: %w", err)
		}
		oi.Nonce = nonce
	}
	return oi, nil
}

// ReadRange fetches bytes [start, end] with a Range request.
func (s *Store) ReadRange(ctx context.Context, cred storage.Credentials, ref storage.ObjectRef, start, end int64) ([]byte, error) {
	resp, err := s.client.GetRange(ctx, s.fileURL(ref), authHeader(cred), start, end)
	if err != nil {
		return nil, fmt.Errorf("httpstore: read %s [%d-%d]: %w", ref, start, end, err)
	}
	defer resp.Body.Close()

	buf := make([]byte, end-start+1)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, fmt.Errorf("httpstore: read %s [%d-%d]: %w", ref, start, end, err)
	}
	return buf, nil
}

// Create asks the gateway for a new file id.
func (s *Store) Create(ctx context.Context, cred storage.Credentials, bucketID, name string, size int64) (storage.ObjectRef, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("size", strconv.FormatInt(size, 10))
	u := fmt.Sprintf("%s/buckets/%s/files?%s", s.base, url.PathEscape(bucketID), q.Encode())

	body, err := s.client.Post(ctx, u, authHeader(cred))
	if err != nil {
		return storage.ObjectRef{}, fmt.Errorf("httpstore: create: %w", err)
	}
	var out struct {
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return storage.ObjectRef{}, fmt.Errorf("httpstore: decode create response: %w", err)
	}
	if out.FileID == "" {
		return storage.ObjectRef{}, fmt.Errorf("httpstore: create returned no file id")
	}
	return storage.ObjectRef{BucketID: bucketID, FileID: out.FileID}, nil
}

// WriteRange uploads data as bytes [start, end].
func (s *Store) WriteRange(ctx context.Context, cred storage.Credentials, ref storage.ObjectRef, start, end int64, data []byte) error {
	if err := storage.CheckRange(start, end, len(data)); err != nil {
		return err
	}
	if err := s.client.PutRange(ctx, s.fileURL(ref), authHeader(cred), start, end, data); err != nil {
		return fmt.Errorf("httpstore: write %s [%d-%d]: %w", ref, start, end, err)
	}
	return nil
}

// Commit finalizes the object, recording its nonce.
func (s *Store) Commit(ctx context.Context, cred storage.Credentials, ref storage.ObjectRef) (string, error) {
	h := authHeader(cred)
	if len(ref.Nonce) > 0 {
		h.Set(NonceHeader, base64.StdEncoding.EncodeToString(ref.Nonce))
	}
	if _, err := s.client.Post(ctx, s.fileURL(ref)+"/commit", h); err != nil {
		return "", fmt.Errorf("httpstore: commit %s: %w", ref, err)
	}
	return ref.FileID, nil
}
