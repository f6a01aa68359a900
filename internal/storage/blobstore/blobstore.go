package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/ferry/internal/storage"
)

const (
	partPrefix    = "part-"
	stateName     = "state.json"
	checksumKey   = "checksum"
	manifestExt   = ".manifest.json"
	partsDirExt   = ".parts/"
	partNameWidth = 16
)

// ErrChecksum is returned when part data does not match its recorded sum.
var ErrChecksum = errors.New("blobstore: checksum mismatch")

// Manifest describes a committed object.
type Manifest struct {
	TotalSize   int64             `json:"total_size"`
	Nonce       []byte            `json:"nonce,omitempty"`
	Parts       []PartInfo        `json:"parts"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// PartInfo describes a single part in the manifest.
type PartInfo struct {
	Object   string `json:"object"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// state tracks an object that is being written.
type state struct {
	TotalSize int64             `json:"total_size"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}

// Store is a storage.Backend backed by a blob bucket.
type Store struct {
	bucket *blob.Bucket

	mu        sync.Mutex
	manifests map[string]*Manifest
}

var _ storage.Backend = (*Store)(nil)

// New returns a Store writing into bucket. The caller owns the bucket.
func New(bucket *blob.Bucket) *Store {
	return &Store{
		bucket:    bucket,
		manifests: make(map[string]*Manifest),
	}
}

// Open opens the bucket at bucketURL and returns a Store over it.
// Close the returned Store to release the bucket.
func Open(ctx context.Context, bucketURL string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open bucket: %w", err)
	}
	return New(bucket), nil
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func objectBase(ref storage.ObjectRef) string {
	return path.Join(ref.BucketID, ref.FileID)
}

func partsPrefix(ref storage.ObjectRef) string {
	return objectBase(ref) + partsDirExt
}

func manifestPath(ref storage.ObjectRef) string {
	return objectBase(ref) + manifestExt
}

func partName(offset int64) string {
	return fmt.Sprintf("%s%0*d", partPrefix, partNameWidth, offset)
}

// Stat returns the size and nonce recorded in the manifest.
func (s *Store) Stat(ctx context.Context, _ storage.Credentials, ref storage.ObjectRef) (*storage.ObjectInfo, error) {
	m, err := s.manifest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &storage.ObjectInfo{Size: m.TotalSize, Nonce: m.Nonce}, nil
}

// Manifest returns the manifest of a committed object.
func (s *Store) Manifest(ctx context.Context, ref storage.ObjectRef) (*Manifest, error) {
	return s.manifest(ctx, ref)
}

func (s *Store) manifest(ctx context.Context, ref storage.ObjectRef) (*Manifest, error) {
	key := manifestPath(ref)

	s.mu.Lock()
	m, ok := s.manifests[key]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read manifest: %w", err)
	}
	m = &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("blobstore: unmarshal manifest: %w", err)
	}

	s.mu.Lock()
	s.manifests[key] = m
	s.mu.Unlock()
	return m, nil
}

// ReadRange reads bytes [start, end] by stitching together the overlapping parts.
func (s *Store) ReadRange(ctx context.Context, _ storage.Credentials, ref storage.ObjectRef, start, end int64) ([]byte, error) {
	m, err := s.manifest(ctx, ref)
	if err != nil {
		return nil, err
	}
	if start < 0 || end < start || end >= m.TotalSize {
		return nil, fmt.Errorf("blobstore: range [%d-%d] outside object of %d bytes", start, end, m.TotalSize)
	}

	buf := make([]byte, end-start+1)

	// Parts are sorted by offset; find the first one that ends after start.
	i := sort.Search(len(m.Parts), func(i int) bool {
		p := m.Parts[i]
		return p.Offset+p.Size > start
	})
	for ; i < len(m.Parts) && m.Parts[i].Offset <= end; i++ {
		p := m.Parts[i]
		from := max(start, p.Offset)
		to := min(end, p.Offset+p.Size-1)

		r, err := s.bucket.NewRangeReader(ctx, partsPrefix(ref)+p.Object, from-p.Offset, to-from+1, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: open part %s: %w", p.Object, err)
		}
		dst := buf[from-start : to-start+1]
		_, err = io.ReadFull(r, dst)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("blobstore: read part %s: %w", p.Object, err)
		}
		// Only a whole part can be checked against its sum.
		if from == p.Offset && to == p.Offset+p.Size-1 {
			if err := checkPart(p, dst); err != nil {
				return nil, err
			}
		}
	}

	return buf, nil
}

// Create records a new object of size bytes and returns its reference.
func (s *Store) Create(ctx context.Context, _ storage.Credentials, bucketID, name string, size int64) (storage.ObjectRef, error) {
	if size < 0 {
		return storage.ObjectRef{}, fmt.Errorf("blobstore: negative size %d", size)
	}
	ref := storage.ObjectRef{BucketID: bucketID, FileID: uuid.NewString()}

	st := state{
		TotalSize: size,
		StartedAt: time.Now(),
	}
	if name != "" {
		st.Metadata = map[string]string{"name": name}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return storage.ObjectRef{}, err
	}
	if err := s.bucket.WriteAll(ctx, partsPrefix(ref)+stateName, data, nil); err != nil {
		return storage.ObjectRef{}, fmt.Errorf("blobstore: write state: %w", err)
	}
	return ref, nil
}

// WriteRange stores data as a part object starting at start.
func (s *Store) WriteRange(ctx context.Context, _ storage.Credentials, ref storage.ObjectRef, start, end int64, data []byte) error {
	if err := storage.CheckRange(start, end, len(data)); err != nil {
		return err
	}

	sum := sha256.Sum256(data)
	opts := &blob.WriterOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{checksumKey: hex.EncodeToString(sum[:])},
	}
	if err := s.bucket.WriteAll(ctx, partsPrefix(ref)+partName(start), data, opts); err != nil {
		return fmt.Errorf("blobstore: write part at %d: %w", start, err)
	}
	return nil
}

// Commit checks the written parts cover the object and writes the manifest.
func (s *Store) Commit(ctx context.Context, _ storage.Credentials, ref storage.ObjectRef) (string, error) {
	prefix := partsPrefix(ref)

	data, err := s.bucket.ReadAll(ctx, prefix+stateName)
	if err != nil {
		return "", fmt.Errorf("blobstore: read state: %w", err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("blobstore: unmarshal state: %w", err)
	}

	parts, err := s.listParts(ctx, ref)
	if err != nil {
		return "", err
	}

	var next int64
	for _, p := range parts {
		if p.Offset != next {
			return "", fmt.Errorf("%w: gap at byte %d", storage.ErrIncomplete, next)
		}
		next = p.Offset + p.Size
	}
	if next != st.TotalSize {
		return "", fmt.Errorf("%w: %d of %d bytes written", storage.ErrIncomplete, next, st.TotalSize)
	}

	manifest := Manifest{
		TotalSize:   st.TotalSize,
		Nonce:       ref.Nonce,
		Parts:       parts,
		Metadata:    st.Metadata,
		CompletedAt: time.Now(),
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("blobstore: marshal manifest: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, manifestPath(ref), manifestData, nil); err != nil {
		return "", fmt.Errorf("blobstore: write manifest: %w", err)
	}

	if err := s.bucket.Delete(ctx, prefix+stateName); err != nil && !isNotExist(err) {
		return "", fmt.Errorf("blobstore: delete state: %w", err)
	}

	return ref.FileID, nil
}

// listParts returns the part objects of ref sorted by offset.
func (s *Store) listParts(ctx context.Context, ref storage.ObjectRef) ([]PartInfo, error) {
	prefix := partsPrefix(ref)

	var parts []PartInfo
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix + partPrefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: list parts: %w", err)
		}

		name := strings.TrimPrefix(obj.Key, prefix)
		offset, err := strconv.ParseInt(strings.TrimPrefix(name, partPrefix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("blobstore: unexpected part %s", obj.Key)
		}

		attrs, err := s.bucket.Attributes(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("blobstore: part %s attributes: %w", name, err)
		}

		parts = append(parts, PartInfo{
			Object:   name,
			Offset:   offset,
			Size:     obj.Size,
			Checksum: attrs.Metadata[checksumKey],
		})
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].Offset < parts[j].Offset })
	return parts, nil
}

// checkPart compares data against the checksum recorded for p. Parts
// without a recorded checksum always pass.
func checkPart(p PartInfo, data []byte) error {
	if p.Checksum == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != p.Checksum {
		return fmt.Errorf("%w: part %s has sha256 %s, manifest says %s", ErrChecksum, p.Object, got, p.Checksum)
	}
	return nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
