package blobstore

import (
	"context"
	"fmt"

	"github.com/ligustah/ferry/internal/storage"
)

// ValidationResult contains the results of validating a committed object.
type ValidationResult struct {
	Valid              bool     // true if all parts exist and match the manifest
	TotalSize          int64    // total size from manifest
	PartCount          int      // number of parts in manifest
	MissingParts       int      // number of parts that don't exist
	SizeMismatches     int      // number of parts with wrong size
	ChecksumMismatches int      // number of parts whose sum differs from the manifest
	Gaps               int      // number of holes between consecutive parts
	Errors             []string // detailed error messages
}

type validateOptions struct {
	verifyData bool
}

// ValidateOption configures Validate.
type ValidateOption func(*validateOptions)

// WithVerifyData makes Validate download every part and hash it. Without
// it only the sums recorded in part metadata are compared.
func WithVerifyData(verify bool) ValidateOption {
	return func(o *validateOptions) {
		o.verifyData = verify
	}
}

// Validate checks that a committed object is complete and all parts exist
// with the size and sha256 recorded in the manifest. By default it reads
// part attributes only.
//
// Missing parts, mismatches and gaps are reported in the result with
// Valid=false, not as errors. An error is returned when the manifest cannot
// be read or the bucket cannot be queried.
func (s *Store) Validate(ctx context.Context, ref storage.ObjectRef, options ...ValidateOption) (*ValidationResult, error) {
	var opts validateOptions
	for _, o := range options {
		o(&opts)
	}

	m, err := s.manifest(ctx, ref)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:     true,
		TotalSize: m.TotalSize,
		PartCount: len(m.Parts),
		Errors:    make([]string, 0),
	}
	fail := func(counter *int, format string, args ...any) {
		result.Valid = false
		if counter != nil {
			*counter++
		}
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	var next int64
	for i, p := range m.Parts {
		if p.Offset != next {
			fail(&result.Gaps, "part %d starts at %d, expected %d", i, p.Offset, next)
		}
		next = p.Offset + p.Size

		key := partsPrefix(ref) + p.Object
		attrs, err := s.bucket.Attributes(ctx, key)
		if err != nil {
			if isNotExist(err) {
				fail(&result.MissingParts, "part %d missing: %s", i, key)
				continue
			}
			return nil, fmt.Errorf("blobstore: check part %d: %w", i, err)
		}

		if attrs.Size != p.Size {
			fail(&result.SizeMismatches, "part %d size mismatch: expected %d, got %d", i, p.Size, attrs.Size)
			continue
		}
		if p.Checksum != "" && attrs.Metadata[checksumKey] != p.Checksum {
			fail(&result.ChecksumMismatches, "part %d checksum mismatch: expected %s, got %q", i, p.Checksum, attrs.Metadata[checksumKey])
			continue
		}

		if opts.verifyData {
			data, err := s.bucket.ReadAll(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("blobstore: read part %d: %w", i, err)
			}
			if err := checkPart(p, data); err != nil {
				fail(&result.ChecksumMismatches, "part %d: %v", i, err)
			}
		}
	}

	if next != m.TotalSize {
		fail(nil, "parts cover %d of %d bytes", next, m.TotalSize)
	}

	return result, nil
}
