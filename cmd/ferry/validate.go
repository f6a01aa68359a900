package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/storage/blobstore"
)

// runValidate checks that a stored file is complete and all parts exist
// with correct sizes and checksums. Part data is only downloaded with
// -verify-data.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	common := addCommonFlags(fs)

	fileID := fs.String("file-id", "", "File id (required)")
	verifyData := fs.Bool("verify-data", false, "Download every part and check its sha256")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry validate [options]

Verify that a stored file is complete and all parts exist with correct sizes
and checksums. Only part metadata is checked unless -verify-data is given.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	ctx, cancel := withSignals(context.Background())
	defer cancel()

	cfg, err := common.load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if *fileID == "" || cfg.BucketID == "" || cfg.Bucket == "" {
		fmt.Fprintln(os.Stderr, "Error: -bucket, -bucket-id, and -file-id are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer store.Close()

	ref := storage.ObjectRef{BucketID: cfg.BucketID, FileID: *fileID}
	manifest, err := store.Manifest(ctx, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	result, err := store.Validate(ctx, ref, blobstore.WithVerifyData(*verifyData))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("File: %s\n", ref)
	if name := manifest.Metadata["name"]; name != "" {
		fmt.Printf("Name: %s\n", name)
	}
	fmt.Printf("Completed: %s\n", manifest.CompletedAt.Format(time.RFC3339))
	fmt.Printf("Total size: %d bytes\n", result.TotalSize)
	fmt.Printf("Parts: %d\n", result.PartCount)

	if result.Valid {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}

	fmt.Println("Status: INVALID")
	fmt.Printf("Missing parts: %d\n", result.MissingParts)
	fmt.Printf("Size mismatches: %d\n", result.SizeMismatches)
	fmt.Printf("Checksum mismatches: %d\n", result.ChecksumMismatches)
	fmt.Printf("Gaps: %d\n", result.Gaps)

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
