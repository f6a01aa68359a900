package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ligustah/ferry/internal/storage"
)

// runDelete removes a stored file and all its parts from object storage.
// By default prompts for confirmation unless -force is specified.
func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	common := addCommonFlags(fs)

	fileID := fs.String("file-id", "", "File id (required)")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry delete [options]

Remove a stored file and all its parts from object storage. Parts of
uploads that never committed are removed as well.

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

	ref := storage.ObjectRef{BucketID: cfg.BucketID, FileID: *fileID}

	if !*force {
		fmt.Printf("Delete file %s from %s? [y/N]: ", ref, cfg.Bucket)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return ExitSuccess
		}
	}

	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer store.Close()

	if err := store.Delete(ctx, ref); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[ferry] Deleted: %s/%s\n", cfg.Bucket, ref)
	return ExitSuccess
}
