package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ligustah/ferry/internal/bridge"
	"github.com/ligustah/ferry/internal/manager"
	"github.com/ligustah/ferry/internal/transfer"
)

// runDownload fetches a stored file to a local path in parallel chunks.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	common := addCommonFlags(fs)

	fileID := fs.String("file-id", "", "File id to download (required)")
	output := fs.String("output", "", "Output file path (required)")
	journal := fs.Bool("journal", false, "Record failed downloads in the redis retry journal")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry download [options]

Download a stored file to a local path in parallel chunks. Early chunks are
small so progress shows quickly; later chunks vary in size.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := common.load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if *fileID == "" || *output == "" || cfg.BucketID == "" {
		fmt.Fprintln(os.Stderr, "Error: -file-id, -output, and -bucket-id are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	cred, err := common.credentials(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	path, err := filepath.Abs(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	_, statErr := os.Stat(path)
	existed := statErr == nil

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer closeBackend()

	coord, closeJournal, err := openCoordinator(ctx, cfg, *journal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening retry journal: %v\n", err)
		return ExitStorageError
	}
	defer closeJournal()

	m := manager.New(newBridge(backend, cfg), coord)
	code := runTransfer(ctx, m, bridge.Request{
		Type:     transfer.Download,
		BucketID: cfg.BucketID,
		Params: bridge.Params{
			FileID:      *fileID,
			Path:        path,
			Credentials: cred,
		},
	}, cfg, "Downloading", *journal)

	// Downloads restart from scratch, so partial output is not kept.
	if code != ExitSuccess && !existed {
		os.Remove(path)
	}
	return code
}
