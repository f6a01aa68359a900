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

// runUpload stores a local file in parallel chunks and prints the new file id.
func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	common := addCommonFlags(fs)

	file := fs.String("file", "", "Local file to upload (required)")
	name := fs.String("name", "", "Name recorded with the file (default: base name of -file)")
	journal := fs.Bool("journal", false, "Record failed uploads in the redis retry journal")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry upload [options]

Upload a local file to a bucket in parallel chunks. The new file id is
printed on stdout.

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
	if *file == "" || cfg.BucketID == "" {
		fmt.Fprintln(os.Stderr, "Error: -file and -bucket-id are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	cred, err := common.credentials(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	path, err := filepath.Abs(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error accessing file: %v\n", err)
		return ExitNotFound
	}

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

	uploadName := *name
	if uploadName == "" {
		uploadName = filepath.Base(path)
	}

	m := manager.New(newBridge(backend, cfg), coord)
	return runTransfer(ctx, m, bridge.Request{
		Type:     transfer.Upload,
		BucketID: cfg.BucketID,
		Params: bridge.Params{
			Name:        uploadName,
			Size:        info.Size(),
			Path:        path,
			Credentials: cred,
		},
	}, cfg, "Uploading", *journal)
}
