package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ligustah/ferry/internal/bridge"
	"github.com/ligustah/ferry/internal/manager"
	"github.com/ligustah/ferry/internal/retry"
)

// runRetry lists or re-runs transfers recorded in the redis retry journal.
func runRetry(args []string) int {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	common := addCommonFlags(fs)

	list := fs.Bool("list", false, "List recorded transfers")
	task := fs.String("task", "", "Retry one task")
	all := fs.Bool("all", false, "Retry every recorded task")
	remove := fs.String("remove", "", "Forget one task without retrying")
	clearAll := fs.Bool("clear", false, "Forget every recorded task")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry retry [options]

List or retry transfers that ran out of retries. Transfers are recorded by
upload and download when run with -journal.

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

	coord, closeJournal, err := openCoordinator(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening retry journal: %v\n", err)
		return ExitStorageError
	}
	defer closeJournal()

	switch {
	case *list:
		printEntries(coord.GetFiles())
		return ExitSuccess
	case *remove != "":
		if !coord.IsRetryingFile(*remove) {
			fmt.Fprintf(os.Stderr, "Error: unknown task %s\n", *remove)
			return ExitNotFound
		}
		coord.RemoveFile(*remove)
		return ExitSuccess
	case *clearAll:
		coord.ClearFiles()
		return ExitSuccess
	case *task == "" && !*all:
		fmt.Fprintln(os.Stderr, "Error: one of -list, -task, -all, -remove, or -clear is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cred, err := common.credentials(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer closeBackend()

	m := manager.New(newBridge(backend, cfg), coord)

	tasks := []string{*task}
	if *all {
		tasks = tasks[:0]
		for _, e := range coord.GetFiles() {
			tasks = append(tasks, e.TaskID)
		}
	}

	code := ExitSuccess
	for _, id := range tasks {
		h, err := m.RetryFile(ctx, id, cred, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = ExitNotFound
			continue
		}
		fmt.Fprintf(os.Stderr, "[ferry] Retrying %s\n", id)
		if c := report(id, h.Wait(), true); c != ExitSuccess {
			code = c
		}
	}
	return code
}

func printEntries(entries []retry.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tTYPE\tBUCKET\tPATH")
	for _, e := range entries {
		var req bridge.Request
		// Entries written by other clients may carry other params.
		_ = json.Unmarshal(e.Params, &req)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.TaskID, e.Status, req.Type, req.BucketID, req.Params.Path)
	}
	w.Flush()
}
