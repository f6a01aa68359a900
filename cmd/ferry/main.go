package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitNotFound         = 3
	ExitRetryable        = 4
	ExitStorageError     = 5
	ExitAborted          = 6
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "upload":
		return runUpload(cmdArgs)
	case "download":
		return runDownload(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "delete":
		return runDelete(cmdArgs)
	case "retry":
		return runRetry(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ferry <command> [options]

Commands:
  upload    Upload a local file to a bucket in parallel chunks
  download  Download a stored file to a local path in parallel chunks
  validate  Verify all parts of a stored file exist and sizes match manifest
  delete    Remove a stored file and all its parts
  retry     List or retry transfers that ran out of retries

Run 'ferry <command> -h' for command-specific help.`)
}
