// Package transfer moves a file between local storage and a storage.Backend
// in parallel chunks.
//
// # Usage
//
// The main entry point is the Run function:
//
//	res, err := transfer.Run(ctx, transfer.Job{
//	    Direction: transfer.Download,
//	    Backend:   backend,
//	    Ref:       ref,
//	    Size:      info.Size,
//	    Sink:      file,
//	    Progress:  reporter.Update,
//	})
//
// # Worker Pool
//
// Chunks from the planner are submitted to a bounded pool. Each chunk is run
// by an Executor, which retries transient failures with exponential backoff
// until the chunk's retry budget is spent.
//
// # Failure
//
// The first chunk that fails for good stops dispatch and cancels the chunks
// still in flight. Run then reports one of:
//   - *RetryBudgetExhaustedError: a chunk kept failing transiently
//   - *PermanentError: a chunk hit a non-retryable error
//   - ErrAborted: the caller closed Job.Abort or cancelled the context
package transfer
