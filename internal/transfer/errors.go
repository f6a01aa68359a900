package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"gocloud.dev/gcerrors"

	ferryhttp "github.com/ligustah/ferry/internal/http"
)

// ErrAborted is returned when a transfer stops because the caller asked it to.
// It is not a failure: no retry entry is created for it.
var ErrAborted = errors.New("transfer: aborted")

// Kind classifies a chunk error.
type Kind int

const (
	// Transient errors are retried within the chunk's budget.
	Transient Kind = iota
	// Permanent errors fail the transfer immediately.
	Permanent
	// Aborted means the caller stopped the transfer.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// TransientError marks an error as retryable regardless of its cause.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is returned when a chunk failed with a non-retryable error.
type PermanentError struct {
	Index int // chunk index, -1 for whole-object operations
	Err   error
}

func (e *PermanentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("permanent failure: %v", e.Err)
	}
	return fmt.Sprintf("chunk %d: permanent failure: %v", e.Index, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// RetryBudgetExhaustedError is returned when a chunk kept failing with
// transient errors until its attempts exceeded MaxRetries. The transfer can
// be re-planned and retried from scratch.
type RetryBudgetExhaustedError struct {
	Index    int
	Start    int64
	End      int64
	Attempts int
	Err      error // last error seen
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d [%d-%d]: retry budget exhausted after %d attempts: %v",
		e.Index, e.Start, e.End, e.Attempts, e.Err)
}

func (e *RetryBudgetExhaustedError) Unwrap() error { return e.Err }

// Classify decides whether err is worth retrying.
//
// Timeouts, connection failures, short reads, 5xx, 408 and 429 responses and
// the retryable gcerrors codes are transient. Authorization and validation
// failures are permanent, as is anything unrecognized.
func Classify(err error) Kind {
	if err == nil {
		return Transient
	}

	var (
		te *TransientError
		pe *PermanentError
		se *ferryhttp.StatusError
		ne net.Error
	)
	switch {
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return Aborted
	case errors.As(err, &pe):
		return Permanent
	case errors.As(err, &te):
		return Transient
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.As(err, &se):
		switch {
		case se.Code >= 500,
			se.Code == http.StatusTooManyRequests,
			se.Code == http.StatusRequestTimeout:
			return Transient
		}
		return Permanent
	case errors.Is(err, ferryhttp.ErrRangeMismatch),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return Transient
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return Transient
	case errors.As(err, &ne):
		return Transient
	}

	switch gcerrors.Code(err) {
	case gcerrors.Unavailable, gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted, gcerrors.Internal:
		return Transient
	case gcerrors.Canceled:
		return Aborted
	}
	return Permanent
}
