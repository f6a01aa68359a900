package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	ferryhttp "github.com/ligustah/ferry/internal/http"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"aborted", ErrAborted, Aborted},
		{"wrapped aborted", fmt.Errorf("chunk 3: %w", ErrAborted), Aborted},
		{"context canceled", context.Canceled, Aborted},
		{"deadline", context.DeadlineExceeded, Transient},
		{"server error", &ferryhttp.StatusError{Code: http.StatusBadGateway}, Transient},
		{"rate limited", &ferryhttp.StatusError{Code: http.StatusTooManyRequests}, Transient},
		{"request timeout", &ferryhttp.StatusError{Code: http.StatusRequestTimeout}, Transient},
		{"unauthorized", &ferryhttp.StatusError{Code: http.StatusUnauthorized}, Permanent},
		{"forbidden", &ferryhttp.StatusError{Code: http.StatusForbidden}, Permanent},
		{"not found", &ferryhttp.StatusError{Code: http.StatusNotFound}, Permanent},
		{"range mismatch", ferryhttp.ErrRangeMismatch, Transient},
		{"short body", io.ErrUnexpectedEOF, Transient},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Transient},
		{"marked transient", &TransientError{Err: errors.New("short read")}, Transient},
		{"marked permanent", &PermanentError{Index: 1, Err: io.ErrUnexpectedEOF}, Permanent},
		{"unknown", errors.New("something odd"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestRetryBudgetExhaustedError(t *testing.T) {
	cause := &ferryhttp.StatusError{Code: http.StatusServiceUnavailable}
	err := error(&RetryBudgetExhaustedError{Index: 2, Start: 100, End: 199, Attempts: 4, Err: cause})

	var rb *RetryBudgetExhaustedError
	assert.True(t, errors.As(err, &rb))
	assert.Equal(t, 4, rb.Attempts)
	assert.True(t, errors.Is(err, ferryhttp.ErrServerError))
	assert.Contains(t, err.Error(), "chunk 2 [100-199]")
}
