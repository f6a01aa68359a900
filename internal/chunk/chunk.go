package chunk

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	// RampStep is the size increment of the leading ramp chunks.
	RampStep = 128 * 1024

	// RampChunks is the maximum number of ramp chunks in a download plan.
	RampChunks = 8

	// minFactor is the lower bound of a randomized chunk, as a fraction of
	// the base chunk size.
	minFactor = 0.4
)

// Task is one byte range of a transfer.
// Start and End are inclusive, like an HTTP Range header.
type Task struct {
	Index      int
	Start      int64
	End        int64
	Attempt    int
	MaxRetries int
}

// Len returns the number of bytes covered by the task.
func (t *Task) Len() int64 {
	return t.End - t.Start + 1
}

func (t *Task) String() string {
	return fmt.Sprintf("chunk %d [%d-%d] attempt %d/%d", t.Index, t.Start, t.End, t.Attempt, t.MaxRetries)
}

// Source draws random chunk sizes. *rand.Rand satisfies it.
type Source interface {
	Int64N(n int64) int64
}

type globalSource struct{}

func (globalSource) Int64N(n int64) int64 { return rand.Int64N(n) }

// Options configures planning.
type Options struct {
	Rand Source
}

// Option is a functional option for Plan.
type Option func(*Options)

// WithRand sets the random source used for the non-ramp chunk sizes.
func WithRand(src Source) Option {
	return func(o *Options) {
		o.Rand = src
	}
}

// Common errors.
var (
	ErrNegativeSize  = errors.New("chunk: file size must not be negative")
	ErrInvalidChunk  = errors.New("chunk: chunk size must be positive")
	ErrNegativeRetry = errors.New("chunk: max retries must not be negative")
)

func checkArgs(fileSize, chunkSize int64, maxRetries int) error {
	if fileSize < 0 {
		return ErrNegativeSize
	}
	if chunkSize <= 0 {
		return ErrInvalidChunk
	}
	if maxRetries < 0 {
		return ErrNegativeRetry
	}
	return nil
}

// Plan returns the download plan for a file of fileSize bytes.
//
// Up to RampChunks leading chunks grow by RampStep each (128KiB, 256KiB, ...).
// The remainder is split into chunks drawn uniformly from
// [0.4*baseChunkSize, baseChunkSize]. Every chunk is clipped to the bytes
// still remaining, so the last task always ends at fileSize-1.
func Plan(fileSize, baseChunkSize int64, maxRetries int, options ...Option) ([]*Task, error) {
	if err := checkArgs(fileSize, baseChunkSize, maxRetries); err != nil {
		return nil, err
	}

	opts := Options{Rand: globalSource{}}
	for _, opt := range options {
		opt(&opts)
	}

	minSize := int64(float64(baseChunkSize) * minFactor)
	if minSize < 1 {
		minSize = 1
	}

	var (
		tasks  []*Task
		offset int64
	)
	for offset < fileSize {
		var size int64
		if n := len(tasks) + 1; n <= RampChunks {
			size = int64(n) * RampStep
		} else {
			size = minSize + opts.Rand.Int64N(baseChunkSize-minSize+1)
		}

		if remaining := fileSize - offset; size > remaining {
			size = remaining
		}

		tasks = append(tasks, &Task{
			Index:      len(tasks),
			Start:      offset,
			End:        offset + size - 1,
			MaxRetries: maxRetries,
		})
		offset += size
	}

	return tasks, nil
}

// PlanUniform splits fileSize into chunkSize parts, the last one clipped.
func PlanUniform(fileSize, chunkSize int64, maxRetries int) ([]*Task, error) {
	if err := checkArgs(fileSize, chunkSize, maxRetries); err != nil {
		return nil, err
	}

	count := (fileSize + chunkSize - 1) / chunkSize
	tasks := make([]*Task, 0, count)
	for offset := int64(0); offset < fileSize; offset += chunkSize {
		end := offset + chunkSize - 1
		if end >= fileSize {
			end = fileSize - 1
		}
		tasks = append(tasks, &Task{
			Index:      len(tasks),
			Start:      offset,
			End:        end,
			MaxRetries: maxRetries,
		})
	}
	return tasks, nil
}

// Validate reports whether tasks exactly partition [0, fileSize).
func Validate(tasks []*Task, fileSize int64) error {
	var next int64
	for i, t := range tasks {
		if t.Index != i {
			return fmt.Errorf("chunk: task %d has index %d", i, t.Index)
		}
		if t.Start != next {
			return fmt.Errorf("chunk: task %d starts at %d, want %d", i, t.Start, next)
		}
		if t.End < t.Start {
			return fmt.Errorf("chunk: task %d is empty [%d-%d]", i, t.Start, t.End)
		}
		next = t.End + 1
	}
	if next != fileSize {
		return fmt.Errorf("chunk: plan covers %d bytes, want %d", next, fileSize)
	}
	return nil
}
