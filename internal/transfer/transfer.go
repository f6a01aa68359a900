package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/ligustah/ferry/internal/chunk"
	"github.com/ligustah/ferry/internal/progress"
	"github.com/ligustah/ferry/internal/storage"
)

// Direction of a transfer.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Defaults applied by Run.
const (
	DefaultWorkers    = 6
	DefaultChunkSize  = 8 * 1024 * 1024
	DefaultMaxRetries = 5
)

// Job describes one transfer.
type Job struct {
	Direction   Direction
	Backend     storage.Backend
	Credentials storage.Credentials

	// Ref is the object to download, or the destination bucket of an upload
	// (only BucketID is used).
	Ref storage.ObjectRef

	// Name is recorded with uploaded objects.
	Name string

	// Size is the file size in bytes. It is fixed for the whole transfer.
	Size int64

	// Source provides upload bytes; Sink receives download bytes.
	Source io.ReaderAt
	Sink   io.WriterAt

	// ChunkSize is the base chunk size. Default: 8MiB
	ChunkSize int64

	// MaxRetries is the retry budget of each chunk. Default: 5
	MaxRetries int

	// Workers bounds the number of chunks in flight. Default: 6
	Workers int

	Backoff Backoff

	// Rand draws download chunk sizes. Nil uses the global source.
	Rand chunk.Source

	// Progress receives an update after each completed chunk. May be nil.
	Progress progress.Func

	// Abort stops the transfer when closed: no further chunks start, and
	// the results of chunks already in flight are discarded.
	Abort <-chan struct{}
}

// Result describes a completed transfer.
type Result struct {
	FileID string
	Bytes  int64
	Chunks int
}

func (j *Job) applyDefaults() {
	if j.Workers <= 0 {
		j.Workers = DefaultWorkers
	}
	if j.ChunkSize <= 0 {
		j.ChunkSize = DefaultChunkSize
	}
	if j.MaxRetries < 0 {
		j.MaxRetries = 0
	}
	if j.Backoff.Initial == 0 && j.Backoff.Max == 0 {
		j.Backoff = DefaultBackoff()
	}
}

func (j *Job) validate() error {
	if j.Backend == nil {
		return errors.New("transfer: backend is required")
	}
	if j.Size < 0 {
		return fmt.Errorf("transfer: negative size %d", j.Size)
	}
	switch j.Direction {
	case Upload:
		if j.Source == nil {
			return errors.New("transfer: upload needs a source")
		}
	case Download:
		if j.Sink == nil {
			return errors.New("transfer: download needs a sink")
		}
	default:
		return fmt.Errorf("transfer: unknown direction %q", j.Direction)
	}
	return nil
}

func (j *Job) plan() ([]*chunk.Task, error) {
	if j.Direction == Upload {
		return chunk.PlanUniform(j.Size, j.ChunkSize, j.MaxRetries)
	}
	var opts []chunk.Option
	if j.Rand != nil {
		opts = append(opts, chunk.WithRand(j.Rand))
	}
	return chunk.Plan(j.Size, j.ChunkSize, j.MaxRetries, opts...)
}

// Run executes the job.
//
// It returns nil on success, ErrAborted if the job was aborted (or ctx was
// cancelled), *RetryBudgetExhaustedError when a chunk ran out of retries,
// *PermanentError on a non-retryable failure, or a plain error for invalid
// jobs.
func Run(ctx context.Context, job Job) (*Result, error) {
	job.applyDefaults()
	if err := job.validate(); err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"function":  "Run",
		"direction": job.Direction,
		"bucket":    job.Ref.BucketID,
		"size":      job.Size,
	})

	exec := NewExecutor(job.Backoff, job.Abort)
	if exec.aborted(ctx) {
		return nil, ErrAborted
	}

	tasks, err := job.plan()
	if err != nil {
		return nil, fmt.Errorf("transfer: plan: %w", err)
	}

	ref := job.Ref
	if job.Direction == Download && len(tasks) == 0 {
		// Nothing to fetch.
		return &Result{FileID: ref.FileID}, nil
	}

	if job.Direction == Upload {
		err := exec.Do(ctx, job.MaxRetries, func(ctx context.Context) error {
			var err error
			ref, err = job.Backend.Create(ctx, job.Credentials, job.Ref.BucketID, job.Name, job.Size)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("transfer: create object: %w", err)
		}
		log = log.WithField("file", ref.FileID)
	}

	log.WithField("chunks", len(tasks)).Debug("Starting transfer")

	agg := progress.NewAggregator(job.Size, job.Progress)
	attempt := job.attemptFunc(ref)

	if err := runChunks(ctx, exec, job, tasks, attempt, agg); err != nil {
		if errors.Is(err, ErrAborted) {
			log.Info("Transfer aborted")
		} else {
			log.WithError(err).Warn("Transfer failed")
		}
		return nil, err
	}

	fileID := ref.FileID
	if job.Direction == Upload {
		err := exec.Do(ctx, job.MaxRetries, func(ctx context.Context) error {
			var err error
			fileID, err = job.Backend.Commit(ctx, job.Credentials, ref)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("transfer: commit object: %w", err)
		}
	}

	st := agg.State()
	log.WithField("file", fileID).Info("Transfer complete")
	return &Result{FileID: fileID, Bytes: st.Processed, Chunks: agg.Completed()}, nil
}

// attemptFunc returns the single-attempt operation for one chunk.
func (j *Job) attemptFunc(ref storage.ObjectRef) AttemptFunc {
	if j.Direction == Upload {
		return func(ctx context.Context, t *chunk.Task) (int64, error) {
			buf := make([]byte, t.Len())
			n, err := j.Source.ReadAt(buf, t.Start)
			if int64(n) != t.Len() {
				return 0, &PermanentError{Index: t.Index, Err: fmt.Errorf("read source at %d: %w", t.Start, err)}
			}
			if err := j.Backend.WriteRange(ctx, j.Credentials, ref, t.Start, t.End, buf); err != nil {
				return 0, err
			}
			return t.Len(), nil
		}
	}

	return func(ctx context.Context, t *chunk.Task) (int64, error) {
		data, err := j.Backend.ReadRange(ctx, j.Credentials, ref, t.Start, t.End)
		if err != nil {
			return 0, err
		}
		if int64(len(data)) != t.Len() {
			return 0, &TransientError{Err: fmt.Errorf("short read: got %d of %d bytes", len(data), t.Len())}
		}
		if _, err := j.Sink.WriteAt(data, t.Start); err != nil {
			return 0, &PermanentError{Index: t.Index, Err: fmt.Errorf("write sink: %w", err)}
		}
		return int64(len(data)), nil
	}
}

// runChunks dispatches tasks onto a bounded pool. The first terminal chunk
// failure stops dispatch and cancels chunks in flight.
func runChunks(ctx context.Context, exec *Executor, job Job, tasks []*chunk.Task, attempt AttemptFunc, agg *progress.Aggregator) error {
	pool, err := ants.NewPool(job.Workers)
	if err != nil {
		return fmt.Errorf("transfer: create pool: %w", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for _, task := range tasks {
		if failed() || exec.aborted(ctx) {
			break
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(&PermanentError{Index: task.Index, Err: fmt.Errorf("panic: %v", r)})
				}
			}()

			n, err := exec.Execute(runCtx, task, attempt)
			if err != nil {
				fail(err)
				return
			}
			if exec.aborted(ctx) {
				return
			}
			agg.ChunkCompleted(task.Index, n)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("transfer: submit chunk %d: %w", task.Index, err))
			break
		}
	}
	wg.Wait()

	mu.Lock()
	err = firstErr
	mu.Unlock()

	switch {
	case err != nil && !errors.Is(err, ErrAborted):
		return err
	case err != nil, exec.aborted(ctx):
		return ErrAborted
	}
	return nil
}

// Buffer is an in-memory io.WriterAt sink for downloads.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

// NewBuffer returns a Buffer sized for size bytes.
func NewBuffer(size int64) *Buffer {
	return &Buffer{buf: make([]byte, size)}
}

// WriteAt copies p into the buffer at off.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(b.buf)) {
		return 0, fmt.Errorf("transfer: write [%d, %d) outside buffer of %d bytes", off, off+int64(len(p)), len(b.buf))
	}
	return copy(b.buf[off:], p), nil
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}
