package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/ferry/internal/chunk"
	ferryhttp "github.com/ligustah/ferry/internal/http"
	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/transfer"
)

// Request starts one transfer.
type Request struct {
	Type     transfer.Direction `json:"type"`
	Params   Params             `json:"params"`
	BucketID string             `json:"bucketId"`

	// Abort asks for the abort acknowledgement without doing any work.
	Abort bool `json:"abort,omitempty"`
}

// Params describes the file being moved.
type Params struct {
	TaskID string `json:"taskId,omitempty"`

	// FileID and Nonce identify the object to download.
	FileID string `json:"fileId,omitempty"`
	Nonce  []byte `json:"nonce,omitempty"`

	// Name is recorded with uploads.
	Name string `json:"name,omitempty"`

	// Size of the upload. Downloads take the size from the backend.
	Size int64 `json:"size,omitempty"`

	// Path is the local file read by uploads or written by downloads.
	// It is used when Source (or Sink) is nil.
	Path string `json:"path,omitempty"`

	Credentials storage.Credentials `json:"credentials"`

	// ChunkSize overrides the bridge's base chunk size.
	ChunkSize int64 `json:"chunkSize,omitempty"`

	Source io.ReaderAt `json:"-"`
	Sink   io.WriterAt `json:"-"`
}

// clone copies the slices of p so the operation owns its request.
func (p Params) clone() Params {
	p.Nonce = bytes.Clone(p.Nonce)
	p.Credentials.Key = bytes.Clone(p.Credentials.Key)
	return p
}

// Options configures a Bridge.
type Options struct {
	// Workers bounds the chunks in flight per operation.
	// Default: 6
	Workers int

	// ChunkSize is the base chunk size.
	// Default: 8MiB
	ChunkSize int64

	// MaxRetries is the retry budget of each chunk.
	// Default: 5
	MaxRetries int

	Backoff transfer.Backoff

	// Rand draws download chunk sizes. Nil uses the global source.
	Rand chunk.Source

	// Buffer is the capacity of each operation's message channel.
	// Default: 64
	Buffer int
}

// Option configures a Bridge.
type Option func(*Options)

// WithWorkers sets the per-operation concurrency.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// WithChunkSize sets the base chunk size.
func WithChunkSize(n int64) Option { return func(o *Options) { o.ChunkSize = n } }

// WithMaxRetries sets the per-chunk retry budget.
func WithMaxRetries(n int) Option { return func(o *Options) { o.MaxRetries = n } }

// WithBackoff sets the retry delays.
func WithBackoff(b transfer.Backoff) Option { return func(o *Options) { o.Backoff = b } }

// WithRand sets the random source for download chunk sizes.
func WithRand(r chunk.Source) Option { return func(o *Options) { o.Rand = r } }

// Bridge runs transfers in the background and reports over channels.
type Bridge struct {
	backend storage.Backend
	opts    Options
}

// New returns a bridge moving files through backend.
func New(backend storage.Backend, options ...Option) *Bridge {
	opts := Options{
		Workers:    transfer.DefaultWorkers,
		ChunkSize:  transfer.DefaultChunkSize,
		MaxRetries: transfer.DefaultMaxRetries,
		Backoff:    transfer.DefaultBackoff(),
		Buffer:     64,
	}
	for _, o := range options {
		o(&opts)
	}
	return &Bridge{backend: backend, opts: opts}
}

// Operation is a running transfer.
type Operation struct {
	messages chan Message
	abort    chan struct{}
	once     sync.Once
}

// Messages returns the operation's messages. Zero or more Progress messages
// are followed by exactly one terminal message, after which the channel is
// closed. Callers must drain it.
func (o *Operation) Messages() <-chan Message {
	return o.messages
}

// Abort stops the operation. No further chunks are started; chunks already
// in flight finish but their results are discarded. Only the first call has
// an effect.
func (o *Operation) Abort() {
	o.once.Do(func() { close(o.abort) })
}

// Wait drains the operation and returns its terminal message.
func (o *Operation) Wait() Message {
	var last Message
	for m := range o.messages {
		last = m
	}
	return last
}

// Start runs req in a new goroutine.
func (b *Bridge) Start(ctx context.Context, req Request) *Operation {
	req.Params = req.Params.clone()
	op := &Operation{
		messages: make(chan Message, b.opts.Buffer),
		abort:    make(chan struct{}),
	}
	if req.Abort {
		op.Abort()
	}
	go b.run(ctx, op, req)
	return op
}

func (b *Bridge) run(ctx context.Context, op *Operation, req Request) {
	log := logrus.WithFields(logrus.Fields{
		"function": "run",
		"type":     req.Type,
		"task":     req.Params.TaskID,
		"bucket":   req.BucketID,
	})

	var terminal Message
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("Transfer panicked\n%s", debug.Stack())
			terminal = Failure{Error: ErrorPayload{Name: "Panic", Message: fmt.Sprint(r)}}
		}
		op.messages <- terminal
		close(op.messages)
	}()

	select {
	case <-op.abort:
		terminal = Aborted{}
		return
	default:
	}

	fileID, err := b.transfer(ctx, op, req)
	terminal = outcome(fileID, err)

	switch terminal.(type) {
	case Success:
		log.WithField("file", fileID).Debug("Transfer finished")
	case Aborted:
		log.Debug("Transfer aborted")
	default:
		log.WithError(err).Warn("Transfer failed")
	}
}

// outcome maps the result of a transfer to its terminal message.
func outcome(fileID string, err error) Message {
	var rb *transfer.RetryBudgetExhaustedError
	switch {
	case err == nil:
		return Success{FileID: fileID}
	case errors.Is(err, transfer.ErrAborted):
		return Aborted{}
	case errors.As(err, &rb):
		return UploadFail{}
	default:
		return Failure{Error: Payload(err)}
	}
}

// Payload flattens err for the message boundary.
func Payload(err error) ErrorPayload {
	p := ErrorPayload{Name: "Error", Message: err.Error()}

	var (
		pe *transfer.PermanentError
		te *transfer.TransientError
		se *ferryhttp.StatusError
	)
	switch {
	case errors.As(err, &pe):
		p.Name = "PermanentError"
	case errors.As(err, &te):
		p.Name = "TransientError"
	}

	if errors.As(err, &se) {
		p.Code = fmt.Sprint(se.Code)
	} else if code := gcerrors.Code(err); code != gcerrors.Unknown && code != gcerrors.OK {
		p.Code = code.String()
	}
	return p
}

func (b *Bridge) transfer(ctx context.Context, op *Operation, req Request) (string, error) {
	params := req.Params

	job := transfer.Job{
		Direction:   req.Type,
		Backend:     b.backend,
		Credentials: params.Credentials,
		Ref:         storage.ObjectRef{BucketID: req.BucketID, FileID: params.FileID, Nonce: params.Nonce},
		Name:        params.Name,
		Size:        params.Size,
		Source:      params.Source,
		Sink:        params.Sink,
		ChunkSize:   b.opts.ChunkSize,
		MaxRetries:  b.opts.MaxRetries,
		Workers:     b.opts.Workers,
		Backoff:     b.opts.Backoff,
		Rand:        b.opts.Rand,
		Abort:       op.abort,
		Progress: func(fraction float64, processed, total int64) {
			select {
			case op.messages <- Progress{Progress: fraction, UploadedBytes: processed, TotalBytes: total}:
			case <-ctx.Done():
			}
		},
	}
	if params.ChunkSize > 0 {
		job.ChunkSize = params.ChunkSize
	}

	switch req.Type {
	case transfer.Upload:
		if job.Source == nil {
			if params.Path == "" {
				return "", errors.New("bridge: upload needs a source or path")
			}
			f, err := os.Open(params.Path)
			if err != nil {
				return "", fmt.Errorf("bridge: open source: %w", err)
			}
			defer f.Close()
			if job.Size == 0 {
				fi, err := f.Stat()
				if err != nil {
					return "", fmt.Errorf("bridge: stat source: %w", err)
				}
				job.Size = fi.Size()
			}
			if job.Name == "" {
				job.Name = filepath.Base(params.Path)
			}
			job.Source = f
		}

	case transfer.Download:
		var info *storage.ObjectInfo
		exec := transfer.NewExecutor(job.Backoff, op.abort)
		err := exec.Do(ctx, job.MaxRetries, func(ctx context.Context) error {
			var err error
			info, err = b.backend.Stat(ctx, job.Credentials, job.Ref)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("bridge: stat %s: %w", job.Ref, err)
		}
		job.Size = info.Size
		if len(job.Ref.Nonce) == 0 {
			job.Ref.Nonce = info.Nonce
		}

		if job.Sink == nil {
			if params.Path == "" {
				return "", errors.New("bridge: download needs a sink or path")
			}
			f, err := os.Create(params.Path)
			if err != nil {
				return "", fmt.Errorf("bridge: create output: %w", err)
			}
			defer f.Close()
			if err := f.Truncate(job.Size); err != nil {
				return "", fmt.Errorf("bridge: size output: %w", err)
			}
			job.Sink = f
		}
	}

	res, err := transfer.Run(ctx, job)
	if err != nil {
		return "", err
	}
	return res.FileID, nil
}
