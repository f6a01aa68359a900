package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/ferry/internal/bridge"
	"github.com/ligustah/ferry/internal/config"
	ferryhttp "github.com/ligustah/ferry/internal/http"
	"github.com/ligustah/ferry/internal/manager"
	"github.com/ligustah/ferry/internal/progress"
	"github.com/ligustah/ferry/internal/retry"
	"github.com/ligustah/ferry/internal/storage"
	"github.com/ligustah/ferry/internal/storage/blobstore"
	"github.com/ligustah/ferry/internal/storage/httpstore"
	"github.com/ligustah/ferry/internal/transfer"
)

// flags shared by every command that talks to storage.
type commonFlags struct {
	configPath *string
	bucket     *string
	gateway    *string
	bucketID   *string
	user       *string
	token      *string
	key        *string
	workers    *int
	chunkSize  *string
	maxRetries *int
	progress   *bool
	redis      *string
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "YAML configuration file"),
		bucket:     fs.String("bucket", "", "Bucket URL (mem://, file://, s3://, gs://)"),
		gateway:    fs.String("gateway", "", "Object gateway base URL (instead of -bucket)"),
		bucketID:   fs.String("bucket-id", "", "Bucket identifier"),
		user:       fs.String("user", "", "Gateway user"),
		token:      fs.String("token", "", "Gateway token"),
		key:        fs.String("key", "", "Hex encoded 32 byte encryption key"),
		workers:    fs.Int("workers", 0, "Number of parallel chunk workers (default 6)"),
		chunkSize:  fs.String("chunk-size", "", "Base chunk size (default 8MiB)"),
		maxRetries: fs.Int("max-retries", -1, "Max retries per chunk (default 5)"),
		progress:   fs.Bool("progress", false, "Show progress output"),
		redis:      fs.String("redis", "", "Redis address of the retry journal"),
		verbose:    fs.Bool("v", false, "Verbose logging"),
	}
}

// load builds the configuration: defaults, then the config file, then the
// environment, then flags.
func (f *commonFlags) load(ctx context.Context) (config.Config, error) {
	if *f.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	cfg := config.Default()
	if *f.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(*f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(ctx); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		Bucket:   *f.bucket,
		Gateway:  *f.gateway,
		BucketID: *f.bucketID,
		User:     *f.user,
		Token:    *f.token,
		Workers:  *f.workers,
		Progress: *f.progress,
		Redis:    config.RedisConfig{Addr: *f.redis},
	}
	if *f.chunkSize != "" {
		size, err := progress.ParseBytes(*f.chunkSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid chunk size: %w", err)
		}
		override.ChunkSize = size
	}
	cfg = cfg.Merge(override)
	if *f.maxRetries >= 0 {
		cfg.Retry.Attempts = *f.maxRetries
	}
	return cfg, nil
}

func (f *commonFlags) credentials(cfg config.Config) (storage.Credentials, error) {
	cred := storage.Credentials{User: cfg.User, Token: cfg.Token}
	if *f.key != "" {
		key, err := hex.DecodeString(*f.key)
		if err != nil {
			return storage.Credentials{}, fmt.Errorf("invalid key: %w", err)
		}
		cred.Key = key
	}
	return cred, nil
}

// openBackend returns the configured backend, sealed so that a key in the
// credentials encrypts stored bytes.
func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, func() error, error) {
	if cfg.Gateway != "" {
		store := httpstore.New(cfg.Gateway, ferryhttp.Options{
			MaxIdleConnsPerHost: cfg.Workers * 2,
			Timeout:             cfg.Timeout,
		})
		return storage.Sealed(store), func() error { return nil }, nil
	}

	store, err := blobstore.Open(ctx, cfg.Bucket)
	if err != nil {
		return nil, nil, err
	}
	return storage.Sealed(store), store.Close, nil
}

// openBlobStore opens cfg.Bucket for commands that inspect stored layout.
func openBlobStore(ctx context.Context, cfg config.Config) (*blobstore.Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("this command needs -bucket")
	}
	return blobstore.Open(ctx, cfg.Bucket)
}

func newBridge(backend storage.Backend, cfg config.Config) *bridge.Bridge {
	return bridge.New(backend,
		bridge.WithWorkers(cfg.Workers),
		bridge.WithChunkSize(cfg.ChunkSize),
		bridge.WithMaxRetries(cfg.Retry.Attempts),
		bridge.WithBackoff(transfer.Backoff{
			Initial: cfg.Retry.Backoff,
			Max:     cfg.Retry.MaxBackoff,
		}),
	)
}

// openCoordinator returns a retry registry. With a journal it is restored
// from redis and mirrored back after every change.
func openCoordinator(ctx context.Context, cfg config.Config, journal bool) (*retry.Coordinator, func(), error) {
	coord := retry.NewCoordinator()
	if !journal {
		return coord, func() {}, nil
	}

	j, err := retry.NewRedisJournal(ctx, retry.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.Key,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := retry.Restore(ctx, coord, j); err != nil {
		j.Close()
		return nil, nil, err
	}
	stop := retry.Persist(ctx, coord, j)
	return coord, func() {
		stop()
		j.Close()
	}, nil
}

// runTransfer runs req through a manager and reports the outcome.
// The first interrupt aborts the transfer.
func runTransfer(ctx context.Context, m *manager.Manager, req bridge.Request, cfg config.Config, verb string, journaled bool) int {
	var reporter *progress.Reporter
	var onProgress manager.ProgressFunc
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize: req.Params.Size,
			Workers:   cfg.Workers,
			Verb:      verb,
			Name:      req.Params.Path,
		})
		reporter.Start()
		defer reporter.Stop()
		onProgress = func(p bridge.Progress) {
			reporter.Update(p.Progress, p.UploadedBytes, p.TotalBytes)
		}
	}

	h, err := m.StartTransfer(ctx, req, onProgress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[ferry] Received interrupt, aborting...")
			m.AbortTransfer(h.TaskID)
		case <-h.Done():
		}
	}()

	return report(h.TaskID, h.Wait(), journaled)
}

func report(taskID string, msg bridge.Message, journaled bool) int {
	switch r := msg.(type) {
	case bridge.Success:
		fmt.Fprintf(os.Stderr, "[ferry] Transfer complete\n")
		fmt.Println(r.FileID)
		return ExitSuccess
	case bridge.UploadFail:
		fmt.Fprintf(os.Stderr, "[ferry] Transfer failed after retries, task %s\n", taskID)
		if journaled {
			fmt.Fprintf(os.Stderr, "[ferry] Run 'ferry retry -task %s' to try again\n", taskID)
		}
		return ExitRetryable
	case bridge.Aborted:
		fmt.Fprintln(os.Stderr, "[ferry] Transfer aborted")
		return ExitAborted
	case bridge.Failure:
		fmt.Fprintf(os.Stderr, "Error: %s: %s\n", r.Error.Name, r.Error.Message)
		if r.Error.Code == gcerrors.NotFound.String() || r.Error.Code == "404" {
			return ExitNotFound
		}
		return ExitStorageError
	default:
		fmt.Fprintf(os.Stderr, "Error: unexpected result %T\n", msg)
		return ExitGeneralError
	}
}

// withSignals cancels ctx on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
