package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes to transfer.
	TotalSize int64

	// Workers is the number of parallel chunk workers (for display).
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Verb describes the operation, e.g. "Uploading".
	Verb string

	// Name is the file being transferred (for display).
	Name string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	processed  atomic.Int64
	total      atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	if opts.Verb == "" {
		opts.Verb = "Transferring"
	}

	r := &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.total.Store(opts.TotalSize)
	return r
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[ferry] %s: %s\n", r.opts.Verb, r.opts.Name)
	fmt.Fprintf(r.opts.Output, "[ferry] Total size: %s | Workers: %d\n",
		formatBytes(r.opts.TotalSize),
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Update records the latest progress. It has the shape of a Func so it can
// be passed wherever a progress callback is expected.
func (r *Reporter) Update(_ float64, processed, total int64) {
	r.processed.Store(processed)
	r.total.Store(total)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	processed := r.processed.Load()
	total := r.total.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(processed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = processed

	percent := State{Processed: processed, Total: total}.Fraction() * 100
	eta := "calculating..."
	if speed > 0 {
		remaining := float64(total - processed)
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "\r[ferry] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		formatBytes(processed),
		formatBytes(total),
		formatBytes(int64(speed)),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	processed := r.processed.Load()
	total := r.total.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(processed) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[ferry] Progress: %.1f%% | %s / %s    \n",
		State{Processed: processed, Total: total}.Fraction()*100,
		formatBytes(processed),
		formatBytes(total),
	)
	fmt.Fprintf(r.opts.Output, "[ferry] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

const (
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
	tib = gib * 1024
)

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= tib:
		return fmt.Sprintf("%.2f TiB", float64(b)/float64(tib))
	case b >= gib:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gib))
	case b >= mib:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mib))
	case b >= kib:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kib))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string (e.g. "8MiB", "256MB").
// Both the KB and KiB spellings are powers of 1024.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)

	var multiplier int64 = 1
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"TiB", tib}, {"GiB", gib}, {"MiB", mib}, {"KiB", kib},
		{"TB", tib}, {"GB", gib}, {"MB", mib}, {"KB", kib},
		{"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
