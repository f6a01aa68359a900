package progress

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Func receives progress updates. fraction is always within [0, 1].
type Func func(fraction float64, processed, total int64)

// State is a snapshot of transfer progress.
type State struct {
	Processed int64
	Total     int64
}

// Fraction returns Processed/Total clamped to [0, 1].
// An empty transfer is complete by definition.
func (s State) Fraction() float64 {
	if s.Total <= 0 {
		return 1
	}
	f := float64(s.Processed) / float64(s.Total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Aggregator sums per-chunk byte counts into overall progress.
// It is safe for concurrent use. Updates are emitted under a lock, so the
// processed bytes seen by fn never decrease.
type Aggregator struct {
	total int64
	fn    Func

	mu        sync.Mutex
	processed int64
	seen      map[int]struct{}
}

// NewAggregator returns an aggregator for a transfer of total bytes.
// fn may be nil.
func NewAggregator(total int64, fn Func) *Aggregator {
	return &Aggregator{
		total: total,
		fn:    fn,
		seen:  make(map[int]struct{}),
	}
}

// ChunkCompleted records n bytes for the chunk at index and emits an update.
// A second completion for the same index is ignored.
func (a *Aggregator) ChunkCompleted(index int, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[index]; dup {
		logrus.WithFields(logrus.Fields{
			"function": "ChunkCompleted",
			"index":    index,
		}).Warn("Ignoring duplicate chunk completion")
		return
	}
	if n < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "ChunkCompleted",
			"index":    index,
			"bytes":    n,
		}).Warn("Ignoring negative byte count")
		return
	}
	a.seen[index] = struct{}{}
	a.processed += n

	st := a.stateLocked()
	if a.fn != nil {
		a.fn(st.Fraction(), st.Processed, st.Total)
	}
}

// State returns the current clamped progress.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// Completed returns the number of distinct chunks recorded.
func (a *Aggregator) Completed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

func (a *Aggregator) stateLocked() State {
	processed := a.processed
	if processed > a.total {
		logrus.WithFields(logrus.Fields{
			"function":  "ChunkCompleted",
			"processed": processed,
			"total":     a.total,
		}).Warn("Processed bytes exceed transfer size, clamping")
		processed = a.total
	}
	return State{Processed: processed, Total: a.total}
}
