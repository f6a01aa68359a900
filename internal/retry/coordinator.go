package retry

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Status of a retry entry.
type Status string

const (
	// StatusFailed marks a transfer that failed and awaits a retry.
	StatusFailed Status = "failed"
	// StatusUploading marks a transfer whose retry is running.
	StatusUploading Status = "uploading"
)

// Entry is one failed transfer.
type Entry struct {
	TaskID string `json:"taskId"`
	Status Status `json:"status"`

	// Params holds whatever the caller needs to re-issue the transfer.
	// The coordinator never looks inside.
	Params json.RawMessage `json:"params,omitempty"`
}

// ListenerID identifies a subscription.
type ListenerID int

type listener struct {
	id ListenerID
	fn func()
}

// Coordinator is the registry of retryable transfers.
type Coordinator struct {
	mu        sync.Mutex
	entries   []Entry
	listeners []listener
	nextID    ListenerID
}

// NewCoordinator returns an empty registry.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// AddFile records a failed transfer. The entry's status is always set to
// StatusFailed. An existing entry with the same task id is replaced in place.
func (c *Coordinator) AddFile(e Entry) {
	c.AddFiles([]Entry{e})
}

// AddFiles records several failed transfers and notifies listeners once.
func (c *Coordinator) AddFiles(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	c.mu.Lock()
	for _, e := range entries {
		if e.TaskID == "" {
			logrus.WithField("function", "AddFiles").Warn("Ignoring retry entry without task id")
			continue
		}
		e.Status = StatusFailed
		if i := c.indexLocked(e.TaskID); i >= 0 {
			c.entries[i] = e
		} else {
			c.entries = append(c.entries, e)
		}
	}
	c.mu.Unlock()

	c.notify()
}

// ChangeStatus sets the status of taskID. Unknown ids are ignored and no
// listener is notified.
func (c *Coordinator) ChangeStatus(taskID string, status Status) {
	c.mu.Lock()
	i := c.indexLocked(taskID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.entries[i].Status = status
	c.mu.Unlock()

	c.notify()
}

// RemoveFile deletes the entry for taskID.
func (c *Coordinator) RemoveFile(taskID string) {
	c.mu.Lock()
	i := c.indexLocked(taskID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	c.mu.Unlock()

	c.notify()
}

// ClearFiles deletes every entry.
func (c *Coordinator) ClearFiles() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()

	c.notify()
}

// GetFiles returns a snapshot of the entries in insertion order.
func (c *Coordinator) GetFiles() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get returns the entry for taskID.
func (c *Coordinator) Get(taskID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(taskID); i >= 0 {
		return c.entries[i], true
	}
	return Entry{}, false
}

// IsRetryingFile reports whether an entry exists for taskID, whatever its
// status.
func (c *Coordinator) IsRetryingFile(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(taskID) >= 0
}

// Subscribe registers fn to run after every mutation. fn runs on the
// mutating goroutine, after the coordinator's lock is released.
func (c *Coordinator) Subscribe(fn func()) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners = append(c.listeners, listener{id: c.nextID, fn: fn})
	return c.nextID
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (c *Coordinator) Unsubscribe(id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) indexLocked(taskID string) int {
	for i := range c.entries {
		if c.entries[i].TaskID == taskID {
			return i
		}
	}
	return -1
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	for _, l := range ls {
		l.fn()
	}
}
