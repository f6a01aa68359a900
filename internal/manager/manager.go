package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ligustah/ferry/internal/bridge"
	"github.com/ligustah/ferry/internal/retry"
	"github.com/ligustah/ferry/internal/storage"
)

var (
	// ErrUnknownTask is returned by RetryFile for a task with no retry entry.
	ErrUnknownTask = errors.New("manager: unknown task")
	// ErrTaskActive is returned when a task id is already running.
	ErrTaskActive = errors.New("manager: task already running")
	// ErrNotRetryable is returned when a retry entry carries no way to
	// reopen the file.
	ErrNotRetryable = errors.New("manager: task cannot be retried")
)

// ProgressFunc receives the progress messages of one transfer.
type ProgressFunc func(bridge.Progress)

// Handle is a transfer started by the manager.
type Handle struct {
	TaskID string

	op     *bridge.Operation
	done   chan struct{}
	result bridge.Message
}

// Abort stops the transfer.
func (h *Handle) Abort() {
	h.op.Abort()
}

// Wait blocks until the transfer ends and returns its terminal message.
func (h *Handle) Wait() bridge.Message {
	<-h.done
	return h.result
}

// Done is closed when the transfer ends.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Manager starts transfers and keeps the retry registry current.
type Manager struct {
	bridge *bridge.Bridge
	coord  *retry.Coordinator

	mu       sync.Mutex
	active   map[string]*Handle
	requests map[string]bridge.Request
}

// New returns a manager running transfers on b and filing failures in c.
func New(b *bridge.Bridge, c *retry.Coordinator) *Manager {
	return &Manager{
		bridge:   b,
		coord:    c,
		active:   make(map[string]*Handle),
		requests: make(map[string]bridge.Request),
	}
}

// Coordinator returns the retry registry.
func (m *Manager) Coordinator() *retry.Coordinator {
	return m.coord
}

// StartTransfer runs req in the background. A task id is generated when
// req.Params.TaskID is empty. onProgress may be nil.
func (m *Manager) StartTransfer(ctx context.Context, req bridge.Request, onProgress ProgressFunc) (*Handle, error) {
	if req.Params.TaskID == "" {
		req.Params.TaskID = uuid.NewString()
	}
	id := req.Params.TaskID

	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskActive, id)
	}
	h := &Handle{
		TaskID: id,
		op:     m.bridge.Start(ctx, req),
		done:   make(chan struct{}),
	}
	m.active[id] = h
	m.mu.Unlock()

	go m.watch(h, req, onProgress)
	return h, nil
}

// AbortTransfer aborts a running transfer. It reports whether the task was
// running.
func (m *Manager) AbortTransfer(taskID string) bool {
	m.mu.Lock()
	h, ok := m.active[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h.Abort()
	return true
}

// RetryFile re-issues a failed transfer under its original task id.
// Retry entries never hold credentials, so the caller supplies cred.
func (m *Manager) RetryFile(ctx context.Context, taskID string, cred storage.Credentials, onProgress ProgressFunc) (*Handle, error) {
	entry, ok := m.coord.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	m.mu.Lock()
	req, ok := m.requests[taskID]
	m.mu.Unlock()
	if !ok {
		if err := json.Unmarshal(entry.Params, &req); err != nil {
			return nil, fmt.Errorf("manager: decode retry params for %s: %w", taskID, err)
		}
		if req.Params.Path == "" {
			return nil, fmt.Errorf("%w: %s has no path", ErrNotRetryable, taskID)
		}
	}
	req.Params.TaskID = taskID
	req.Params.Credentials = cred
	req.Abort = false

	logrus.WithFields(logrus.Fields{
		"function": "RetryFile",
		"task":     taskID,
		"type":     req.Type,
	}).Info("Retrying transfer")

	m.coord.ChangeStatus(taskID, retry.StatusUploading)
	h, err := m.StartTransfer(ctx, req, onProgress)
	if err != nil {
		m.coord.ChangeStatus(taskID, entry.Status)
		return nil, err
	}
	return h, nil
}

func (m *Manager) watch(h *Handle, req bridge.Request, onProgress ProgressFunc) {
	for msg := range h.op.Messages() {
		if p, ok := msg.(bridge.Progress); ok {
			if onProgress != nil {
				onProgress(p)
			}
			continue
		}
		h.result = msg
	}

	m.mu.Lock()
	delete(m.active, h.TaskID)
	m.mu.Unlock()

	m.settle(h.TaskID, req, h.result)
	close(h.done)
}

// settle updates the retry registry for a finished transfer.
func (m *Manager) settle(taskID string, req bridge.Request, result bridge.Message) {
	log := logrus.WithFields(logrus.Fields{
		"function": "settle",
		"task":     taskID,
	})

	switch r := result.(type) {
	case bridge.Success:
		m.forget(taskID)
		m.coord.RemoveFile(taskID)

	case bridge.UploadFail:
		req.Params.Credentials = storage.Credentials{}
		params, err := json.Marshal(req)
		if err != nil {
			log.WithError(err).Error("Failed to encode retry params")
		}
		m.mu.Lock()
		m.requests[taskID] = req
		m.mu.Unlock()
		m.coord.AddFile(retry.Entry{TaskID: taskID, Params: params})
		log.Warn("Transfer ran out of retries")

	case bridge.Failure:
		m.coord.ChangeStatus(taskID, retry.StatusFailed)
		log.WithFields(logrus.Fields{
			"name":    r.Error.Name,
			"message": r.Error.Message,
		}).Error("Transfer failed")

	case bridge.Aborted:
		if m.coord.IsRetryingFile(taskID) {
			m.forget(taskID)
			m.coord.RemoveFile(taskID)
		}
	}
}

func (m *Manager) forget(taskID string) {
	m.mu.Lock()
	delete(m.requests, taskID)
	m.mu.Unlock()
}
