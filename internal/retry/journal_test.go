package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu    sync.Mutex
	saved []Entry
	saves int
	err   error
}

func (m *memJournal) Save(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.saved = append([]Entry(nil), entries...)
	return nil
}

func (m *memJournal) Load(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.saved...), nil
}

func TestPersistMirrorsRegistry(t *testing.T) {
	c := NewCoordinator()
	j := &memJournal{}
	stop := Persist(context.Background(), c, j)

	c.AddFiles([]Entry{entry("a"), entry("b")})
	c.ChangeStatus("b", StatusUploading)
	assert.Equal(t, []string{"a", "b"}, ids(j.saved))
	assert.Equal(t, StatusUploading, j.saved[1].Status)

	stop()
	c.RemoveFile("a")
	assert.Equal(t, 2, j.saves)
	assert.Len(t, j.saved, 2)
}

// stallJournal holds the first Save open while a concurrent mutation
// is filed.
type stallJournal struct {
	memJournal
	first  sync.Once
	onSave func()
}

func (s *stallJournal) Save(ctx context.Context, entries []Entry) error {
	s.first.Do(func() {
		s.onSave()
		time.Sleep(20 * time.Millisecond)
	})
	return s.memJournal.Save(ctx, entries)
}

func TestPersistKeepsLatestSnapshot(t *testing.T) {
	c := NewCoordinator()
	var wg sync.WaitGroup
	j := &stallJournal{}
	j.onSave = func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddFile(entry("b"))
		}()
	}
	Persist(context.Background(), c, j)

	c.AddFile(entry("a"))
	wg.Wait()

	assert.Equal(t, 2, j.saves)
	assert.Equal(t, []string{"a", "b"}, ids(j.saved))
}

func TestPersistSaveErrorIsLogged(t *testing.T) {
	c := NewCoordinator()
	j := &memJournal{err: errors.New("redis down")}
	Persist(context.Background(), c, j)

	assert.NotPanics(t, func() { c.AddFile(entry("a")) })
	assert.True(t, c.IsRetryingFile("a"))
}

func TestRestore(t *testing.T) {
	j := &memJournal{saved: []Entry{
		{TaskID: "a", Status: StatusUploading},
		{TaskID: "b", Status: StatusFailed},
	}}

	c := NewCoordinator()
	require.NoError(t, Restore(context.Background(), c, j))

	files := c.GetFiles()
	assert.Equal(t, []string{"a", "b"}, ids(files))
	for _, f := range files {
		assert.Equal(t, StatusFailed, f.Status)
	}
}
