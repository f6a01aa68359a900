package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	updates []State
	fracs   []float64
}

func (r *recorder) fn(fraction float64, processed, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, State{Processed: processed, Total: total})
	r.fracs = append(r.fracs, fraction)
}

func TestAggregatorReachesOne(t *testing.T) {
	var rec recorder
	agg := NewAggregator(300, rec.fn)

	agg.ChunkCompleted(0, 100)
	agg.ChunkCompleted(2, 100)
	agg.ChunkCompleted(1, 100)

	require.Len(t, rec.fracs, 3)
	assert.InDelta(t, 1.0/3, rec.fracs[0], 1e-9)
	assert.Equal(t, 1.0, rec.fracs[2])
	assert.Equal(t, State{Processed: 300, Total: 300}, agg.State())
	assert.Equal(t, 3, agg.Completed())
}

func TestAggregatorIgnoresDuplicates(t *testing.T) {
	var rec recorder
	agg := NewAggregator(200, rec.fn)

	agg.ChunkCompleted(0, 100)
	agg.ChunkCompleted(0, 100)

	assert.Len(t, rec.updates, 1)
	assert.Equal(t, int64(100), agg.State().Processed)
}

func TestAggregatorClampsOverReport(t *testing.T) {
	var rec recorder
	agg := NewAggregator(100, rec.fn)

	agg.ChunkCompleted(0, 80)
	agg.ChunkCompleted(1, 80)

	require.Len(t, rec.fracs, 2)
	assert.Equal(t, 1.0, rec.fracs[1])
	assert.Equal(t, int64(100), rec.updates[1].Processed)
}

func TestAggregatorConcurrentMonotonic(t *testing.T) {
	const chunks = 200
	var rec recorder
	agg := NewAggregator(chunks*10, rec.fn)

	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.ChunkCompleted(i, 10)
		}(i)
	}
	wg.Wait()

	require.Len(t, rec.updates, chunks)
	for i := 1; i < len(rec.updates); i++ {
		assert.GreaterOrEqual(t, rec.updates[i].Processed, rec.updates[i-1].Processed)
	}
	for _, f := range rec.fracs {
		assert.True(t, f >= 0 && f <= 1)
	}
	assert.Equal(t, int64(chunks*10), rec.updates[chunks-1].Processed)
}

func TestStateFraction(t *testing.T) {
	assert.Equal(t, 1.0, State{}.Fraction())
	assert.Equal(t, 0.5, State{Processed: 5, Total: 10}.Fraction())
	assert.Equal(t, 1.0, State{Processed: 50, Total: 10}.Fraction())
	assert.Equal(t, 0.0, State{Processed: -5, Total: 10}.Fraction())
}

func TestAggregatorNilFunc(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.ChunkCompleted(0, 10)
	assert.Equal(t, 1.0, agg.State().Fraction())
}
