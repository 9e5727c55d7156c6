package registry

import (
	"sync"
	"testing"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, version uint64) *State {
	t.Helper()
	g, err := graph.Build(graph.SampleProvisions())
	require.NoError(t, err)
	return &State{Version: version, Graph: g, Baseline: make([]float64, g.Len())}
}

func TestCurrentBeforePublish(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	_, err = r.Current()
	assert.ErrorIs(t, err, core.ErrGraphNotReady)
	assert.Zero(t, r.Version())
}

func TestPublishAssignsVersions(t *testing.T) {
	r, err := New(WithLogger(nil))
	require.NoError(t, err)

	v, err := r.Publish(newState(t, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = r.Publish(newState(t, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	v, err = r.Publish(newState(t, 10))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cur.Version)
	assert.False(t, cur.PublishedAt.IsZero())
}

func TestPublishRejectsStaleVersion(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	_, err = r.Publish(newState(t, 5))
	require.NoError(t, err)

	_, err = r.Publish(newState(t, 5))
	assert.ErrorIs(t, err, ErrStaleVersion)
	_, err = r.Publish(newState(t, 3))
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, uint64(5), r.Version())
}

func TestPublishValidatesState(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	_, err = r.Publish(nil)
	assert.ErrorIs(t, err, ErrIncompleteState)

	s := newState(t, 0)
	s.Baseline = s.Baseline[:2]
	_, err = r.Publish(s)
	assert.ErrorIs(t, err, ErrIncompleteState)
}

func TestPublishedStateIsACopy(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	s := newState(t, 0)
	_, err = r.Publish(s)
	require.NoError(t, err)

	s.Degraded = true
	cur, err := r.Current()
	require.NoError(t, err)
	assert.False(t, cur.Degraded)
	assert.Zero(t, s.Version, "caller's state is left untouched")
}

func TestSubscribe(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	var seen []uint64
	r.Subscribe(func(s *State) { seen = append(seen, s.Version) })

	_, err = r.Publish(newState(t, 0))
	require.NoError(t, err)
	_, err = r.Publish(newState(t, 0))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestConcurrentReadersSeeMonotonicVersions(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	states := make([]*State, 20)
	for i := range states {
		states[i] = newState(t, 0)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, s := range states {
			_, err := r.Publish(s)
			assert.NoError(t, err)
		}
	}()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for range 200 {
				v := r.Version()
				assert.GreaterOrEqual(t, v, last)
				last = v
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(20), r.Version())
}
