// Package registry publishes immutable graph states under a strictly
// increasing version. Readers capture one state per request and use it
// end to end; publishing a new state is a single pointer swap.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/graph"
)

// ErrStaleVersion indicates a publish with a version not above the current one.
var ErrStaleVersion = errors.New("stale graph version")

// ErrIncompleteState indicates a publish without a graph or with misaligned baseline scores.
var ErrIncompleteState = errors.New("incomplete graph state")

// State is one published snapshot: graph, vectors and baseline importance.
// It is never modified after publication.
type State struct {
	Version     uint64
	Graph       *graph.Snapshot
	Vectors     embedding.Index // nil when no embeddings are available
	Baseline    []float64       // aligned with Graph node indices
	Degraded    bool            // baseline is the uniform fallback
	Model       string          // embedding model of Vectors
	PublishedAt time.Time
}

// BaselineOf returns the baseline score of node i.
func (s *State) BaselineOf(i int32) float64 {
	if int(i) >= len(s.Baseline) || i < 0 {
		return 0
	}
	return s.Baseline[i]
}

// Registry holds the current State.
type Registry struct {
	current atomic.Pointer[State]
	mu      sync.Mutex // serializes publishers and subscriber lists
	subs    []func(*State)
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates an empty registry.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "registry")
	return r, nil
}

// Publish makes s the current state and returns its version.
// A zero Version is assigned the previous version plus one.
func (r *Registry) Publish(s *State) (uint64, error) {
	if s == nil || s.Graph == nil {
		return 0, ErrIncompleteState
	}
	if len(s.Baseline) != s.Graph.Len() {
		return 0, fmt.Errorf("%w: %d baseline scores for %d nodes", ErrIncompleteState, len(s.Baseline), s.Graph.Len())
	}

	r.mu.Lock()
	prev := r.Version()
	published := *s
	if published.Version == 0 {
		published.Version = prev + 1
	}
	if published.Version <= prev {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: %d is not above %d", ErrStaleVersion, published.Version, prev)
	}
	if published.PublishedAt.IsZero() {
		published.PublishedAt = time.Now().UTC()
	}
	r.current.Store(&published)
	subs := append([]func(*State){}, r.subs...)
	r.mu.Unlock()

	r.logger.Info("graph version published",
		"version", published.Version,
		"nodes", published.Graph.Len(),
		"vectors", vectorCount(published.Vectors),
		"degraded", published.Degraded)
	for _, fn := range subs {
		fn(&published)
	}
	return published.Version, nil
}

// Current returns the published state or core.ErrGraphNotReady.
func (r *Registry) Current() (*State, error) {
	s := r.current.Load()
	if s == nil {
		return nil, core.ErrGraphNotReady
	}
	return s, nil
}

// Version returns the current version, 0 before the first publish.
func (r *Registry) Version() uint64 {
	if s := r.current.Load(); s != nil {
		return s.Version
	}
	return 0
}

// Subscribe registers fn to be called after every publish.
// Callbacks run on the publishing goroutine.
func (r *Registry) Subscribe(fn func(*State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func vectorCount(ix embedding.Index) int {
	if ix == nil {
		return 0
	}
	return ix.Len()
}
