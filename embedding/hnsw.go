package embedding

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/viant/vec/search"
)

const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
	DefaultSeed           = 42
)

// HNSW is a hierarchical navigable small world graph over node vectors.
// Vectors are inserted in node index order with a seeded level generator, so
// the same input always yields the same graph.
type HNSW struct {
	store
	m              int
	m0             int
	efConstruction int
	efSearch       int
	levelMult      float64
	rng            *rand.Rand

	links    [][][]int32 // links[node][level]
	entry    int32
	maxLevel int
}

var _ Index = (*HNSW)(nil)

// HNSWOption configures an HNSW index.
type HNSWOption func(*HNSW) error

// WithM sets the number of neighbours kept per node above layer 0.
func WithM(m int) HNSWOption {
	return func(h *HNSW) error {
		if m < 2 {
			return fmt.Errorf("%w: M must be at least 2", ErrInvalidConfig)
		}
		h.m = m
		return nil
	}
}

// WithEfConstruction sets the candidate list size used while inserting.
func WithEfConstruction(ef int) HNSWOption {
	return func(h *HNSW) error {
		if ef <= 0 {
			return fmt.Errorf("%w: efConstruction must be positive", ErrInvalidConfig)
		}
		h.efConstruction = ef
		return nil
	}
}

// WithEfSearch sets the candidate list size used while searching.
func WithEfSearch(ef int) HNSWOption {
	return func(h *HNSW) error {
		if ef <= 0 {
			return fmt.Errorf("%w: efSearch must be positive", ErrInvalidConfig)
		}
		h.efSearch = ef
		return nil
	}
}

// WithSeed sets the level generator seed.
func WithSeed(seed uint64) HNSWOption {
	return func(h *HNSW) error {
		h.rng = rand.New(rand.NewPCG(seed, seed))
		return nil
	}
}

// NewHNSW builds an index over vectors addressed by node index.
// Nil entries are nodes without a vector.
func NewHNSW(vectors [][]float32, opts ...HNSWOption) (*HNSW, error) {
	s, err := newStore(vectors)
	if err != nil {
		return nil, err
	}
	h := &HNSW{
		store:          s,
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		rng:            rand.New(rand.NewPCG(DefaultSeed, DefaultSeed)),
		links:          make([][][]int32, len(vectors)),
		entry:          -1,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	h.m0 = 2 * h.m
	h.levelMult = 1 / math.Log(float64(h.m))

	for i, v := range h.vectors {
		if v != nil {
			h.insert(int32(i))
		}
	}
	return h, nil
}

func (h *HNSW) distance(a []float32, b int32) float32 {
	return search.Float32s(a).CosineDistance(h.vectors[b])
}

func (h *HNSW) randomLevel() int {
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.levelMult))
}

func (h *HNSW) maxLinks(level int) int {
	if level == 0 {
		return h.m0
	}
	return h.m
}

func (h *HNSW) insert(node int32) {
	level := h.randomLevel()
	h.links[node] = make([][]int32, level+1)
	if h.entry < 0 {
		h.entry = node
		h.maxLevel = level
		return
	}

	q := h.vectors[node]
	ep := h.entry
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedy(q, ep, l)
	}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(q, ep, h.efConstruction, l)
		neighbours := candidates
		if len(neighbours) > h.m {
			neighbours = neighbours[:h.m]
		}
		for _, nb := range neighbours {
			h.links[node][l] = append(h.links[node][l], nb.node)
			h.connect(nb.node, node, l)
		}
		ep = candidates[0].node
	}
	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = node
	}
}

// connect adds a back link from -> to at level, pruning to the closest links.
func (h *HNSW) connect(from, to int32, level int) {
	links := append(h.links[from][level], to)
	if limit := h.maxLinks(level); len(links) > limit {
		base := h.vectors[from]
		slices.SortFunc(links, func(a, b int32) int {
			return compareCandidates(candidate{a, h.distance(base, a)}, candidate{b, h.distance(base, b)})
		})
		links = links[:limit]
	}
	h.links[from][level] = links
}

func (h *HNSW) greedy(q []float32, ep int32, level int) int32 {
	best := candidate{ep, h.distance(q, ep)}
	for changed := true; changed; {
		changed = false
		for _, nb := range h.links[best.node][level] {
			c := candidate{nb, h.distance(q, nb)}
			if compareCandidates(c, best) < 0 {
				best = c
				changed = true
			}
		}
	}
	return best.node
}

// searchLayer returns up to ef candidates closest to q at level, closest first.
func (h *HNSW) searchLayer(q []float32, ep int32, ef int, level int) []candidate {
	visited := map[int32]bool{ep: true}
	start := candidate{ep, h.distance(q, ep)}
	frontier := &minQueue{start}
	results := &maxQueue{start}

	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, nb := range h.links[c.node][level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := h.distance(q, nb)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(frontier, candidate{nb, d})
				heap.Push(results, candidate{nb, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}
	out := []candidate(*results)
	slices.SortFunc(out, compareCandidates)
	return out
}

// Search walks the layers from the entry point and widens the candidate list
// until enough nodes pass keep or the whole index has been considered.
func (h *HNSW) Search(ctx context.Context, vec []float32, k int, keep func(node int32) bool) ([]Hit, error) {
	if h.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(vec) != h.dim {
		return nil, ErrDimensionMismatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := Normalize(vec)

	ep := h.entry
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedy(q, ep, l)
	}

	ef := max(h.efSearch, k)
	for {
		candidates := h.searchLayer(q, ep, ef, 0)
		hits := make([]Hit, 0, k)
		for _, c := range candidates {
			if keep != nil && !keep(c.node) {
				continue
			}
			hits = append(hits, Hit{Node: c.node, Similarity: 1 - c.dist})
			if len(hits) == k {
				break
			}
		}
		if len(hits) == k || len(candidates) < ef || ef >= h.count {
			sortHits(hits)
			return hits, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ef = min(ef*4, h.count)
	}
}

type candidate struct {
	node int32
	dist float32
}

func compareCandidates(a, b candidate) int {
	switch {
	case a.dist < b.dist:
		return -1
	case a.dist > b.dist:
		return 1
	}
	return int(a.node - b.node)
}

// minQueue implements heap.Interface ordered by ascending distance.
type minQueue []candidate

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return compareCandidates(q[i], q[j]) < 0 }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *minQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// maxQueue implements heap.Interface ordered by descending distance (max-heap).
type maxQueue []candidate

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return compareCandidates(q[i], q[j]) > 0 }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *maxQueue) Push(x any) { *q = append(*q, x.(candidate)) }

func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
