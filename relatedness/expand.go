package relatedness

import (
	"context"
	"slices"

	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/registry"
)

// subgraph is the bounded neighbourhood L of a seed set.
type subgraph struct {
	nodes    []int32         // in discovery order, seeds first
	local    map[int32]int32 // graph index -> position in nodes
	semantic map[int32][]embedding.Hit
	semSeeds []int32 // keys of semantic, ascending
}

func (s *subgraph) contains(n int32) bool {
	_, ok := s.local[n]
	return ok
}

func (s *subgraph) add(n int32) bool {
	if s.contains(n) {
		return false
	}
	s.local[n] = int32(len(s.nodes))
	s.nodes = append(s.nodes, n)
	return true
}

// expand grows L from the seeds layer by layer. Within a layer every edge
// family is exhausted across the whole frontier before the next family is
// tried, so the budget is spent on citations first.
func (e *Engine) expand(ctx context.Context, st *registry.State, seeds []Seed) (*subgraph, error) {
	g := st.Graph
	sg := &subgraph{
		local:    make(map[int32]int32, e.maxNodes),
		semantic: make(map[int32][]embedding.Hit),
	}
	frontier := make([]int32, 0, len(seeds))
	for _, s := range seeds {
		if sg.add(s.Node) {
			frontier = append(frontier, s.Node)
		}
	}
	slices.Sort(frontier)

	if st.Vectors != nil && st.Vectors.Len() > 0 && e.semanticK > 0 {
		for _, u := range frontier {
			vec := st.Vectors.Vector(u)
			if vec == nil {
				continue
			}
			hits, err := st.Vectors.Search(ctx, vec, e.semanticK+1, func(n int32) bool { return n != u })
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.logger.Debug("semantic neighbours unavailable", "node", g.ID(u), "error", err)
				continue
			}
			if len(hits) > e.semanticK {
				hits = hits[:e.semanticK]
			}
			sg.semantic[u] = hits
			sg.semSeeds = append(sg.semSeeds, u)
		}
	}

	families := []func(u int32, emit func(int32)){
		func(u int32, emit func(int32)) {
			for _, v := range g.CitationsOut(u) {
				emit(v)
			}
			for _, v := range g.CitationsIn(u) {
				emit(v)
			}
		},
		func(u int32, emit func(int32)) {
			if p := g.Parent(u); p != graph.NoNode {
				emit(p)
			}
			for _, v := range g.Children(u) {
				emit(v)
			}
			prev, next := g.Siblings(u)
			if prev != graph.NoNode {
				emit(prev)
			}
			if next != graph.NoNode {
				emit(next)
			}
		},
		func(u int32, emit func(int32)) {
			for _, v := range g.TermsOut(u) {
				emit(v)
			}
			users := g.TermsIn(u)
			if len(users) > e.termFanOut {
				users = users[:e.termFanOut]
			}
			for _, v := range users {
				emit(v)
			}
		},
		func(u int32, emit func(int32)) {
			for _, h := range sg.semantic[u] {
				emit(h.Node)
			}
		},
	}

	for depth := 0; depth < e.maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []int32
		full := false
		for _, family := range families {
			var found []int32
			for _, u := range frontier {
				family(u, func(v int32) {
					if !sg.contains(v) {
						found = append(found, v)
					}
				})
			}
			slices.Sort(found)
			found = slices.Compact(found)
			for _, v := range found {
				if len(sg.nodes) >= e.maxNodes {
					full = true
					break
				}
				if sg.add(v) {
					next = append(next, v)
				}
			}
			if full {
				break
			}
		}
		if full {
			break
		}
		slices.Sort(next)
		frontier = next
	}
	return sg, nil
}
