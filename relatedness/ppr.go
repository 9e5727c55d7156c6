package relatedness

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/poiesic/lexgraph/graph"
)

// transitionRow holds the outgoing probabilities of one node of L,
// addressed by local position.
type transitionRow struct {
	targets []int32
	probs   []float64
}

// idf damps term edges of widely used definitions.
func idf(df int) float64 {
	if df < 1 {
		df = 1
	}
	v := 1 / math.Log(1+float64(df))
	return min(max(v, 0.2), 2.0)
}

// transitions builds the row-normalized walk restricted to L together with
// the fraction of each node's full-graph out-weight that stays inside L.
func (e *Engine) transitions(g *graph.Snapshot, sg *subgraph) ([]transitionRow, []float64) {
	rows := make([]transitionRow, len(sg.nodes))
	capture := make([]float64, len(sg.nodes))

	for local, u := range sg.nodes {
		weights := make(map[int32]float64)
		total := 0.0
		add := func(v int32, w float64) {
			if v == u || w <= 0 {
				return
			}
			total += w
			if sg.contains(v) {
				weights[v] += w
			}
		}

		for _, v := range g.CitationsOut(u) {
			add(v, e.citationWeight)
		}
		for _, v := range g.CitationsIn(u) {
			add(v, e.citationWeight*e.citedByFactor)
		}
		if p := g.Parent(u); p != graph.NoNode {
			add(p, e.hierarchyWeight*e.parentChildWeight)
		}
		for _, v := range g.Children(u) {
			add(v, e.hierarchyWeight*e.parentChildWeight)
		}
		prev, next := g.Siblings(u)
		if prev != graph.NoNode {
			add(prev, e.hierarchyWeight*e.siblingWeight)
		}
		if next != graph.NoNode {
			add(next, e.hierarchyWeight*e.siblingWeight)
		}
		for _, d := range g.TermsOut(u) {
			add(d, e.termWeight*idf(len(g.TermsIn(d))))
		}
		if users := g.TermsIn(u); len(users) > 0 {
			w := e.termWeight * idf(len(users))
			for _, v := range users {
				add(v, w)
			}
		}
		for _, h := range sg.semantic[u] {
			add(h.Node, e.semanticWeight*float64(h.Similarity))
		}
		// Semantic pairs are symmetric; neighbours walk back to their seed.
		for _, seed := range sg.semSeeds {
			if seed == u {
				continue
			}
			for _, h := range sg.semantic[seed] {
				if h.Node == u {
					add(seed, e.semanticWeight*float64(h.Similarity))
				}
			}
		}

		targets := make([]int32, 0, len(weights))
		for v := range weights {
			targets = append(targets, v)
		}
		slices.Sort(targets)
		inside := 0.0
		for _, v := range targets {
			inside += weights[v]
		}

		switch {
		case total == 0:
			capture[local] = 1
		default:
			capture[local] = inside / total
		}
		if inside == 0 {
			rows[local] = transitionRow{targets: []int32{int32(local)}, probs: []float64{1}}
			continue
		}
		row := transitionRow{
			targets: make([]int32, len(targets)),
			probs:   make([]float64, len(targets)),
		}
		for i, v := range targets {
			row.targets[i] = sg.local[v]
			row.probs[i] = weights[v] / inside
		}
		rows[local] = row
	}
	return rows, capture
}

type walkResult struct {
	scores     []float64 // by local position
	iterations int
	converged  bool
	mass       float64
}

// walk runs personalized PageRank over L with restart to the seed distribution.
func (e *Engine) walk(ctx context.Context, rows []transitionRow, capture []float64, teleport []float64) (walkResult, error) {
	n := len(rows)
	x := slices.Clone(teleport)
	next := make([]float64, n)
	res := walkResult{}

	for iter := 1; iter <= e.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return walkResult{}, err
		}
		for i := range next {
			next[i] = e.alpha * teleport[i]
		}
		for u, row := range rows {
			mass := (1 - e.alpha) * x[u]
			if mass == 0 {
				continue
			}
			for k, v := range row.targets {
				next[v] += mass * row.probs[k]
			}
		}
		delta := 0.0
		for i := range next {
			delta += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		res.iterations = iter
		if delta < e.tolerance {
			res.converged = true
			break
		}
	}

	for u, v := range x {
		res.mass += v * capture[u]
	}
	res.scores = x
	return res, nil
}

// rank drops seeds and excluded nodes and keeps the top-K by score.
func (e *Engine) rank(g *graph.Snapshot, sg *subgraph, seeds []Seed, scores []float64) []Scored {
	isSeed := make(map[int32]bool, len(seeds))
	for _, s := range seeds {
		isSeed[s.Node] = true
	}
	out := make([]Scored, 0, len(sg.nodes))
	for local, u := range sg.nodes {
		if isSeed[u] || g.Excluded(u) || scores[local] <= 0 {
			continue
		}
		out = append(out, Scored{Node: u, Score: scores[local]})
	}
	slices.SortFunc(out, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Node, b.Node)
	})
	if len(out) > e.topK {
		out = out[:e.topK]
	}
	return out
}
