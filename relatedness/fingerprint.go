package relatedness

import "github.com/poiesic/lexgraph/core"

// Seed is a start node of the personalized walk.
type Seed struct {
	Node   int32
	Weight float64
}

// Scored is one ranked node of a fingerprint.
type Scored struct {
	Node  int32
	Score float64
}

// Fingerprint is the personalized importance of the neighbourhood of a seed
// set at one graph version. It is immutable and shared between requests.
type Fingerprint struct {
	Version      uint64
	SeedHash     core.ID
	Scores       []Scored // best first, ties by node index
	MassCaptured float64
	Converged    bool
	Iterations   int
	SubgraphSize int

	byNode map[int32]float64
}

func newFingerprint(version uint64, hash core.ID, scores []Scored) *Fingerprint {
	f := &Fingerprint{
		Version:  version,
		SeedHash: hash,
		Scores:   scores,
		byNode:   make(map[int32]float64, len(scores)),
	}
	for _, s := range scores {
		f.byNode[s.Node] = s.Score
	}
	return f
}

// Score returns the score of node, 0 when it is not ranked.
func (f *Fingerprint) Score(node int32) float64 {
	return f.byNode[node]
}

// Total returns the sum of ranked scores.
func (f *Fingerprint) Total() float64 {
	total := 0.0
	for _, s := range f.Scores {
		total += s.Score
	}
	return total
}

// Approximate reports whether the walk stopped at its iteration cap.
func (f *Fingerprint) Approximate() bool {
	return !f.Converged
}
