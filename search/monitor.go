package search

import (
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/lexicon"
	"github.com/poiesic/lexgraph/query"
	"github.com/poiesic/lexgraph/relatedness"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Only Start and Finish are called when the response comes from the cache.
type SearchMonitor interface {
	Start(req Request)
	AfterInterpretation(in *query.Interpretation)
	AfterLexicalMatch(matches []lexicon.Match, relaxed bool)
	AfterSemanticSearch(hits []embedding.Hit)
	AfterFingerprint(fp *relatedness.Fingerprint, partial bool)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                                    {}
func (n *noopMonitor) AfterInterpretation(_ *query.Interpretation)        {}
func (n *noopMonitor) AfterLexicalMatch(_ []lexicon.Match, _ bool)        {}
func (n *noopMonitor) AfterSemanticSearch(_ []embedding.Hit)              {}
func (n *noopMonitor) AfterFingerprint(_ *relatedness.Fingerprint, _ bool) {}
func (n *noopMonitor) Finish(_ *Response)                                 {}
