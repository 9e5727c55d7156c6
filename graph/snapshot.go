package graph

import (
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/lexicon"
)

// NoNode marks an absent node reference (no parent, unresolved target).
const NoNode int32 = -1

// Node is a read-only view of one snapshot row.
type Node struct {
	Index        int32
	ID           string
	RefID        string
	Act          string
	Type         core.NodeType
	LocalID      string
	Title        string
	Content      string
	Path         string
	Parent       int32
	SiblingOrder int
	Hash         core.ID
	Excluded     bool
}

// Citation is an outgoing citation edge with its source snippet.
type Citation struct {
	Target  int32
	Snippet string
}

// Stats summarizes a snapshot.
type Stats struct {
	Nodes               int
	Excluded            int
	CitationEdges       int
	TermEdges           int
	HierarchyEdges      int
	UnresolvedCitations int
	UnresolvedParents   int
	UnresolvedTerms     int
}

// csr is a compressed sparse row adjacency list.
type csr struct {
	offsets []int32
	targets []int32
}

func (c *csr) row(i int32) []int32 {
	return c.targets[c.offsets[i]:c.offsets[i+1]]
}

func (c *csr) degree(i int32) int {
	return int(c.offsets[i+1] - c.offsets[i])
}

func newCSR(rows [][]int32) csr {
	offsets := make([]int32, len(rows)+1)
	total := 0
	for i, r := range rows {
		offsets[i] = int32(total)
		total += len(r)
	}
	offsets[len(rows)] = int32(total)
	targets := make([]int32, 0, total)
	for _, r := range rows {
		targets = append(targets, r...)
	}
	return csr{offsets: offsets, targets: targets}
}

// Snapshot is one immutable version of the provision graph.
//
// Nodes are stored in flat arrays addressed by index; index order equals
// ascending internal id order, which is the canonical tie-break order for
// every algorithm that walks the graph.
type Snapshot struct {
	ids          []string
	refIDs       []string
	acts         []string
	localIDs     []string
	types        []core.NodeType
	titles       []string
	contents     []string
	paths        []string
	parents      []int32
	siblingOrder []int32
	position     []int32 // index of the node within its parent's child list
	hashes       []core.ID
	excluded     []bool

	citeOut      csr
	citeSnippets []string // parallel to citeOut.targets
	citeIn       csr
	termOut      csr
	termIn       csr
	children     csr
	roots        []int32

	byID        map[string]int32
	definitions map[string]int32
	anyDef      map[string]int32
	actIDs      []string

	records []*core.Provision
	lexicon *lexicon.Index
	catalog *core.Catalog
	stats   Stats
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// Lookup resolves an internal id or a canonical ref id.
func (s *Snapshot) Lookup(id string) (int32, bool) {
	i, ok := s.byID[id]
	if ok {
		return i, true
	}
	i, ok = s.byID[core.InternalIDFromRef(id)]
	return i, ok
}

// Node returns the view of node i.
func (s *Snapshot) Node(i int32) Node {
	return Node{
		Index:        i,
		ID:           s.ids[i],
		RefID:        s.refIDs[i],
		Act:          s.acts[i],
		Type:         s.types[i],
		LocalID:      s.localIDs[i],
		Title:        s.titles[i],
		Content:      s.contents[i],
		Path:         s.paths[i],
		Parent:       s.parents[i],
		SiblingOrder: int(s.siblingOrder[i]),
		Hash:         s.hashes[i],
		Excluded:     s.excluded[i],
	}
}

// ID returns the internal id of node i.
func (s *Snapshot) ID(i int32) string { return s.ids[i] }

// RefID returns the canonical ref id of node i.
func (s *Snapshot) RefID(i int32) string { return s.refIDs[i] }

// Title returns the title of node i.
func (s *Snapshot) Title(i int32) string { return s.titles[i] }

// Content returns the text of node i.
func (s *Snapshot) Content(i int32) string { return s.contents[i] }

// Act returns the act of node i.
func (s *Snapshot) Act(i int32) string { return s.acts[i] }

// Type returns the node type of node i.
func (s *Snapshot) Type(i int32) core.NodeType { return s.types[i] }

// Excluded reports whether node i is excluded from ranked output.
func (s *Snapshot) Excluded(i int32) bool { return s.excluded[i] }

// InScope reports whether node i belongs to scope ("" and "all" match everything).
func (s *Snapshot) InScope(i int32, scope string) bool {
	return scope == "" || scope == core.ScopeAll || s.acts[i] == scope
}

// CitationsOut returns the nodes cited by node i, ascending.
func (s *Snapshot) CitationsOut(i int32) []int32 { return s.citeOut.row(i) }

// CitationsIn returns the nodes citing node i, ascending.
func (s *Snapshot) CitationsIn(i int32) []int32 { return s.citeIn.row(i) }

// CitationDetails returns the outgoing citations of node i with snippets.
func (s *Snapshot) CitationDetails(i int32) []Citation {
	start, end := s.citeOut.offsets[i], s.citeOut.offsets[i+1]
	out := make([]Citation, 0, end-start)
	for k := start; k < end; k++ {
		out = append(out, Citation{Target: s.citeOut.targets[k], Snippet: s.citeSnippets[k]})
	}
	return out
}

// TermsOut returns the definitions used by node i, ascending.
func (s *Snapshot) TermsOut(i int32) []int32 { return s.termOut.row(i) }

// TermsIn returns the nodes using definition i, ascending.
func (s *Snapshot) TermsIn(i int32) []int32 { return s.termIn.row(i) }

// Parent returns the parent of node i or NoNode.
func (s *Snapshot) Parent(i int32) int32 { return s.parents[i] }

// Children returns the children of node i in sibling order.
func (s *Snapshot) Children(i int32) []int32 { return s.children.row(i) }

// Siblings returns the siblings immediately before and after node i in
// sibling order. Either may be NoNode.
func (s *Snapshot) Siblings(i int32) (prev, next int32) {
	var group []int32
	if p := s.parents[i]; p != NoNode {
		group = s.children.row(p)
	} else {
		group = s.roots
	}
	pos := s.position[i]
	prev, next = NoNode, NoNode
	if pos > 0 {
		prev = group[pos-1]
	}
	if int(pos)+1 < len(group) {
		next = group[pos+1]
	}
	return prev, next
}

// Degree holds the edge counts reported for a node.
type Degree struct {
	CitationsOut int
	CitationsIn  int
	TermsOut     int
	TermsIn      int
	Children     int
}

// Degree returns the edge counts of node i.
func (s *Snapshot) Degree(i int32) Degree {
	return Degree{
		CitationsOut: s.citeOut.degree(i),
		CitationsIn:  s.citeIn.degree(i),
		TermsOut:     s.termOut.degree(i),
		TermsIn:      s.termIn.degree(i),
		Children:     s.children.degree(i),
	}
}

// DefinitionByTerm finds the definition of a term, preferring act.
// An empty act searches every act.
func (s *Snapshot) DefinitionByTerm(act, term string) (int32, bool) {
	key := NormalizeTerm(term)
	if key == "" {
		return NoNode, false
	}
	if act != "" && act != core.ScopeAll {
		i, ok := s.definitions[act+"\x00"+key]
		return i, ok
	}
	i, ok := s.anyDef[key]
	return i, ok
}

// Acts returns the acts present in the snapshot, sorted.
func (s *Snapshot) Acts() []string { return s.actIDs }

// Catalog returns the act catalog the snapshot was built with.
func (s *Snapshot) Catalog() *core.Catalog { return s.catalog }

// Lexicon returns the inverted index over titles and content.
func (s *Snapshot) Lexicon() *lexicon.Index { return s.lexicon }

// Stats returns build statistics.
func (s *Snapshot) Stats() Stats { return s.stats }

// Provisions returns the normalized input records in node order.
// The records are shared and must not be modified.
func (s *Snapshot) Provisions() []*core.Provision { return s.records }
