package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/lexicon"
)

// BuildOption configures Build.
type BuildOption func(*buildConfig) error

type buildConfig struct {
	catalog *core.Catalog
	logger  *slog.Logger
}

// WithCatalog sets the act catalog used for exclusions and definition scoping.
func WithCatalog(c *core.Catalog) BuildOption {
	return func(cfg *buildConfig) error {
		if c == nil {
			return fmt.Errorf("%w: catalog is nil", core.ErrInvalidCatalog)
		}
		cfg.catalog = c
		return nil
	}
}

// WithLogger sets the logger used to report unresolved links.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(cfg *buildConfig) error {
		if logger == nil {
			logger = slog.Default()
		}
		cfg.logger = logger
		return nil
	}
}

// NormalizeTerm folds a defined term or term reference to its lookup key.
func NormalizeTerm(term string) string {
	term = strings.ToLower(strings.ReplaceAll(term, "_", " "))
	return strings.Join(strings.Fields(term), " ")
}

// Build validates the provisions and assembles an immutable snapshot.
// The input records are copied; callers keep ownership of theirs.
func Build(provisions []*core.Provision, opts ...BuildOption) (*Snapshot, error) {
	cfg := &buildConfig{
		catalog: core.DefaultCatalog(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	logger := cfg.logger.With("component", "graph-builder")

	if len(provisions) == 0 {
		return nil, ErrEmptyCorpus
	}

	records := make([]*core.Provision, 0, len(provisions))
	for _, p := range provisions {
		if p == nil {
			return nil, fmt.Errorf("%w: provision is nil", core.ErrInvalidProvision)
		}
		c := *p
		c.References = slices.Clone(p.References)
		c.TermsUsed = slices.Clone(p.TermsUsed)
		c.Normalize()
		if err := core.ValidateProvision(&c); err != nil {
			return nil, err
		}
		records = append(records, &c)
	}
	slices.SortFunc(records, func(a, b *core.Provision) int {
		return strings.Compare(a.InternalID, b.InternalID)
	})

	n := len(records)
	s := &Snapshot{
		ids:          make([]string, n),
		refIDs:       make([]string, n),
		acts:         make([]string, n),
		localIDs:     make([]string, n),
		types:        make([]core.NodeType, n),
		titles:       make([]string, n),
		contents:     make([]string, n),
		paths:        make([]string, n),
		parents:      make([]int32, n),
		siblingOrder: make([]int32, n),
		position:     make([]int32, n),
		hashes:       make([]core.ID, n),
		excluded:     make([]bool, n),
		byID:         make(map[string]int32, 2*n),
		definitions:  make(map[string]int32),
		anyDef:       make(map[string]int32),
		records:      records,
		catalog:      cfg.catalog,
	}

	acts := make(map[string]bool)
	for i, p := range records {
		if i > 0 && records[i-1].InternalID == p.InternalID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, p.InternalID)
		}
		idx := int32(i)
		s.ids[i] = p.InternalID
		s.refIDs[i] = p.RefID
		s.acts[i] = p.Act
		s.localIDs[i] = p.LocalID
		s.types[i] = p.Type
		s.titles[i] = p.Title
		s.contents[i] = p.Content
		s.siblingOrder[i] = int32(p.SiblingOrder)
		s.hashes[i] = p.ContentHash()
		s.excluded[i] = p.Excluded || cfg.catalog.IsExcluded(p.RefID)
		s.byID[p.InternalID] = idx
		acts[p.Act] = true
		if s.excluded[i] {
			s.stats.Excluded++
		}
	}
	// Ref ids never shadow internal ids.
	for i, p := range records {
		if p.RefID == "" {
			continue
		}
		if _, taken := s.byID[p.RefID]; !taken {
			s.byID[p.RefID] = int32(i)
		}
	}
	for act := range acts {
		s.actIDs = append(s.actIDs, act)
	}
	slices.Sort(s.actIDs)

	s.linkHierarchy(logger)
	s.linkCitations(logger)
	s.linkTerms()
	s.computePaths()

	lb := lexicon.NewBuilder()
	for i := range n {
		lb.Add(int32(i), s.titles[i], s.contents[i])
	}
	s.lexicon = lb.Build()

	s.stats.Nodes = n
	s.stats.CitationEdges = len(s.citeOut.targets)
	s.stats.TermEdges = len(s.termOut.targets)
	s.stats.HierarchyEdges = len(s.children.targets)

	logger.Debug("graph built",
		"nodes", s.stats.Nodes,
		"citations", s.stats.CitationEdges,
		"terms", s.stats.TermEdges,
		"excluded", s.stats.Excluded)
	if s.stats.UnresolvedCitations > 0 || s.stats.UnresolvedParents > 0 {
		logger.Warn("unresolved links",
			"citations", s.stats.UnresolvedCitations,
			"parents", s.stats.UnresolvedParents,
			"terms", s.stats.UnresolvedTerms)
	}
	return s, nil
}

func (s *Snapshot) resolve(ref string) (int32, bool) {
	if i, ok := s.byID[ref]; ok {
		return i, true
	}
	i, ok := s.byID[core.InternalIDFromRef(ref)]
	return i, ok
}

func (s *Snapshot) linkHierarchy(logger *slog.Logger) {
	n := len(s.records)
	rows := make([][]int32, n)
	for i, p := range s.records {
		s.parents[i] = NoNode
		if p.ParentID == "" {
			s.roots = append(s.roots, int32(i))
			continue
		}
		parent, ok := s.resolve(p.ParentID)
		if !ok || parent == int32(i) {
			s.stats.UnresolvedParents++
			s.roots = append(s.roots, int32(i))
			continue
		}
		s.parents[i] = parent
		rows[parent] = append(rows[parent], int32(i))
	}

	// Parent cycles would make paths unbounded; detach the node closing the loop.
	state := make([]uint8, n)
	for i := range n {
		s.breakCycle(int32(i), state, rows, logger)
	}

	bySibling := func(a, b int32) int {
		if d := s.siblingOrder[a] - s.siblingOrder[b]; d != 0 {
			return int(d)
		}
		return int(a - b)
	}
	for i := range rows {
		slices.SortFunc(rows[i], bySibling)
		for pos, c := range rows[i] {
			s.position[c] = int32(pos)
		}
	}
	slices.SortFunc(s.roots, bySibling)
	for pos, r := range s.roots {
		s.position[r] = int32(pos)
	}
	s.children = newCSR(rows)
}

func (s *Snapshot) breakCycle(i int32, state []uint8, rows [][]int32, logger *slog.Logger) {
	const (
		visiting = 1
		done     = 2
	)
	var chain []int32
	cur := i
	for cur != NoNode && state[cur] == 0 {
		state[cur] = visiting
		chain = append(chain, cur)
		cur = s.parents[cur]
	}
	if cur != NoNode && state[cur] == visiting {
		logger.Warn("parent cycle detached", "node", s.ids[cur])
		p := s.parents[cur]
		rows[p] = slices.DeleteFunc(rows[p], func(c int32) bool { return c == cur })
		s.parents[cur] = NoNode
		s.roots = append(s.roots, cur)
		s.stats.UnresolvedParents++
	}
	for _, c := range chain {
		state[c] = done
	}
}

func (s *Snapshot) linkCitations(logger *slog.Logger) {
	n := len(s.records)
	type edge struct {
		target  int32
		snippet string
	}
	outRows := make([][]int32, n)
	inRows := make([][]int32, n)
	var snippets []string
	for i, p := range s.records {
		seen := make(map[int32]bool, len(p.References))
		edges := make([]edge, 0, len(p.References))
		for _, ref := range p.References {
			t, ok := s.resolve(ref.Target)
			if !ok {
				s.stats.UnresolvedCitations++
				logger.Debug("unresolved citation", "source", p.InternalID, "target", ref.Target)
				continue
			}
			if t == int32(i) || seen[t] {
				continue
			}
			seen[t] = true
			edges = append(edges, edge{target: t, snippet: ref.Snippet})
		}
		slices.SortFunc(edges, func(a, b edge) int { return int(a.target - b.target) })
		for _, e := range edges {
			outRows[i] = append(outRows[i], e.target)
			inRows[e.target] = append(inRows[e.target], int32(i))
			snippets = append(snippets, e.snippet)
		}
	}
	s.citeOut = newCSR(outRows)
	s.citeIn = newCSR(inRows)
	s.citeSnippets = snippets
}

func (s *Snapshot) linkTerms() {
	for i, p := range s.records {
		if p.Type != core.NodeTypeDefinition {
			continue
		}
		idx := int32(i)
		for _, key := range []string{NormalizeTerm(p.Title), NormalizeTerm(p.LocalID)} {
			if key == "" {
				continue
			}
			if _, ok := s.definitions[p.Act+"\x00"+key]; !ok {
				s.definitions[p.Act+"\x00"+key] = idx
			}
			if _, ok := s.anyDef[key]; !ok {
				s.anyDef[key] = idx
			}
		}
	}

	n := len(s.records)
	outRows := make([][]int32, n)
	inRows := make([][]int32, n)
	for i, p := range s.records {
		seen := make(map[int32]bool, len(p.TermsUsed))
		for _, term := range p.TermsUsed {
			key := NormalizeTerm(term)
			def, ok := s.definitions[p.Act+"\x00"+key]
			if !ok {
				def, ok = s.anyDef[key]
			}
			if !ok {
				s.stats.UnresolvedTerms++
				continue
			}
			if def == int32(i) || seen[def] {
				continue
			}
			seen[def] = true
			outRows[i] = append(outRows[i], def)
		}
		slices.Sort(outRows[i])
		for _, def := range outRows[i] {
			inRows[def] = append(inRows[def], int32(i))
		}
	}
	s.termOut = newCSR(outRows)
	s.termIn = newCSR(inRows)
}

func (s *Snapshot) computePaths() {
	done := make([]bool, len(s.records))
	var walk func(i int32) string
	walk = func(i int32) string {
		if done[i] {
			return s.paths[i]
		}
		seg := s.localIDs[i]
		if seg == "" {
			seg = s.ids[i]
		}
		if s.types[i] == core.NodeTypeAct {
			seg = s.acts[i]
		}
		var path string
		if p := s.parents[i]; p != NoNode {
			path = walk(p) + "/" + seg
		} else if s.types[i] == core.NodeTypeAct {
			path = seg
		} else {
			path = s.acts[i] + "/" + seg
		}
		s.paths[i] = path
		done[i] = true
		return path
	}
	for i := range s.records {
		walk(int32(i))
	}
}
