package lexicon

import "slices"

// MatchMode selects conjunctive or disjunctive matching.
type MatchMode int

const (
	// MatchAll requires every term to be present.
	MatchAll MatchMode = iota
	// MatchAny requires at least one term.
	MatchAny
)

func (m MatchMode) String() string {
	if m == MatchAny {
		return "any"
	}
	return "all"
}

// Match is one document hit.
type Match struct {
	Doc          int32
	Matched      int // distinct query terms found in title or body
	TitleMatched int // distinct query terms found in the title
}

// Index is an immutable inverted index over document ids.
// Posting lists are sorted ascending.
type Index struct {
	body  map[string][]int32
	title map[string][]int32
	size  int
}

// Builder accumulates postings. Documents must be added in ascending id order.
type Builder struct {
	body  map[string][]int32
	title map[string][]int32
	size  int
}

// NewBuilder creates an empty index builder.
func NewBuilder() *Builder {
	return &Builder{
		body:  make(map[string][]int32),
		title: make(map[string][]int32),
	}
}

// Add indexes one document.
func (b *Builder) Add(doc int32, title, body string) {
	titleTerms := Terms(title)
	for _, t := range titleTerms {
		b.title[t] = appendUnique(b.title[t], doc)
		b.body[t] = appendUnique(b.body[t], doc)
	}
	for _, t := range Terms(body) {
		b.body[t] = appendUnique(b.body[t], doc)
	}
	if int(doc)+1 > b.size {
		b.size = int(doc) + 1
	}
}

// Build finalizes the index. The builder must not be used afterwards.
func (b *Builder) Build() *Index {
	ix := &Index{body: b.body, title: b.title, size: b.size}
	b.body, b.title = nil, nil
	return ix
}

func appendUnique(list []int32, doc int32) []int32 {
	if n := len(list); n > 0 && list[n-1] == doc {
		return list
	}
	return append(list, doc)
}

// Size returns one more than the highest document id indexed.
func (ix *Index) Size() int {
	return ix.size
}

// Postings returns the documents containing a stemmed term.
func (ix *Index) Postings(term string) []int32 {
	return ix.body[term]
}

// DocFreq returns the number of documents containing a stemmed term.
func (ix *Index) DocFreq(term string) int {
	return len(ix.body[term])
}

// Match finds documents for the given stemmed terms. Documents rejected by
// keep (when non-nil) are skipped. Results are ordered by document id.
func (ix *Index) Match(terms []string, mode MatchMode, keep func(doc int32) bool) []Match {
	if len(terms) == 0 {
		return nil
	}
	counts := make(map[int32]*Match)
	for _, t := range terms {
		for _, doc := range ix.body[t] {
			m, ok := counts[doc]
			if !ok {
				m = &Match{Doc: doc}
				counts[doc] = m
			}
			m.Matched++
		}
		for _, doc := range ix.title[t] {
			if m, ok := counts[doc]; ok {
				m.TitleMatched++
			}
		}
	}

	out := make([]Match, 0, len(counts))
	for doc, m := range counts {
		if mode == MatchAll && m.Matched < len(terms) {
			continue
		}
		if keep != nil && !keep(doc) {
			continue
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Match) int {
		return int(a.Doc) - int(b.Doc)
	})
	return out
}
