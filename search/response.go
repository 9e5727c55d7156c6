package search

// Request is one search call.
type Request struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Offset int    `json:"offset"`
	Scope  string `json:"scope"`
}

// Interpretation lists the node ids the query was read as.
type Interpretation struct {
	Provisions  []string `json:"provisions"`
	Definitions []string `json:"definitions"`
	Keywords    []string `json:"keywords"`
	PseudoSeeds []string `json:"pseudo_seeds"`
}

// Why is one reason a result was ranked.
type Why struct {
	Type   string  `json:"type"`
	Detail string  `json:"detail"`
	Weight float64 `json:"weight"`
}

// Result is one ranked provision.
type Result struct {
	ID       string  `json:"id"`
	RefID    string  `json:"ref_id"`
	Title    string  `json:"title"`
	Type     string  `json:"type"`
	Act      string  `json:"act"`
	ScoreURS float64 `json:"score_urs"`
	Snippet  string  `json:"snippet"`
	Why      []Why   `json:"why"`
}

// Pagination describes the returned window of the ranking.
type Pagination struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	NextOffset *int `json:"next_offset"`
	Total      int  `json:"total"`
}

// Debug carries diagnostics and degradation flags.
type Debug struct {
	MassCaptured   float64  `json:"mass_captured"`
	NumSeeds       int      `json:"num_seeds"`
	Partial        bool     `json:"partial"`
	Approximate    bool     `json:"approximate"`
	ANNUnavailable bool     `json:"ann_unavailable"`
	Relaxed        bool     `json:"relaxed"`
	Ambiguous      bool     `json:"ambiguous"`
	EmptyQuery     bool     `json:"empty_query"`
	GraphVersion   uint64   `json:"graph_version"`
	CacheHit       bool     `json:"cache_hit"`
	Warnings       []string `json:"warnings"`
}

// flags returns the names of the set degradation flags, for metrics.
func (d *Debug) flags() []string {
	var out []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"partial", d.Partial},
		{"approximate", d.Approximate},
		{"ann_unavailable", d.ANNUnavailable},
		{"relaxed", d.Relaxed},
		{"ambiguous", d.Ambiguous},
		{"empty_query", d.EmptyQuery},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

// Response is a full search answer. Cached responses are shared and must
// not be modified.
type Response struct {
	QueryInterpretation Interpretation `json:"query_interpretation"`
	Results             []Result       `json:"results"`
	Pagination          Pagination     `json:"pagination"`
	Debug               Debug          `json:"debug"`
}

// CitationRef is an outgoing citation shown on a detail page.
type CitationRef struct {
	ID      string `json:"id"`
	RefID   string `json:"ref_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Detail is the full record of one provision.
type Detail struct {
	ID           string        `json:"id"`
	RefID        string        `json:"ref_id"`
	Title        string        `json:"title"`
	Type         string        `json:"type"`
	Act          string        `json:"act"`
	Path         string        `json:"path"`
	Content      string        `json:"content"`
	Parent       string        `json:"parent,omitempty"`
	Children     []string      `json:"children"`
	Baseline     float64       `json:"baseline_importance"`
	CitationsOut int           `json:"citations_out"`
	CitationsIn  int           `json:"citations_in"`
	TermsUsed    int           `json:"terms_used"`
	TermUsers    int           `json:"term_users"`
	NumChildren  int           `json:"num_children"`
	Excluded     bool          `json:"excluded_from_ranking"`
	Citations    []CitationRef `json:"citations"`
	GraphVersion uint64        `json:"graph_version"`
}

// ActSummary describes one act of the catalog.
type ActSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Default bool   `json:"default"`
	Nodes   int    `json:"nodes"`
}
