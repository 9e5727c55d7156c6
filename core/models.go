package core

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a 64-bit content-derived identifier.
// It is used for content hashes and seed-set cache keys.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex.
func (id ID) String() string {
	s := strconv.FormatUint(uint64(id), 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}

// NodeType is the structural kind of a provision.
type NodeType string

const (
	NodeTypeAct         NodeType = "Act"
	NodeTypeChapter     NodeType = "Chapter"
	NodeTypePart        NodeType = "Part"
	NodeTypeDivision    NodeType = "Division"
	NodeTypeSubdivision NodeType = "Subdivision"
	NodeTypeSchedule    NodeType = "Schedule"
	NodeTypeSection     NodeType = "Section"
	NodeTypeDefinition  NodeType = "Definition"
)

// IsContainer reports whether nodes of this type group other provisions.
func (t NodeType) IsContainer() bool {
	switch t {
	case NodeTypeAct, NodeTypeChapter, NodeTypePart, NodeTypeDivision, NodeTypeSubdivision, NodeTypeSchedule:
		return true
	}
	return false
}

// EdgeKind identifies one family of graph edges.
type EdgeKind int

const (
	// EdgeCitation is a directed reference from one provision to another.
	EdgeCitation EdgeKind = iota + 1
	// EdgeHierarchy links parents, children and adjacent siblings.
	EdgeHierarchy
	// EdgeTermUsage links a provision to the definition of a term it uses.
	EdgeTermUsage
	// EdgeSemantic is computed on demand from the embedding index and never persisted.
	EdgeSemantic
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCitation:
		return "citation"
	case EdgeHierarchy:
		return "hierarchy"
	case EdgeTermUsage:
		return "term_usage"
	case EdgeSemantic:
		return "semantic"
	}
	return "unknown"
}

// Reference is an outgoing citation as written in the source text.
type Reference struct {
	Target  string `json:"target"`            // canonical ref id of the cited provision
	Snippet string `json:"snippet,omitempty"` // text surrounding the citation
}

// Provision is a single node of the corpus as produced by the upstream parser.
// It is both the ingestion input and the persisted form of a node.
type Provision struct {
	InternalID   string      `json:"internal_id"`
	RefID        string      `json:"ref_id"`
	Act          string      `json:"act"`
	Type         NodeType    `json:"type"`
	LocalID      string      `json:"local_id,omitempty"`
	Title        string      `json:"title"`
	Content      string      `json:"content,omitempty"`
	ParentID     string      `json:"parent_id,omitempty"`
	SiblingOrder int         `json:"sibling_order"`
	References   []Reference `json:"references,omitempty"`
	TermsUsed    []string    `json:"terms_used,omitempty"`
	Excluded     bool        `json:"excluded,omitempty"`
}

// EmbeddingText returns the text that is chunked and embedded for this provision.
func (p *Provision) EmbeddingText() string {
	return strings.TrimSpace(p.Title + "\n" + p.Content)
}

// ContentHash identifies the embeddable content of the provision.
func (p *Provision) ContentHash() ID {
	return IDFromContent(p.EmbeddingText())
}

// InternalIDFromRef converts a canonical ref id (ACT:Type:Local) into the
// storage-safe internal id used as a primary key.
func InternalIDFromRef(refID string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(refID)
}

// MakeRefID assembles a canonical ref id.
func MakeRefID(act string, nodeType NodeType, localID string) string {
	return act + ":" + string(nodeType) + ":" + localID
}

// ActFromRef returns the act prefix of a ref id, or "" when absent.
func ActFromRef(refID string) string {
	act, _, ok := strings.Cut(refID, ":")
	if !ok {
		return ""
	}
	return act
}

// NodeVector holds the embeddings computed for one provision.
type NodeVector struct {
	InternalID  string
	ContentHash ID
	Model       string
	Chunks      [][]float32
	Mean        []float32 // normalized average of the normalized chunk vectors
}

// Manifest describes one persisted graph snapshot.
type Manifest struct {
	Version             uint64
	CreatedAt           time.Time
	NodeCount           int
	CitationEdges       int
	TermEdges           int
	EmbeddingModel      string
	Dimension           int
	BaselineIterations  int
	BaselineConverged   bool
	Degraded            bool
	UnresolvedCitations int
}

// SnapshotRecord is the full persisted content of one graph version.
// Baseline is aligned with Provisions.
type SnapshotRecord struct {
	Manifest   Manifest
	Provisions []*Provision
	Vectors    []*NodeVector
	Baseline   []float64
}

// SeedSetHash derives a stable key for a weighted seed set.
// Seed order does not affect the result.
func SeedSetHash(seeds map[string]float64) ID {
	ids := make([]string, 0, len(seeds))
	for id := range seeds {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(seeds[id], 'g', 6, 64))
		b.WriteByte(';')
	}
	return IDFromContent(b.String())
}
