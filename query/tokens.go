package query

import (
	"regexp"
	"strings"

	"github.com/poiesic/lexgraph/core"
)

var (
	actPrefixRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s*:\s*`)

	subdivisionRe = regexp.MustCompile(`(?i)^(?:subdiv(?:ision)?|sdiv)\.?\s*([0-9]+[A-Za-z]*[-.–—\s][A-Za-z]+)\b`)
	divisionRe    = regexp.MustCompile(`(?i)^div(?:ision)?\.?\s*([0-9]+[A-Za-z]?)\b`)
	partRe        = regexp.MustCompile(`(?i)^(?:pt|part)\.?\s*([IVXLCDM]+[A-Z]?|[0-9]+[0-9A-Za-z]*(?:[-.–—][0-9A-Za-z]+)*)\b`)

	sectionPrefixRe = regexp.MustCompile(`(?i)^(?:s|sec|sect|section)\.?\s*([0-9]+[0-9A-Za-z]*(?:\s*[-.–—]\s*[0-9A-Za-z]+)*)`)
	sectionGapRe    = regexp.MustCompile(`^([0-9]+[0-9A-Za-z]*)\s+([0-9A-Za-z]+)\b`)
	bareSectionRe   = regexp.MustCompile(`^([0-9]+[0-9A-Za-z]*(?:[-.–—][0-9A-Za-z]+)*)`)

	dashRunRe = regexp.MustCompile(`-+`)
	wordRe    = regexp.MustCompile(`\S+`)
)

// Token is a reference written in a query clause.
type Token struct {
	Raw   string        // text consumed from the clause
	Act   string        // explicit act prefix, resolved against the catalog
	Kind  core.NodeType // Section, Division, Subdivision or Part
	Local string        // canonical local id
	Gap   bool          // written in the "6 5" form
}

// Candidate is one reading of a clause: a token plus the text on either side.
type Candidate struct {
	Token  Token
	Before string // text ahead of the token
	Rest   string // text after the token
}

// Leftovers returns the non-empty text around the token.
func (c Candidate) Leftovers() []string {
	var out []string
	for _, s := range []string{c.Before, c.Rest} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CanonicalLocal normalizes a section-style identifier: en and em dashes,
// dots and spaces become hyphens, runs collapse and the result is uppercased.
func CanonicalLocal(raw string) string {
	v := strings.NewReplacer("–", "-", "—", "-", ".", "-", " ", "-", "\t", "-").Replace(strings.TrimSpace(raw))
	v = dashRunRe.ReplaceAllString(v, "-")
	return strings.ToUpper(strings.Trim(v, "-"))
}

// SplitClauses splits query text on semicolons and commas.
func SplitClauses(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StripActPrefix removes a leading "ACT:" when it names a catalog act.
// Unknown prefixes are left in place.
func StripActPrefix(clause string, catalog *core.Catalog) (act, rest string) {
	m := actPrefixRe.FindStringSubmatchIndex(clause)
	if m == nil || catalog == nil {
		return "", clause
	}
	id, ok := catalog.ResolvePrefix(clause[m[2]:m[3]])
	if !ok {
		return "", clause
	}
	return id, strings.TrimSpace(clause[m[1]:])
}

// Candidates lists the readings of a clause in preference order. The caller
// takes the first one that resolves to a node. Readings at the start of the
// clause come first, then prefixed references ("s 6-5", "div 6") starting at
// any later word. Gap readings ("6 5") are offered only when allowGap is set,
// and bare numbers only at the start of the clause.
func Candidates(clause string, allowGap bool) []Candidate {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil
	}
	out := readings(clause, allowGap, false)
	for _, w := range wordRe.FindAllStringIndex(clause, -1)[1:] {
		before := strings.TrimSpace(clause[:w[0]])
		for _, c := range readings(clause[w[0]:], allowGap, true) {
			c.Before = before
			out = append(out, c)
		}
	}
	return out
}

// readings lists the tokens text starts with.
func readings(text string, allowGap, prefixedOnly bool) []Candidate {
	var out []Candidate
	add := func(kind core.NodeType, raw, local, rest string, gap bool) {
		local = CanonicalLocal(local)
		if local == "" {
			return
		}
		out = append(out, Candidate{
			Token: Token{Raw: raw, Kind: kind, Local: local, Gap: gap},
			Rest:  strings.TrimSpace(rest),
		})
	}

	for _, c := range []struct {
		re   *regexp.Regexp
		kind core.NodeType
	}{
		{subdivisionRe, core.NodeTypeSubdivision},
		{divisionRe, core.NodeTypeDivision},
		{partRe, core.NodeTypePart},
	} {
		if m := c.re.FindStringSubmatchIndex(text); m != nil {
			add(c.kind, text[:m[1]], text[m[2]:m[3]], text[m[1]:], false)
			return out
		}
	}

	if m := sectionPrefixRe.FindStringSubmatchIndex(text); m != nil {
		// "s 6 5" written with a gap after the prefix
		if allowGap {
			rest := text[m[2]:]
			if g := sectionGapRe.FindStringSubmatchIndex(rest); g != nil {
				local := rest[g[2]:g[3]] + "-" + rest[g[4]:g[5]]
				add(core.NodeTypeSection, text[:m[2]+g[1]], local, rest[g[1]:], true)
			}
		}
		add(core.NodeTypeSection, text[:m[1]], text[m[2]:m[3]], text[m[1]:], false)
		return out
	}
	if prefixedOnly {
		return out
	}

	if allowGap {
		if g := sectionGapRe.FindStringSubmatchIndex(text); g != nil {
			add(core.NodeTypeSection, text[:g[1]], text[g[2]:g[3]]+"-"+text[g[4]:g[5]], text[g[1]:], true)
		}
	}
	if m := bareSectionRe.FindStringSubmatchIndex(text); m != nil {
		add(core.NodeTypeSection, text[:m[1]], text[m[2]:m[3]], text[m[1]:], false)
	}
	return out
}

// SplitTerms splits clause text into candidate definition titles on '+',
// and on '&' when written as a separate word ("r&d" stays whole).
func SplitTerms(text string) []string {
	text = strings.ReplaceAll(text, " & ", "+")
	parts := strings.Split(text, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
