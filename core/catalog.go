package core

import (
	"fmt"
	"slices"
	"strings"
)

// ScopeAll selects every act in the catalog.
const ScopeAll = "all"

// Act describes one corpus and the rules used to read references into it.
type Act struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Default     bool     `yaml:"default" json:"default"`
	Exclusions  []string `yaml:"exclusions" json:"-"` // ref ids never emitted as ranked results
	Prefixes    []string `yaml:"prefixes" json:"-"`   // extra spellings accepted as an explicit act prefix
	SectionGaps bool     `yaml:"section_gaps" json:"-"`
}

// Catalog is the set of known acts.
type Catalog struct {
	acts      []Act
	byID      map[string]int
	defaultID string
}

// DefaultCatalog returns the built-in catalog of Australian income tax acts.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Act{
		{
			ID:          "ITAA1997",
			Title:       "Income Tax Assessment Act 1997",
			Default:     true,
			Exclusions:  []string{"ITAA1997:Section:995-1"},
			SectionGaps: true,
		},
		{
			ID:          "ITAA1936",
			Title:       "Income Tax Assessment Act 1936",
			SectionGaps: true,
		},
	})
	return c
}

// NewCatalog validates and indexes a list of acts.
// When no act is marked default the first one is used.
func NewCatalog(acts []Act) (*Catalog, error) {
	if len(acts) == 0 {
		return nil, fmt.Errorf("%w: no acts configured", ErrInvalidCatalog)
	}
	c := &Catalog{
		acts: make([]Act, 0, len(acts)),
		byID: make(map[string]int, len(acts)),
	}
	for _, act := range acts {
		if act.ID == "" {
			return nil, fmt.Errorf("%w: act without id", ErrInvalidCatalog)
		}
		if _, dup := c.byID[act.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate act %q", ErrInvalidCatalog, act.ID)
		}
		if act.Default {
			if c.defaultID != "" {
				return nil, fmt.Errorf("%w: more than one default act", ErrInvalidCatalog)
			}
			c.defaultID = act.ID
		}
		c.byID[act.ID] = len(c.acts)
		c.acts = append(c.acts, act)
	}
	if c.defaultID == "" {
		c.defaultID = c.acts[0].ID
		c.acts[0].Default = true
	}
	return c, nil
}

// Acts returns the acts in configuration order.
func (c *Catalog) Acts() []Act {
	return slices.Clone(c.acts)
}

// DefaultAct returns the id of the default act.
func (c *Catalog) DefaultAct() string {
	return c.defaultID
}

// Lookup finds an act by id.
func (c *Catalog) Lookup(id string) (Act, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Act{}, false
	}
	return c.acts[i], true
}

// ResolvePrefix maps an explicit act prefix written in a query to an act id.
// Matching is case-insensitive and also accepts the act's configured prefixes.
func (c *Catalog) ResolvePrefix(prefix string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if p == "" {
		return "", false
	}
	for _, act := range c.acts {
		if strings.ToUpper(act.ID) == p {
			return act.ID, true
		}
		for _, alt := range act.Prefixes {
			if strings.ToUpper(alt) == p {
				return act.ID, true
			}
		}
	}
	return "", false
}

// ValidScope reports whether scope is "all" or a known act.
func (c *Catalog) ValidScope(scope string) bool {
	if scope == "" || scope == ScopeAll {
		return true
	}
	_, ok := c.byID[scope]
	return ok
}

// IsExcluded reports whether a ref id is configured as excluded from ranking.
func (c *Catalog) IsExcluded(refID string) bool {
	act, ok := c.Lookup(ActFromRef(refID))
	if !ok {
		return false
	}
	return slices.Contains(act.Exclusions, refID)
}
