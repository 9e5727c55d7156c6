package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, IDFromContent(tt.content), IDFromContent(tt.content))
		})
	}

	assert.NotEqual(t, IDFromContent("content1"), IDFromContent("content2"))
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "00000000000000ff", ID(255).String())
	assert.Len(t, IDFromContent("x").String(), 16)
}

func TestRefHelpers(t *testing.T) {
	assert.Equal(t, "ITAA1997_Section_6-5", InternalIDFromRef("ITAA1997:Section:6-5"))
	assert.Equal(t, "ITAA1997_Section_a_b", InternalIDFromRef("ITAA1997:Section:a/b"))
	assert.Equal(t, "ITAA1997:Definition:asset", MakeRefID("ITAA1997", NodeTypeDefinition, "asset"))
	assert.Equal(t, "ITAA1936", ActFromRef("ITAA1936:Section:23"))
	assert.Equal(t, "", ActFromRef("no-act"))
}

func TestNodeTypeIsContainer(t *testing.T) {
	assert.True(t, NodeTypeDivision.IsContainer())
	assert.True(t, NodeTypeAct.IsContainer())
	assert.False(t, NodeTypeSection.IsContainer())
	assert.False(t, NodeTypeDefinition.IsContainer())
}

func TestSeedSetHash(t *testing.T) {
	a := SeedSetHash(map[string]float64{"x": 0.5, "y": 0.5})
	b := SeedSetHash(map[string]float64{"y": 0.5, "x": 0.5})
	assert.Equal(t, a, b, "order must not matter")

	c := SeedSetHash(map[string]float64{"x": 0.7, "y": 0.3})
	assert.NotEqual(t, a, c, "weights are part of the key")

	d := SeedSetHash(map[string]float64{"x": 1})
	assert.NotEqual(t, a, d)
}

func TestProvisionContentHash(t *testing.T) {
	p := &Provision{Title: "Ordinary income", Content: "Your assessable income includes..."}
	q := &Provision{Title: "Ordinary income", Content: "Your assessable income includes..."}
	assert.Equal(t, p.ContentHash(), q.ContentHash())

	q.Content += " more"
	assert.NotEqual(t, p.ContentHash(), q.ContentHash())
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NotNil(t, c)
	assert.Equal(t, "ITAA1997", c.DefaultAct())

	id, ok := c.ResolvePrefix("itaa1936")
	assert.True(t, ok)
	assert.Equal(t, "ITAA1936", id)

	_, ok = c.ResolvePrefix("DEMOACT")
	assert.False(t, ok)

	assert.True(t, c.ValidScope(ScopeAll))
	assert.True(t, c.ValidScope(""))
	assert.True(t, c.ValidScope("ITAA1936"))
	assert.False(t, c.ValidScope("NOPE"))

	assert.True(t, c.IsExcluded("ITAA1997:Section:995-1"))
	assert.False(t, c.IsExcluded("ITAA1997:Section:6-5"))

	t.Run("first act becomes default", func(t *testing.T) {
		c, err := NewCatalog([]Act{{ID: "A"}, {ID: "B"}})
		require.NoError(t, err)
		assert.Equal(t, "A", c.DefaultAct())
	})

	t.Run("invalid catalogs", func(t *testing.T) {
		_, err := NewCatalog(nil)
		assert.ErrorIs(t, err, ErrInvalidCatalog)
		_, err = NewCatalog([]Act{{ID: "A"}, {ID: "A"}})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
		_, err = NewCatalog([]Act{{ID: "A", Default: true}, {ID: "B", Default: true}})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
	})

	t.Run("custom prefixes", func(t *testing.T) {
		c, err := NewCatalog([]Act{{ID: "ITAA1997", Prefixes: []string{"1997"}}})
		require.NoError(t, err)
		id, ok := c.ResolvePrefix("1997")
		assert.True(t, ok)
		assert.Equal(t, "ITAA1997", id)
	})
}
