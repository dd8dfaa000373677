package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosureSort(t *testing.T) {
	c := &Closure{
		Nodes: []Node{{UUID: "c"}, {UUID: "a"}, {UUID: "b"}},
		Links: []Link{
			{Input: "a", Output: "c", Label: "y", Type: LinkInput},
			{Input: "b", Output: "c", Label: "x", Type: LinkInput},
			{Input: "a", Output: "b", Label: "z", Type: LinkCreate},
		},
		Users:  []User{{Email: "z@x"}, {Email: "a@x"}},
		Groups: []Group{{UUID: "g2", Members: []string{"c", "a"}}, {UUID: "g1"}},
	}

	c.Sort()

	assert.Equal(t, []string{"a", "b", "c"}, []string{c.Nodes[0].UUID, c.Nodes[1].UUID, c.Nodes[2].UUID})
	assert.Equal(t, "b", c.Links[0].Output)
	assert.Equal(t, "x", c.Links[1].Label)
	assert.Equal(t, "y", c.Links[2].Label)
	assert.Equal(t, "a@x", c.Users[0].Email)
	assert.Equal(t, "g1", c.Groups[0].UUID)
	assert.Equal(t, []string{"a", "c"}, c.Groups[1].Members)
}

func TestClosureCounts(t *testing.T) {
	c := &Closure{
		Nodes:         []Node{{UUID: "a"}, {UUID: "b"}},
		Links:         []Link{{Input: "a", Output: "b"}},
		ExternalLinks: []Link{{Input: "z", Output: "a"}},
		Computers:     []Computer{{UUID: "c"}},
	}

	assert.Equal(t, Counts{Nodes: 2, Links: 1, ExternalLinks: 1, Computers: 1}, c.Counts())
	assert.Equal(t, map[string]bool{"a": true, "b": true}, c.NodeSet())
}

func TestNodeLicense(t *testing.T) {
	tests := []struct {
		name        string
		attrs       map[string]any
		wantLicense string
		wantPresent bool
		wantOK      bool
	}{
		{"no attributes", nil, "", false, true},
		{"no source", map[string]any{"x": 1}, "", false, true},
		{"source not a map", map[string]any{"source": "db"}, "", false, true},
		{"source without license", map[string]any{"source": map[string]any{"db_name": "icsd"}}, "", false, true},
		{"null license", map[string]any{"source": map[string]any{"license": nil}}, "", false, true},
		{"license", map[string]any{"source": map[string]any{"license": "GPL"}}, "GPL", true, true},
		{"non-string license", map[string]any{"source": map[string]any{"license": 3}}, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			license, present, ok := Node{Attributes: tt.attrs}.License()
			assert.Equal(t, tt.wantLicense, license)
			assert.Equal(t, tt.wantPresent, present)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNormalizeUUID(t *testing.T) {
	got, err := NormalizeUUID("45670237-DC1E-4300-8E0B-4D3639DC77CF")
	assert.NoError(t, err)
	assert.Equal(t, "45670237-dc1e-4300-8e0b-4d3639dc77cf", got)

	_, err = NormalizeUUID("non-existing-uuid")
	assert.Error(t, err)

	assert.Len(t, NewUUID(), 36)
}
