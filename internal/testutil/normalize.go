package testutil

import (
	"testing"

	"github.com/roach88/prova/internal/graph"
)

// Normalize returns a sorted copy of c in which every attribute, extras
// and config map has been through canonical JSON, so closures read back
// from a store or archive compare equal to the ones written.
func Normalize(t testing.TB, c *graph.Closure) *graph.Closure {
	t.Helper()

	canon := func(m map[string]any) map[string]any {
		if m == nil {
			return map[string]any{}
		}
		data, err := graph.MarshalCanonical(m)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		out, err := graph.UnmarshalValues(data)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		return out
	}

	out := &graph.Closure{
		Nodes:         make([]graph.Node, 0, len(c.Nodes)),
		Links:         append([]graph.Link{}, c.Links...),
		ExternalLinks: append([]graph.Link{}, c.ExternalLinks...),
		Computers:     make([]graph.Computer, 0, len(c.Computers)),
		Users:         append([]graph.User{}, c.Users...),
		Groups:        make([]graph.Group, 0, len(c.Groups)),
	}
	for _, n := range c.Nodes {
		n.Attributes = canon(n.Attributes)
		n.Extras = canon(n.Extras)
		out.Nodes = append(out.Nodes, n)
	}
	for _, comp := range c.Computers {
		comp.Config = canon(comp.Config)
		out.Computers = append(out.Computers, comp)
	}
	for _, g := range c.Groups {
		g.Members = append([]string{}, g.Members...)
		out.Groups = append(out.Groups, g)
	}
	out.Sort()
	return out
}
