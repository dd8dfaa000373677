package graph

import (
	"cmp"
	"slices"
)

// Closure is the set of entities that travel together in one archive.
//
// Links have both endpoints in Nodes. ExternalLinks have exactly one
// endpoint in Nodes; they record that a relation existed without requiring
// the other end.
type Closure struct {
	Nodes         []Node
	Links         []Link
	ExternalLinks []Link
	Computers     []Computer
	Users         []User
	Groups        []Group
}

// Counts summarises a closure per entity kind.
type Counts struct {
	Nodes         int `json:"nodes" yaml:"nodes"`
	Links         int `json:"links" yaml:"links"`
	ExternalLinks int `json:"external_links" yaml:"external_links"`
	Computers     int `json:"computers" yaml:"computers"`
	Users         int `json:"users" yaml:"users"`
	Groups        int `json:"groups" yaml:"groups"`
}

// Counts returns the per-kind entity counts.
func (c *Closure) Counts() Counts {
	return Counts{
		Nodes:         len(c.Nodes),
		Links:         len(c.Links),
		ExternalLinks: len(c.ExternalLinks),
		Computers:     len(c.Computers),
		Users:         len(c.Users),
		Groups:        len(c.Groups),
	}
}

// Sort puts every list into its canonical order: nodes, computers and
// groups by UUID, users by email, links by (output, label, input, type).
// Group member lists are sorted too.
func (c *Closure) Sort() {
	slices.SortFunc(c.Nodes, func(a, b Node) int { return cmp.Compare(a.UUID, b.UUID) })
	slices.SortFunc(c.Links, CompareLinks)
	slices.SortFunc(c.ExternalLinks, CompareLinks)
	slices.SortFunc(c.Computers, func(a, b Computer) int { return cmp.Compare(a.UUID, b.UUID) })
	slices.SortFunc(c.Users, func(a, b User) int { return cmp.Compare(a.Email, b.Email) })
	slices.SortFunc(c.Groups, func(a, b Group) int { return cmp.Compare(a.UUID, b.UUID) })
	for i := range c.Groups {
		slices.Sort(c.Groups[i].Members)
	}
}

// NodeSet returns the UUIDs of the closure's nodes.
func (c *Closure) NodeSet() map[string]bool {
	set := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		set[n.UUID] = true
	}
	return set
}

// CompareLinks orders links by output, label, input, then type.
func CompareLinks(a, b Link) int {
	return cmp.Or(
		cmp.Compare(a.Output, b.Output),
		cmp.Compare(a.Label, b.Label),
		cmp.Compare(a.Input, b.Input),
		cmp.Compare(a.Type, b.Type),
	)
}
